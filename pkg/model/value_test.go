// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind Kind
		out  string
	}{
		{"null", `null`, KindNull, `null`},
		{"bool", `true`, KindBool, `true`},
		{"integer", `42`, KindNumber, `42`},
		{"big integer", `9007199254740993`, KindNumber, `9007199254740993`},
		{"float", `-1.5e3`, KindNumber, `-1.5e3`},
		{"string", `"héllo \"n8n\""`, KindString, `"héllo \"n8n\""`},
		{"list", `[1, "a", null]`, KindList, `[1,"a",null]`},
		{"map sorted", `{"b": 1, "a": {"c": []}}`, KindMap, `{"a":{"c":[]},"b":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			require.NoError(t, json.Unmarshal([]byte(tt.in), &v))
			assert.Equal(t, tt.kind, v.Kind())

			out, err := json.Marshal(v)
			require.NoError(t, err)
			assert.Equal(t, tt.out, string(out))
		})
	}
}

func TestValueInterface(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte(`{"n": 3, "f": 0.5, "s": "x", "l": [true], "z": null}`), &v))

	assert.Equal(t, map[string]any{
		"n": int64(3),
		"f": 0.5,
		"s": "x",
		"l": []any{true},
		"z": nil,
	}, v.Interface())
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"count":  7,
		"ratio":  0.25,
		"tags":   []any{"a", "b"},
		"nested": map[string]any{"ok": true},
		"num":    json.Number("10"),
	})
	require.NoError(t, err)

	expected := MapValue(map[string]Value{
		"count":  IntValue(7),
		"ratio":  FloatValue(0.25),
		"tags":   ListValue(StringValue("a"), StringValue("b")),
		"nested": MapValue(map[string]Value{"ok": BoolValue(true)}),
		"num":    NumberValue("10"),
	})
	assert.True(t, expected.Equal(v), "got %s", v)

	type custom struct {
		Name string `json:"name"`
	}
	cv, err := FromAny(custom{Name: "x"})
	require.NoError(t, err)
	name, _ := cv.Get("name")
	s, _ := name.AsString()
	assert.Equal(t, "x", s)

	_, err = FromAny(math.NaN())
	assert.Error(t, err)
}

func TestValueEqual(t *testing.T) {
	assert.True(t, NumberValue("1").Equal(NumberValue("1.0")))
	assert.False(t, NumberValue("1").Equal(StringValue("1")))
	assert.False(t, ListValue(IntValue(1)).Equal(ListValue(IntValue(1), IntValue(2))))
	assert.True(t, NullValue().Equal(Value{}))
	assert.True(t, FloatValue(math.Inf(1)).IsNull())
}
