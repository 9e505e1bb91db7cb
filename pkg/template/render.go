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

package template

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
)

// Scope holds the variables visible to a template. Loop bodies render in a
// child scope so loop variables and sets inside them do not leak out.
type Scope struct {
	vars map[string]any
}

// NewScope returns a scope over vars layered on top of defaults.
func NewScope(vars, defaults map[string]any) *Scope {
	merged := make(map[string]any, len(vars)+len(defaults))
	maps.Copy(merged, defaults)
	maps.Copy(merged, vars)
	return &Scope{vars: merged}
}

// Get returns the value bound to name.
func (s *Scope) Get(name string) (any, bool) {
	v, ok := s.vars[name]
	return v, ok
}

func (s *Scope) has(name string) bool {
	_, ok := s.vars[name]
	return ok
}

func (s *Scope) set(name string, v any) {
	s.vars[name] = v
}

func (s *Scope) child() *Scope {
	return &Scope{vars: maps.Clone(s.vars)}
}

func execute(b *strings.Builder, nodes []node, s *Scope) error {
	for _, n := range nodes {
		if err := executeNode(b, n, s); err != nil {
			return err
		}
	}
	return nil
}

func executeNode(b *strings.Builder, n node, s *Scope) error {
	switch n := n.(type) {
	case *textNode:
		b.WriteString(n.text)

	case *outputNode:
		v, err := n.expr.eval(s)
		if err != nil {
			return err
		}
		out, err := formatValue(v)
		if err != nil {
			return n.expr.evalError(err)
		}
		b.WriteString(out)

	case *ifNode:
		for _, br := range n.branches {
			if br.cond == nil {
				return execute(b, br.body, s)
			}
			v, err := br.cond.eval(s)
			if err != nil {
				return err
			}
			if truthy(v) {
				return execute(b, br.body, s)
			}
		}

	case *forNode:
		return executeFor(b, n, s)

	case *setNode:
		v, err := n.expr.eval(s)
		if err != nil {
			return err
		}
		s.set(n.name, v)

	case *includeNode:
		return execute(b, n.body, s)
	}
	return nil
}

type loopItem struct {
	key, value any
}

func executeFor(b *strings.Builder, n *forNode, s *Scope) error {
	v, err := n.iter.eval(s)
	if err != nil {
		return err
	}
	items, err := iterate(v, n.key != "")
	if err != nil {
		return n.iter.evalError(err)
	}
	if len(items) == 0 {
		return execute(b, n.elseBody, s)
	}

	for i, item := range items {
		if i > 0 {
			b.WriteString(n.sep)
		}
		inner := s.child()
		if n.key != "" {
			inner.set(n.key, item.key)
		}
		inner.set(n.value, item.value)
		inner.set("loop", map[string]any{
			"index":  i + 1,
			"index0": i,
			"first":  i == 0,
			"last":   i == len(items)-1,
			"length": len(items),
		})
		if err := execute(b, n.body, inner); err != nil {
			return err
		}
	}
	return nil
}

// iterate flattens a list or map into loop items. Maps iterate in sorted
// key order; a single-variable loop over a map yields its keys.
func iterate(v any, pairs bool) ([]loopItem, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot iterate over nil")
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]loopItem, rv.Len())
		for i := range items {
			items[i] = loopItem{key: i, value: rv.Index(i).Interface()}
		}
		return items, nil

	case reflect.Map:
		keys := rv.MapKeys()
		names := make([]string, len(keys))
		byName := make(map[string]reflect.Value, len(keys))
		for i, k := range keys {
			names[i] = fmt.Sprint(k.Interface())
			byName[names[i]] = k
		}
		slices.Sort(names)

		items := make([]loopItem, len(names))
		for i, name := range names {
			k := byName[name]
			if pairs {
				items[i] = loopItem{key: k.Interface(), value: rv.MapIndex(k).Interface()}
			} else {
				items[i] = loopItem{value: k.Interface()}
			}
		}
		return items, nil
	}
	return nil, fmt.Errorf("cannot iterate over %T", v)
}

func (e *expression) evalError(err error) error {
	return &flowerrors.RenderError{
		Kind:     flowerrors.RenderEvaluationError,
		Template: e.tmpl,
		Name:     e.src,
		Line:     e.line,
		Column:   e.col,
		Message:  fmt.Sprintf("%q: %v", e.src, err),
		Cause:    err,
	}
}

// formatValue renders a value for {{ }} output.
func formatValue(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "null", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case time.Time:
		return v.Format(time.RFC3339), nil
	case time.Duration:
		return v.String(), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.String:
		return rv.String(), nil
	}
	return marshalCompact(v)
}

// truthy reports whether v counts as true in a condition: false, nil,
// zero numbers, empty strings and empty collections are false.
func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case json.Number:
		f, err := v.Float64()
		return err != nil || f != 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
