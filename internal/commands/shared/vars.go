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

package shared

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseVars builds template variables from an optional vars file (JSON or
// YAML, chosen by extension) and key=value pairs. Pairs override the file.
// A pair written key:=value parses value as JSON, so numbers, booleans and
// lists keep their type.
func ParseVars(pairs []string, file string) (map[string]any, error) {
	vars := map[string]any{}
	if file != "" {
		loaded, err := LoadObjectFile(file)
		if err != nil {
			return nil, fmt.Errorf("vars file: %w", err)
		}
		vars = loaded
	}

	for _, pair := range pairs {
		if key, raw, ok := strings.Cut(pair, ":="); ok && !strings.Contains(key, "=") {
			if key == "" {
				return nil, fmt.Errorf("invalid variable %q: empty name", pair)
			}
			v, err := decodeJSON([]byte(raw))
			if err != nil {
				return nil, fmt.Errorf("invalid variable %q: %w", pair, err)
			}
			vars[key] = v
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q: expected key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

// LoadObjectFile reads a JSON or YAML file whose top level is an object.
func LoadObjectFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var out map[string]any
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if out == nil {
			out = map[string]any{}
		}
		return out, nil
	}
	return ParseJSONObject(data)
}

// ParseJSONObject decodes a JSON object. Integers become int64 and other
// numbers float64, so template output prints them without exponents.
func ParseJSONObject(data []byte) (map[string]any, error) {
	v, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return obj, nil
}

// ParseInput reads execution input from an inline JSON object or, when
// the value starts with '@', from the named file.
func ParseInput(value string) (map[string]any, error) {
	if value == "" {
		return nil, nil
	}
	if path, ok := strings.CutPrefix(value, "@"); ok {
		return LoadObjectFile(path)
	}
	return ParseJSONObject([]byte(value))
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON: trailing data")
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeNumbers(val)
		}
		return t
	}
	return v
}
