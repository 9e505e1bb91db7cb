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
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseVars(t *testing.T) {
	dir := t.TempDir()
	jsonFile := filepath.Join(dir, "vars.json")
	if err := os.WriteFile(jsonFile, []byte(`{"count": 3, "ratio": 0.5, "big": 12345678901234, "tags": [1, "x"], "name": "file"}`), 0600); err != nil {
		t.Fatal(err)
	}

	vars, err := ParseVars([]string{"name=cli", "retries:=5", "enabled:=true", "expr=a=b"}, jsonFile)
	if err != nil {
		t.Fatalf("ParseVars() error = %v", err)
	}

	want := map[string]any{
		"count":   int64(3),
		"ratio":   0.5,
		"big":     int64(12345678901234),
		"tags":    []any{int64(1), "x"},
		"name":    "cli",
		"retries": int64(5),
		"enabled": true,
		"expr":    "a=b",
	}
	if !reflect.DeepEqual(vars, want) {
		t.Errorf("ParseVars() = %#v\nwant %#v", vars, want)
	}
}

func TestParseVars_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vars.yaml")
	if err := os.WriteFile(path, []byte("env: prod\nreplicas: 2\nlabels:\n  team: data\n"), 0600); err != nil {
		t.Fatal(err)
	}

	vars, err := ParseVars(nil, path)
	if err != nil {
		t.Fatalf("ParseVars() error = %v", err)
	}
	if vars["env"] != "prod" || vars["replicas"] != 2 {
		t.Errorf("unexpected vars: %#v", vars)
	}
	labels, ok := vars["labels"].(map[string]any)
	if !ok || labels["team"] != "data" {
		t.Errorf("unexpected labels: %#v", vars["labels"])
	}
}

func TestParseVars_Errors(t *testing.T) {
	tests := map[string][]string{
		"missing equals": {"novalue"},
		"empty key":      {"=x"},
		"bad json":       {"n:={"},
		"empty json key": {":=1"},
	}
	for name, pairs := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseVars(pairs, ""); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := ParseVars(nil, filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseInput(t *testing.T) {
	in, err := ParseInput(`{"user": {"id": 7}}`)
	if err != nil {
		t.Fatalf("ParseInput() error = %v", err)
	}
	user := in["user"].(map[string]any)
	if user["id"] != int64(7) {
		t.Errorf("id = %#v", user["id"])
	}

	if in, err := ParseInput(""); err != nil || in != nil {
		t.Errorf("empty input = %v, %v", in, err)
	}

	if _, err := ParseInput(`[1,2]`); err == nil {
		t.Error("expected error for non-object input")
	}
	if _, err := ParseInput(`{"a":1} {"b":2}`); err == nil {
		t.Error("expected error for trailing data")
	}

	path := filepath.Join(t.TempDir(), "input.json")
	if err := os.WriteFile(path, []byte(`{"a": 1.25}`), 0600); err != nil {
		t.Fatal(err)
	}
	in, err = ParseInput("@" + path)
	if err != nil {
		t.Fatalf("ParseInput(@file) error = %v", err)
	}
	if in["a"] != 1.25 {
		t.Errorf("a = %#v", in["a"])
	}
}
