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
	"strings"
	"testing"

	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
)

func TestEmitJSON(t *testing.T) {
	ResetFlagsForTest()

	var buf bytes.Buffer
	if err := EmitJSON(&buf, map[string]any{"url": "http://x/?a=1&b=<2>"}); err != nil {
		t.Fatalf("EmitJSON() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"http://x/?a=1&b=<2>"`) {
		t.Errorf("HTML characters should not be escaped: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "\n  \"url\"") {
		t.Errorf("expected indented output: %s", buf.String())
	}
}

func TestEmitJSON_WithJQ(t *testing.T) {
	ResetFlagsForTest()
	defer ResetFlagsForTest()
	jqFlag = ".workflows[] | .name"

	if !GetJSON() {
		t.Fatal("--jq should imply JSON output")
	}

	data := map[string]any{"workflows": []map[string]any{{"name": "a"}, {"name": "b"}}}
	var buf bytes.Buffer
	if err := EmitJSON(&buf, data); err != nil {
		t.Fatalf("EmitJSON() error = %v", err)
	}
	if buf.String() != "a\nb\n" {
		t.Errorf("output = %q, want raw strings", buf.String())
	}

	jqFlag = ".workflows | length"
	buf.Reset()
	if err := EmitJSON(&buf, data); err != nil {
		t.Fatalf("EmitJSON() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "2" {
		t.Errorf("output = %q, want 2", buf.String())
	}

	jqFlag = ".["
	if err := EmitJSON(&buf, data); ExitCodeFor(err) != ExitGeneralError || err == nil {
		t.Errorf("expected jq error, got %v", err)
	}
}

func TestEmitJSONError(t *testing.T) {
	ResetFlagsForTest()

	renderErr := &flowerrors.RenderError{
		Kind:   flowerrors.RenderUndefinedVariable,
		Name:   "webhook_path",
		Line:   4,
		Column: 17,
	}

	var buf bytes.Buffer
	if err := EmitJSONError(&buf, "workflows deploy", []JSONError{NewJSONError(renderErr)}); err != nil {
		t.Fatalf("EmitJSONError() error = %v", err)
	}

	var resp struct {
		Version string      `json:"@version"`
		Command string      `json:"command"`
		Success bool        `json:"success"`
		Errors  []JSONError `json:"errors"`
	}
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Success || resp.Version != "1.0" || resp.Command != "workflows deploy" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	if len(resp.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(resp.Errors))
	}
	got := resp.Errors[0]
	if got.Code != ErrorCodeRender || got.Type != "render" || got.ExitCode != ExitInvalidWorkflow {
		t.Errorf("unexpected error fields: %+v", got)
	}
	if got.Location == nil || got.Location.Line != 4 || got.Location.Column != 17 {
		t.Errorf("unexpected location: %+v", got.Location)
	}
}

func TestNewJSONError_Validation(t *testing.T) {
	err := &flowerrors.ValidationError{
		Field:      "nodes[1].name",
		Rule:       "unique",
		Message:    `duplicate node name "Start"`,
		Suggestion: "Rename one of the nodes",
	}
	je := NewJSONError(err)
	if je.Field != "nodes[1].name" {
		t.Errorf("Field = %q", je.Field)
	}
	if je.Suggestion != "Rename one of the nodes" {
		t.Errorf("Suggestion = %q", je.Suggestion)
	}
	if je.Code != ErrorCodeValidation {
		t.Errorf("Code = %q", je.Code)
	}
}
