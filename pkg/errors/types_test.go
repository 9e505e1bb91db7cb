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

package errors_test

import (
	"errors"
	"fmt"
	"testing"

	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *flowerrors.ValidationError
		wantMsg string
	}{
		{
			name: "with field",
			err: &flowerrors.ValidationError{
				Field:   "nodes[1].name",
				Rule:    "unique",
				Message: `duplicate node name "Start"`,
			},
			wantMsg: `validation failed on nodes[1].name: duplicate node name "Start"`,
		},
		{
			name:    "without field",
			err:     &flowerrors.ValidationError{Message: "invalid JSON"},
			wantMsg: "validation failed: invalid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ValidationError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestRenderError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *flowerrors.RenderError
		wantMsg string
	}{
		{
			name:    "undefined variable",
			err:     &flowerrors.RenderError{Kind: flowerrors.RenderUndefinedVariable, Name: "url", Line: 3, Column: 7},
			wantMsg: `render undefined_variable at 3:7: variable "url" is undefined`,
		},
		{
			name:    "syntax error with template name",
			err:     &flowerrors.RenderError{Kind: flowerrors.RenderSyntaxError, Template: "main.json", Line: 1, Column: 1, Message: "unclosed tag"},
			wantMsg: "render syntax_error in main.json at 1:1: unclosed tag",
		},
		{
			name:    "no position",
			err:     &flowerrors.RenderError{Kind: flowerrors.RenderIncludeError, Message: "missing"},
			wantMsg: "render include_error: missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("RenderError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestTransportError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *flowerrors.TransportError
		wantMsg string
	}{
		{
			name:    "status with body",
			err:     &flowerrors.TransportError{Method: "GET", Path: "/workflows/1", StatusCode: 500, Attempts: 4, Body: "boom\n"},
			wantMsg: "GET /workflows/1: HTTP 500: boom (after 4 attempts)",
		},
		{
			name:    "network failure",
			err:     &flowerrors.TransportError{Method: "POST", Path: "/workflows", Attempts: 1, Cause: errors.New("connection refused")},
			wantMsg: "POST /workflows: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("TransportError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestTransportError_IsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{500, true},
		{503, true},
		{429, true},
		{408, true},
		{400, false},
		{404, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			err := &flowerrors.TransportError{StatusCode: tt.status}
			if got := err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNotFoundError_Error(t *testing.T) {
	err := &flowerrors.NotFoundError{Resource: "workflow", ID: "abc"}
	if got := err.Error(); got != "workflow not found: abc" {
		t.Errorf("NotFoundError.Error() = %q", got)
	}
}

func TestConfigError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *flowerrors.ConfigError
		wantMsg string
	}{
		{
			name:    "with key",
			err:     &flowerrors.ConfigError{Key: "base_url", Reason: "required"},
			wantMsg: "config error at base_url: required",
		},
		{
			name:    "without key",
			err:     &flowerrors.ConfigError{Reason: "file not readable"},
			wantMsg: "config error: file not readable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ConfigError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigError_Suggestion(t *testing.T) {
	var uv flowerrors.UserVisibleError = &flowerrors.ConfigError{Key: "api_key", Reason: "required"}
	if !uv.IsUserVisible() {
		t.Fatal("expected config errors to be user visible")
	}
	if uv.Suggestion() == "" {
		t.Error("expected a suggestion for api_key")
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	transport := &flowerrors.TransportError{Method: "GET", Path: "/executions/9", StatusCode: 404, Cause: cause}
	notFound := &flowerrors.NotFoundError{Resource: "execution", ID: "9", Cause: transport}
	wrapped := fmt.Errorf("get execution: %w", notFound)

	var nf *flowerrors.NotFoundError
	if !errors.As(wrapped, &nf) {
		t.Fatal("errors.As should find NotFoundError")
	}
	if nf.ID != "9" {
		t.Errorf("ID = %q, want 9", nf.ID)
	}

	var te *flowerrors.TransportError
	if !errors.As(wrapped, &te) {
		t.Fatal("errors.As should find TransportError through NotFoundError")
	}
	if te.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", te.StatusCode)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should find the root cause")
	}
}

func TestErrorClassifier(t *testing.T) {
	tests := []struct {
		err       flowerrors.ErrorClassifier
		wantType  string
		retryable bool
	}{
		{&flowerrors.ValidationError{}, "validation", false},
		{&flowerrors.RenderError{}, "render", false},
		{&flowerrors.TransportError{StatusCode: 502}, "transport", true},
		{&flowerrors.NotFoundError{}, "not_found", false},
		{&flowerrors.ConfigError{}, "config", false},
	}

	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			if got := tt.err.ErrorType(); got != tt.wantType {
				t.Errorf("ErrorType() = %q, want %q", got, tt.wantType)
			}
			if got := tt.err.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}
