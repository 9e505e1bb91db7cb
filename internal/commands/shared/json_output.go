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
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/woakes070048/n8n-flow-manager/internal/jq"
	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
)

// JSONResponse is the base envelope for JSON error output
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command,omitempty"`
	Success bool   `json:"success"`
}

// NewJSONResponse returns the success envelope for command.
func NewJSONResponse(command string) JSONResponse {
	return JSONResponse{Version: "1.0", Command: command, Success: true}
}

// JSONError represents a structured error with code, message, location, and suggestion
type JSONError struct {
	Code       string        `json:"code"`
	Type       string        `json:"type,omitempty"`
	Message    string        `json:"message"`
	Field      string        `json:"field,omitempty"`
	Location   *JSONLocation `json:"location,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	ExitCode   int           `json:"exit_code"`
}

// JSONLocation represents a position in a file
type JSONLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// NewJSONError builds the structured form of err.
func NewJSONError(err error) JSONError {
	je := JSONError{
		Code:       ErrorCodeFor(err),
		Message:    err.Error(),
		Suggestion: suggestionFor(err),
		ExitCode:   ExitCodeFor(err),
	}

	var classifier flowerrors.ErrorClassifier
	if errors.As(err, &classifier) {
		je.Type = classifier.ErrorType()
	}

	var render *flowerrors.RenderError
	if errors.As(err, &render) && render.Line > 0 {
		je.Location = &JSONLocation{Line: render.Line, Column: render.Column}
	}

	var valid *flowerrors.ValidationError
	if errors.As(err, &valid) {
		je.Field = valid.Field
		if je.Suggestion == "" {
			je.Suggestion = valid.Suggestion
		}
	}
	return je
}

// EmitJSON writes v to w as indented JSON. When a --jq filter is set, each
// value the filter emits is written instead; strings are written raw.
func EmitJSON(w io.Writer, v any) error {
	filter := GetJQ()
	if filter == "" {
		return encode(w, v)
	}

	results, err := jq.NewExecutor(0, 0).Execute(context.Background(), filter, v)
	if err != nil {
		return &ExitError{Code: ExitGeneralError, Message: "jq filter failed", Cause: err}
	}
	for _, r := range results {
		if s, ok := r.(string); ok {
			if _, err := io.WriteString(w, s+"\n"); err != nil {
				return err
			}
			continue
		}
		if err := encode(w, r); err != nil {
			return err
		}
	}
	return nil
}

func encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}

// EmitJSONError creates and emits a JSON error response. The jq filter is
// not applied to errors.
func EmitJSONError(w io.Writer, command string, errs []JSONError) error {
	type errorResponse struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}

	return encode(w, errorResponse{
		JSONResponse: JSONResponse{
			Version: "1.0",
			Command: command,
			Success: false,
		},
		Errors: errs,
	})
}
