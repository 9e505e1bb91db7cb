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
	"errors"
	"fmt"
	"io"
	"os"

	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
	"github.com/woakes070048/n8n-flow-manager/pkg/orchestrator"
)

// Exit codes for n8nctl
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitInvalidWorkflow = 2 // template or workflow failed to render or validate
	ExitExecutionFailed = 3 // remote execution reached a failed status
	ExitTimeout         = 4
	ExitTriggerFailed   = 5
	ExitCanceled        = 6
	ExitConfig          = 7
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error

	// Reported marks an error the command already wrote to its output;
	// ReportError then only maps it to the exit code.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExecutionFailedError creates an error for a remote execution that
// finished unsuccessfully.
func NewExecutionFailedError(msg string) *ExitError {
	return &ExitError{Code: ExitExecutionFailed, Message: msg}
}

// NewInvalidWorkflowError creates an error for invalid workflow files
func NewInvalidWorkflowError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidWorkflow, Message: msg, Cause: cause}
}

// ExitCodeFor maps an error to the process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		exitErr     *ExitError
		cfgErr      *flowerrors.ConfigError
		renderErr   *flowerrors.RenderError
		validErr    *flowerrors.ValidationError
		triggerErr  *orchestrator.TriggerError
		timeoutErr  *orchestrator.TimeoutError
		canceledErr *orchestrator.CanceledError
	)
	switch {
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.As(err, &cfgErr):
		return ExitConfig
	case errors.As(err, &triggerErr):
		return ExitTriggerFailed
	case errors.As(err, &timeoutErr):
		return ExitTimeout
	case errors.As(err, &canceledErr), errors.Is(err, context.Canceled):
		return ExitCanceled
	case errors.As(err, &renderErr), errors.As(err, &validErr):
		return ExitInvalidWorkflow
	}
	return ExitGeneralError
}

// HandleExitError prints err and exits with the matching code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	code := ReportError(os.Stderr, err)
	os.Exit(code)
}

// ReportError writes err, and a suggestion when one is available, to w.
// In JSON mode a structured error is written to stdout instead. It returns
// the exit code for err.
func ReportError(w io.Writer, err error) int {
	code := ExitCodeFor(err)
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Reported {
		return code
	}
	if GetJSON() {
		_ = EmitJSONError(os.Stdout, "", []JSONError{NewJSONError(err)})
		return code
	}

	fmt.Fprintln(w, RenderError("Error: "+err.Error()))
	if suggestion := suggestionFor(err); suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
	}
	return code
}

// suggestionFor walks the error chain to find a UserVisibleError.
func suggestionFor(err error) string {
	for err != nil {
		if userErr, ok := err.(flowerrors.UserVisibleError); ok {
			if userErr.IsUserVisible() {
				return userErr.Suggestion()
			}
			return ""
		}
		err = errors.Unwrap(err)
	}
	return ""
}
