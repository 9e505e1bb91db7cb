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

package orchestrator

import (
	"fmt"
	"time"

	"github.com/woakes070048/n8n-flow-manager/pkg/model"
)

// TriggerError means the workflow could not be started. No poll was issued
// and the trigger was not retried: re-running a workflow can have side
// effects, so that decision belongs to the caller.
type TriggerError struct {
	WorkflowID string
	Cause      error
}

// Error implements the error interface.
func (e *TriggerError) Error() string {
	return fmt.Sprintf("trigger workflow %s: %v", e.WorkflowID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TriggerError) Unwrap() error { return e.Cause }

// ErrorType implements ErrorClassifier.
func (e *TriggerError) ErrorType() string { return "trigger" }

// IsRetryable implements ErrorClassifier.
func (e *TriggerError) IsRetryable() bool { return false }

// Stage names the step that failed.
func (e *TriggerError) Stage() string { return "trigger" }

// TimeoutError means the execution did not reach a terminal status before
// the deadline. Last is the most recent snapshot, nil if no poll succeeded.
type TimeoutError struct {
	ExecutionID string
	Timeout     time.Duration
	Last        *model.Execution
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	status := "unknown"
	if e.Last != nil {
		status = string(e.Last.Status)
	}
	return fmt.Sprintf("execution %s did not finish within %s (last status: %s)", e.ExecutionID, e.Timeout, status)
}

// ErrorType implements ErrorClassifier.
func (e *TimeoutError) ErrorType() string { return "timeout" }

// IsRetryable implements ErrorClassifier.
func (e *TimeoutError) IsRetryable() bool { return false }

// Stage names the step that failed.
func (e *TimeoutError) Stage() string { return "poll" }

// CanceledError means the caller's context ended the wait. ExecutionID is
// empty when cancellation happened before the trigger completed.
type CanceledError struct {
	ExecutionID string
	Cause       error
}

// Error implements the error interface.
func (e *CanceledError) Error() string {
	if e.ExecutionID == "" {
		return fmt.Sprintf("run canceled before trigger: %v", e.Cause)
	}
	return fmt.Sprintf("wait for execution %s canceled: %v", e.ExecutionID, e.Cause)
}

// Unwrap returns the context error.
func (e *CanceledError) Unwrap() error { return e.Cause }

// ErrorType implements ErrorClassifier.
func (e *CanceledError) ErrorType() string { return "canceled" }

// IsRetryable implements ErrorClassifier.
func (e *CanceledError) IsRetryable() bool { return false }

// Stage names the step that was interrupted.
func (e *CanceledError) Stage() string {
	if e.ExecutionID == "" {
		return "trigger"
	}
	return "poll"
}
