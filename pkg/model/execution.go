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
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
)

// Status is the remote state of an execution.
type Status string

const (
	StatusNew      Status = "new"
	StatusRunning  Status = "running"
	StatusWaiting  Status = "waiting"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusError    Status = "error"
	StatusCanceled Status = "canceled"
	StatusCrashed  Status = "crashed"
)

var knownStatuses = map[Status]bool{
	StatusNew:      true,
	StatusRunning:  true,
	StatusWaiting:  true,
	StatusSuccess:  true,
	StatusFailed:   true,
	StatusError:    true,
	StatusCanceled: true,
	StatusCrashed:  true,
}

// ParseStatus validates s against the statuses n8n reports.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !knownStatuses[st] {
		return "", &flowerrors.ValidationError{
			Field:   "status",
			Rule:    "oneof",
			Message: fmt.Sprintf("unknown execution status %q", s),
		}
	}
	return st, nil
}

// IsSuccessful reports whether the execution finished successfully.
func (s Status) IsSuccessful() bool { return s == StatusSuccess }

// IsFailed reports whether the execution ended without success. failed and
// error are treated alike.
func (s Status) IsFailed() bool {
	switch s {
	case StatusFailed, StatusError, StatusCanceled, StatusCrashed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can occur.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusNew, StatusRunning, StatusWaiting:
		return false
	}
	return true
}

// ID is a remote identifier. n8n has returned both numbers and strings for
// execution IDs across versions; both decode to the same string.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*id = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("identifier must be a string or number: %w", err)
		}
		*id = ID(n.String())
	}
	return nil
}

// String returns the identifier.
func (id ID) String() string { return string(id) }

// Execution is one run of a workflow on the n8n instance.
type Execution struct {
	ID             ID         `json:"id" validate:"required"`
	WorkflowID     ID         `json:"workflowId"`
	Status         Status     `json:"status"`
	Finished       bool       `json:"finished"`
	Mode           string     `json:"mode,omitempty"`
	RetryOf        ID         `json:"retryOf,omitempty"`
	RetrySuccessID ID         `json:"retrySuccessId,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	StoppedAt      *time.Time `json:"stoppedAt,omitempty"`
	WaitTill       *time.Time `json:"waitTill,omitempty"`
	Data           *Value     `json:"data,omitempty"`
	WorkflowData   *Value     `json:"workflowData,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. A missing status is derived
// from the finished flag.
func (e *Execution) UnmarshalJSON(data []byte) error {
	type plain Execution
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Status == "" {
		if p.Finished {
			p.Status = StatusSuccess
		} else {
			p.Status = StatusRunning
		}
	}
	*e = Execution(p)
	return nil
}

// Validate checks the identifier and status.
func (e *Execution) Validate() error {
	if err := validateStruct(e); err != nil {
		return err
	}
	if _, err := ParseStatus(string(e.Status)); err != nil {
		return err
	}
	return nil
}

// IsSuccessful reports whether the execution finished successfully.
func (e *Execution) IsSuccessful() bool { return e.Status.IsSuccessful() }

// IsFailed reports whether the execution ended in failed, error, canceled or crashed.
func (e *Execution) IsFailed() bool { return e.Status.IsFailed() }

// IsTerminal reports whether the execution reached a final status.
func (e *Execution) IsTerminal() bool { return e.Status.IsTerminal() }

// IsRunning reports whether the execution may still change.
func (e *Execution) IsRunning() bool { return !e.Status.IsTerminal() }

// Duration returns the run time, or zero when the start or stop time is unknown.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.StoppedAt == nil {
		return 0
	}
	return e.StoppedAt.Sub(*e.StartedAt)
}

// ErrorMessage digs the failure message out of the result payload, if any.
func (e *Execution) ErrorMessage() string {
	if e.Data == nil {
		return ""
	}
	result, _ := e.Data.Get("resultData")
	errVal, ok := result.Get("error")
	if !ok {
		return ""
	}
	if msg, ok := errVal.Get("message"); ok {
		if s, ok := msg.AsString(); ok {
			return s
		}
	}
	return ""
}

// ParseExecution decodes and validates an execution document.
func ParseExecution(data []byte) (*Execution, error) {
	var e Execution
	if err := decode(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// ParseExecutionList decodes a JSON array of executions, validating each.
func ParseExecutionList(data []byte) ([]Execution, error) {
	var raw []json.RawMessage
	if err := decode(data, &raw); err != nil {
		return nil, err
	}
	out := make([]Execution, 0, len(raw))
	for i, r := range raw {
		e, err := ParseExecution(r)
		if err != nil {
			return nil, prefixField(err, indexPath("", i))
		}
		out = append(out, *e)
	}
	return out, nil
}
