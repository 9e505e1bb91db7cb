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

package n8n

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
	"github.com/woakes070048/n8n-flow-manager/pkg/model"
)

// ExecutionService manages executions.
type ExecutionService struct {
	client *Client
}

// ListExecutionsOptions filters List.
type ListExecutionsOptions struct {
	WorkflowID  string
	Status      model.Status
	IncludeData bool

	// Limit caps the number of executions returned; zero returns all.
	Limit int
}

// List returns the executions matching opts, newest first.
func (s *ExecutionService) List(ctx context.Context, opts ListExecutionsOptions) ([]model.Execution, error) {
	query := url.Values{}
	if opts.WorkflowID != "" {
		query.Set("workflowId", opts.WorkflowID)
	}
	if opts.Status != "" {
		query.Set("status", string(opts.Status))
	}
	if opts.IncludeData {
		query.Set("includeData", "true")
	}
	executions, err := listAll(ctx, s.client, "/executions", query, opts.Limit, model.ParseExecutionList)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return executions, nil
}

// Get fetches one execution, with its result data when includeData is set.
func (s *ExecutionService) Get(ctx context.Context, id string, includeData bool) (*model.Execution, error) {
	query := url.Values{"includeData": {strconv.FormatBool(includeData)}}
	raw, err := s.client.Request(ctx, http.MethodGet, "/executions/"+url.PathEscape(id), nil, query)
	if err != nil {
		return nil, notFound(err, "execution", id)
	}
	return model.ParseExecution(raw)
}

// Delete removes an execution.
func (s *ExecutionService) Delete(ctx context.Context, id string) error {
	if _, err := s.client.Request(ctx, http.MethodDelete, "/executions/"+url.PathEscape(id), nil, nil); err != nil {
		return notFound(err, "execution", id)
	}
	return nil
}

// Retry re-runs a failed execution and returns the new execution.
func (s *ExecutionService) Retry(ctx context.Context, id string) (*model.Execution, error) {
	raw, err := s.client.Request(ctx, http.MethodPost, "/executions/"+url.PathEscape(id)+"/retry", nil, nil)
	if err != nil {
		return nil, notFound(err, "execution", id)
	}
	return model.ParseExecution(raw)
}

// triggerResponse covers the shapes n8n versions return from execute: a
// full execution, {"executionId": ...} or {"data": {"executionId": ...}}.
type triggerResponse struct {
	ID          model.ID        `json:"id"`
	ExecutionID model.ID        `json:"executionId"`
	Data        json.RawMessage `json:"data"`
}

// Trigger starts a workflow run. Input, when non-empty, is sent as the
// run's data. The returned execution may only carry its ID.
func (s *ExecutionService) Trigger(ctx context.Context, workflowID string, input map[string]any) (*model.Execution, error) {
	var body any
	if len(input) > 0 {
		body = map[string]any{"data": input}
	}
	raw, err := s.client.Request(ctx, http.MethodPost, "/workflows/"+url.PathEscape(workflowID)+"/execute", body, nil)
	if err != nil {
		return nil, notFound(err, "workflow", workflowID)
	}
	return parseTriggerResponse(raw, workflowID)
}

func parseTriggerResponse(raw json.RawMessage, workflowID string) (*model.Execution, error) {
	var tr triggerResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &tr); err != nil {
			return nil, &flowerrors.ValidationError{Rule: "json", Message: fmt.Sprintf("invalid trigger response: %v", err)}
		}
	}
	if tr.ID != "" {
		return model.ParseExecution(raw)
	}

	id := tr.ExecutionID
	if id == "" && len(tr.Data) > 0 {
		var nested struct {
			ExecutionID model.ID `json:"executionId"`
		}
		if err := json.Unmarshal(tr.Data, &nested); err == nil {
			id = nested.ExecutionID
		}
	}
	if id == "" {
		return nil, &flowerrors.ValidationError{
			Field:   "executionId",
			Rule:    "required",
			Message: "trigger response did not include an execution ID",
		}
	}
	return &model.Execution{ID: id, WorkflowID: model.ID(workflowID), Status: model.StatusNew}, nil
}
