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
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/woakes070048/n8n-flow-manager/pkg/model"
)

// WorkflowService manages workflows.
type WorkflowService struct {
	client *Client
}

// ListWorkflowsOptions filters List.
type ListWorkflowsOptions struct {
	Active *bool
	Tags   []string

	// Limit caps the number of workflows returned; zero returns all.
	Limit int
}

// List returns the workflows matching opts, following pagination.
func (s *WorkflowService) List(ctx context.Context, opts ListWorkflowsOptions) ([]model.Workflow, error) {
	query := url.Values{}
	if opts.Active != nil {
		query.Set("active", strconv.FormatBool(*opts.Active))
	}
	if len(opts.Tags) > 0 {
		query.Set("tags", strings.Join(opts.Tags, ","))
	}
	workflows, err := listAll(ctx, s.client, "/workflows", query, opts.Limit, model.ParseWorkflowList)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return workflows, nil
}

// Get fetches one workflow.
func (s *WorkflowService) Get(ctx context.Context, id string) (*model.Workflow, error) {
	raw, err := s.client.Request(ctx, http.MethodGet, "/workflows/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, notFound(err, "workflow", id)
	}
	return model.ParseWorkflow(raw)
}

// Create validates w locally and creates it. The returned workflow carries
// the ID n8n assigned.
func (s *WorkflowService) Create(ctx context.Context, w *model.Workflow) (*model.Workflow, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	raw, err := s.client.Request(ctx, http.MethodPost, "/workflows", w.CreatePayload(), nil)
	if err != nil {
		return nil, rejected(err, "workflow")
	}
	return model.ParseWorkflow(raw)
}

// Update replaces the workflow with the given ID.
func (s *WorkflowService) Update(ctx context.Context, id string, w *model.Workflow) (*model.Workflow, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	raw, err := s.client.Request(ctx, http.MethodPut, "/workflows/"+url.PathEscape(id), w.CreatePayload(), nil)
	if err != nil {
		return nil, rejected(notFound(err, "workflow", id), "workflow")
	}
	return model.ParseWorkflow(raw)
}

// Delete removes a workflow.
func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	if _, err := s.client.Request(ctx, http.MethodDelete, "/workflows/"+url.PathEscape(id), nil, nil); err != nil {
		return notFound(err, "workflow", id)
	}
	return nil
}

// Activate turns on the workflow's triggers.
func (s *WorkflowService) Activate(ctx context.Context, id string) (*model.Workflow, error) {
	return s.setActive(ctx, id, "activate")
}

// Deactivate turns off the workflow's triggers.
func (s *WorkflowService) Deactivate(ctx context.Context, id string) (*model.Workflow, error) {
	return s.setActive(ctx, id, "deactivate")
}

func (s *WorkflowService) setActive(ctx context.Context, id, action string) (*model.Workflow, error) {
	raw, err := s.client.Request(ctx, http.MethodPost, "/workflows/"+url.PathEscape(id)+"/"+action, nil, nil)
	if err != nil {
		return nil, notFound(err, "workflow", id)
	}
	return model.ParseWorkflow(raw)
}
