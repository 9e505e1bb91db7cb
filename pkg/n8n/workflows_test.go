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
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
	"github.com/woakes070048/n8n-flow-manager/pkg/model"
)

func workflowJSON(id, name string) string {
	return fmt.Sprintf(`{"id": %q, "name": %q, "active": false,
		"nodes": [{"id": "n1", "name": "Start", "type": "n8n-nodes-base.manualTrigger", "typeVersion": 1, "position": [0, 0], "parameters": {}, "webhookId": "w"}],
		"connections": {}, "settings": {}}`, id, name)
}

func TestWorkflows_ListFollowsCursor(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("active"))
		assert.Equal(t, "prod,billing", q.Get("tags"))
		switch q.Get("cursor") {
		case "":
			writeJSON(w, http.StatusOK, `{"data": [`+workflowJSON("1", "A")+`,`+workflowJSON("2", "B")+`], "nextCursor": "page2"}`)
		case "page2":
			writeJSON(w, http.StatusOK, `{"data": [`+workflowJSON("3", "C")+`], "nextCursor": null}`)
		default:
			t.Errorf("unexpected cursor %q", q.Get("cursor"))
		}
	}))

	active := true
	workflows, err := client.Workflows.List(context.Background(), ListWorkflowsOptions{Active: &active, Tags: []string{"prod", "billing"}})
	require.NoError(t, err)
	require.Len(t, workflows, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{workflows[0].Name, workflows[1].Name, workflows[2].Name})
	assert.Equal(t, int32(2), calls.Load())
}

func TestWorkflows_ListLimit(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, `{"data": [`+workflowJSON("1", "A")+`,`+workflowJSON("2", "B")+`], "nextCursor": "more"}`)
	}))

	workflows, err := client.Workflows.List(context.Background(), ListWorkflowsOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, workflows, 2)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWorkflows_GetNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"message": "Not Found"}`)
	}))

	_, err := client.Workflows.Get(context.Background(), "missing")
	var nf *flowerrors.NotFoundError
	require.True(t, errors.As(err, &nf), "expected NotFoundError, got %v", err)
	assert.Equal(t, "workflow", nf.Resource)
	assert.Equal(t, "missing", nf.ID)

	var te *flowerrors.TransportError
	assert.True(t, errors.As(err, &te))
}

func TestWorkflows_Create(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/workflows", r.URL.Path)

		var body map[string]json.RawMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "id")
		assert.NotContains(t, body, "active")
		assert.Contains(t, body, "settings")
		assert.NotContains(t, string(body["nodes"]), "webhookId")

		writeJSON(w, http.StatusOK, workflowJSON("new-id", "Created"))
	}))

	w, err := model.ParseWorkflow([]byte(workflowJSON("", "Created")))
	require.NoError(t, err)

	created, err := client.Workflows.Create(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, "new-id", created.ID)
}

func TestWorkflows_CreateRejectedRemotely(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"message": "request/body must have required property 'settings'"}`)
	}))

	w, err := model.ParseWorkflow([]byte(workflowJSON("", "Bad")))
	require.NoError(t, err)

	_, err = client.Workflows.Create(context.Background(), w)
	var verr *flowerrors.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	assert.Equal(t, "remote", verr.Rule)
	assert.Contains(t, verr.Message, "required property 'settings'")
}

func TestWorkflows_CreateInvalidSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	_, err := client.Workflows.Create(context.Background(), &model.Workflow{Nodes: []model.Node{}})
	var verr *flowerrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Field)
	assert.Zero(t, calls.Load())
}

func TestWorkflows_UpdateUsesPut(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/workflows/42", r.URL.Path)
		writeJSON(w, http.StatusOK, workflowJSON("42", "Renamed"))
	}))

	w, err := model.ParseWorkflow([]byte(workflowJSON("42", "Renamed")))
	require.NoError(t, err)
	updated, err := client.Workflows.Update(context.Background(), "42", w)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
}

func TestWorkflows_ActivateDeactivate(t *testing.T) {
	var paths []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		writeJSON(w, http.StatusOK, workflowJSON("7", "Flow"))
	}))

	_, err := client.Workflows.Activate(context.Background(), "7")
	require.NoError(t, err)
	_, err = client.Workflows.Deactivate(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/v1/workflows/7/activate", "/api/v1/workflows/7/deactivate"}, paths)
}

func TestWorkflows_Delete(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		_, _ = io.Copy(io.Discard, r.Body)
		if r.URL.Path == "/api/v1/workflows/gone" {
			writeJSON(w, http.StatusNotFound, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, workflowJSON("1", "Deleted"))
	}))

	require.NoError(t, client.Workflows.Delete(context.Background(), "1"))

	err := client.Workflows.Delete(context.Background(), "gone")
	var nf *flowerrors.NotFoundError
	assert.True(t, errors.As(err, &nf))
}
