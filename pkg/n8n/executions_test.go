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
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
	"github.com/woakes070048/n8n-flow-manager/pkg/model"
)

func TestExecutions_List(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api/v1/executions", r.URL.Path)
		assert.Equal(t, "wf1", q.Get("workflowId"))
		assert.Equal(t, "error", q.Get("status"))
		assert.Equal(t, "250", q.Get("limit"))
		writeJSON(w, http.StatusOK, `{"data": [
			{"id": 12, "workflowId": "wf1", "status": "error", "finished": false},
			{"id": "13", "workflowId": "wf1", "finished": true}
		], "nextCursor": null}`)
	}))

	execs, err := client.Executions.List(context.Background(), ListExecutionsOptions{WorkflowID: "wf1", Status: model.StatusError})
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, model.ID("12"), execs[0].ID)
	assert.True(t, execs[0].IsFailed())
	assert.Equal(t, model.StatusSuccess, execs[1].Status)
}

func TestExecutions_Get(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/executions/9", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("includeData"))
		writeJSON(w, http.StatusOK, `{"id": 9, "workflowId": "wf1", "status": "success", "finished": true,
			"data": {"resultData": {"runData": {}}}}`)
	}))

	exec, err := client.Executions.Get(context.Background(), "9", true)
	require.NoError(t, err)
	assert.True(t, exec.IsSuccessful())
	require.NotNil(t, exec.Data)
}

func TestExecutions_GetUnknownStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id": 9, "status": "exploded"}`)
	}))

	_, err := client.Executions.Get(context.Background(), "9", false)
	var verr *flowerrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "status", verr.Field)
}

func TestExecutions_GetNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"message": "not found"}`)
	}))

	_, err := client.Executions.Get(context.Background(), "404", false)
	var nf *flowerrors.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "execution", nf.Resource)
}

func TestExecutions_DeleteAndRetry(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/executions/5":
			writeJSON(w, http.StatusOK, `{"id": 5, "status": "failed"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/executions/5/retry":
			writeJSON(w, http.StatusOK, `{"id": 6, "status": "running", "retryOf": 5}`)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))

	require.NoError(t, client.Executions.Delete(context.Background(), "5"))

	retried, err := client.Executions.Retry(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, model.ID("6"), retried.ID)
	assert.Equal(t, model.ID("5"), retried.RetryOf)
}

func TestExecutions_Trigger(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantID   string
		status   model.Status
	}{
		{"full execution", `{"id": 101, "workflowId": "wf1", "status": "running"}`, "101", model.StatusRunning},
		{"execution id", `{"executionId": "102"}`, "102", model.StatusNew},
		{"nested execution id", `{"data": {"executionId": 103}}`, "103", model.StatusNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/v1/workflows/wf1/execute", r.URL.Path)
				body, _ := io.ReadAll(r.Body)
				assert.Empty(t, body)
				writeJSON(w, http.StatusOK, tt.response)
			}))

			exec, err := client.Executions.Trigger(context.Background(), "wf1", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, exec.ID.String())
			assert.Equal(t, tt.status, exec.Status)
		})
	}
}

func TestExecutions_TriggerWithoutID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data": null}`)
	}))

	_, err := client.Executions.Trigger(context.Background(), "wf1", nil)
	var verr *flowerrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "executionId", verr.Field)
}
