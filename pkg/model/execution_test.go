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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExecution(t *testing.T) {
	doc := `{
	  "id": 1042,
	  "workflowId": "wf1",
	  "status": "error",
	  "finished": false,
	  "mode": "manual",
	  "retryOf": null,
	  "startedAt": "2024-03-01T10:00:00.000Z",
	  "stoppedAt": "2024-03-01T10:00:02.500Z",
	  "data": {"resultData": {"error": {"message": "Bad request - please check your parameters"}}}
	}`

	e, err := ParseExecution([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, ID("1042"), e.ID)
	assert.Equal(t, StatusError, e.Status)
	assert.True(t, e.IsFailed())
	assert.True(t, e.IsTerminal())
	assert.False(t, e.IsSuccessful())
	assert.Equal(t, 2500*time.Millisecond, e.Duration())
	assert.Equal(t, "Bad request - please check your parameters", e.ErrorMessage())
	assert.Empty(t, e.RetryOf)
}

func TestParseExecution_StatusDerivedFromFinished(t *testing.T) {
	done, err := ParseExecution([]byte(`{"id": "1", "finished": true}`))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, done.Status)

	running, err := ParseExecution([]byte(`{"id": "2", "finished": false}`))
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, running.Status)
	assert.True(t, running.IsRunning())
}

func TestParseExecution_Invalid(t *testing.T) {
	_, err := ParseExecution([]byte(`{"id": "1", "status": "exploded"}`))
	requireValidationError(t, err, "status", "oneof")

	_, err = ParseExecution([]byte(`{"status": "success"}`))
	requireValidationError(t, err, "id", "required")

	_, err = ParseExecution([]byte(`{"id": true}`))
	require.Error(t, err)
}

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		status     Status
		successful bool
		failed     bool
		terminal   bool
	}{
		{StatusNew, false, false, false},
		{StatusRunning, false, false, false},
		{StatusWaiting, false, false, false},
		{StatusSuccess, true, false, true},
		{StatusFailed, false, true, true},
		{StatusError, false, true, true},
		{StatusCanceled, false, true, true},
		{StatusCrashed, false, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.successful, tt.status.IsSuccessful())
			assert.Equal(t, tt.failed, tt.status.IsFailed())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" Success ")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, st)

	_, err = ParseStatus("unknown")
	assert.Error(t, err)
}

func TestParseExecutionList(t *testing.T) {
	list, err := ParseExecutionList([]byte(`[{"id": 1, "status": "success"}, {"id": "2", "status": "running"}]`))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ID("1"), list[0].ID)
}
