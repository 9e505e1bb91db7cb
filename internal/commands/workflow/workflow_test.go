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

package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
	"github.com/woakes070048/n8n-flow-manager/internal/testing/mock"
	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
	"github.com/woakes070048/n8n-flow-manager/pkg/model"
)

const workflowTemplate = `{
  "name": "{{ name }}",
  "nodes": [
    {"name": "Start", "type": "n8n-nodes-base.manualTrigger", "typeVersion": 1, "position": [0, 0], "parameters": {}},
    {"name": "Set", "type": "n8n-nodes-base.set", "typeVersion": 3, "position": [200, 0],
     "parameters": {"value": "={{ $json.id }}", "retries": {{ retries ?? 1 }}}}
  ],
  "connections": {"Start": {"main": [[{"node": "Set", "type": "main", "index": 0}]]}},
  "settings": {}
}`

func execute(t *testing.T, srv *mock.Server, args ...string) (string, error) {
	t.Helper()

	root := &cobra.Command{Use: "n8nctl", SilenceUsage: true, SilenceErrors: true}
	shared.RegisterGlobalFlags(root.PersistentFlags())
	root.AddCommand(NewCommand())
	t.Cleanup(shared.ResetFlagsForTest)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--base-url", srv.URL, "--api-key", mock.APIKey}, args...))

	err := root.Execute()
	return out.String(), err
}

func testWorkflow(name string, active bool, tags ...string) model.Workflow {
	wf := model.Workflow{
		Name:   name,
		Active: active,
		Nodes: []model.Node{
			{Name: "Start", Type: "n8n-nodes-base.manualTrigger", Position: []float64{0, 0}},
		},
	}
	for _, tag := range tags {
		wf.Tags = append(wf.Tags, model.Tag{Name: tag})
	}
	return wf
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestListCommand(t *testing.T) {
	mock.Isolate(t)
	srv := mock.NewServer(t)
	srv.AddWorkflow(testWorkflow("Billing", true, "finance"))
	srv.AddWorkflow(testWorkflow("Onboarding", false))

	out, err := execute(t, srv, "workflows", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Billing")
	assert.Contains(t, out, "Onboarding")
	assert.Contains(t, out, "finance")

	out, err = execute(t, srv, "workflows", "list", "--active")
	require.NoError(t, err)
	assert.Contains(t, out, "Billing")
	assert.NotContains(t, out, "Onboarding")

	out, err = execute(t, srv, "workflows", "list", "--json")
	require.NoError(t, err)
	var resp listResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Workflows, 2)

	out, err = execute(t, srv, "workflows", "list", "--inactive", "--jq", ".workflows[].name")
	require.NoError(t, err)
	assert.Equal(t, "Onboarding\n", out)

	_, err = execute(t, srv, "workflows", "list", "--active", "--inactive")
	assert.Error(t, err)
}

func TestGetCommand(t *testing.T) {
	mock.Isolate(t)
	srv := mock.NewServer(t)
	id := srv.AddWorkflow(testWorkflow("Billing", false, "finance"))

	out, err := execute(t, srv, "workflows", "get", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Billing")
	assert.Contains(t, out, "Start (n8n-nodes-base.manualTrigger)")

	path := filepath.Join(t.TempDir(), "billing.json")
	_, err = execute(t, srv, "workflows", "get", id, "--output", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	saved, err := model.ParseWorkflow(data)
	require.NoError(t, err)
	assert.Equal(t, id, saved.ID)

	_, err = execute(t, srv, "workflows", "get", "404")
	var nf *flowerrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "workflow", nf.Resource)
}

func TestDeployCommand(t *testing.T) {
	mock.Isolate(t)
	srv := mock.NewServer(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "billing.json", workflowTemplate)

	out, err := execute(t, srv, "workflows", "deploy", path, "--var", "name=Billing", "--var", "retries:=5", "--activate")
	require.NoError(t, err)
	assert.Contains(t, out, "created")

	require.Equal(t, 1, srv.WorkflowCount())
	wf, ok := srv.Workflow("1")
	require.True(t, ok)
	assert.Equal(t, "Billing", wf.Name)
	assert.True(t, wf.Active)

	set, ok := wf.NodeByName("Set")
	require.True(t, ok)
	value, _ := set.Parameters["value"].AsString()
	assert.Equal(t, "={{ $json.id }}", value)
	retries, _ := set.Parameters["retries"].AsFloat()
	assert.Equal(t, 5.0, retries)
}

func TestDeployCommand_Glob(t *testing.T) {
	mock.Isolate(t)
	srv := mock.NewServer(t)
	dir := t.TempDir()
	writeFile(t, dir, "a/one.json", strings.Replace(workflowTemplate, "{{ name }}", "One", 1))
	writeFile(t, dir, "b/two.json", strings.Replace(workflowTemplate, "{{ name }}", "Two", 1))

	out, err := execute(t, srv, "workflows", "deploy", filepath.Join(dir, "**", "*.json"), "--var", "retries:=2", "--json")
	require.NoError(t, err)

	var resp deployResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "One", resp.Items[0].Name)
	assert.Equal(t, "Two", resp.Items[1].Name)
	assert.Equal(t, 2, srv.WorkflowCount())
}

func TestDeployCommand_UpdateExisting(t *testing.T) {
	mock.Isolate(t)
	srv := mock.NewServer(t)
	id := srv.AddWorkflow(testWorkflow("Billing", false))
	path := writeFile(t, t.TempDir(), "billing.json", workflowTemplate)

	out, err := execute(t, srv, "workflows", "deploy", path, "--var", "name=Billing", "--update-existing")
	require.NoError(t, err)
	assert.Contains(t, out, "updated")

	assert.Equal(t, 1, srv.WorkflowCount())
	assert.Equal(t, 1, srv.CountRequests("PUT /api/v1/workflows/"+id))
	wf, _ := srv.Workflow(id)
	assert.Len(t, wf.Nodes, 2)
}

func TestDeployCommand_DryRun(t *testing.T) {
	mock.Isolate(t)
	srv := mock.NewServer(t)
	path := writeFile(t, t.TempDir(), "billing.json", workflowTemplate)

	out, err := execute(t, srv, "workflows", "deploy", path, "--var", "name=Billing", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "valid")
	assert.Zero(t, srv.CountRequests("POST"))
	assert.Zero(t, srv.WorkflowCount())
}

func TestDeployCommand_Failures(t *testing.T) {
	mock.Isolate(t)
	srv := mock.NewServer(t)
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", workflowTemplate)
	undefined := writeFile(t, dir, "undefined.json", strings.Replace(workflowTemplate, "{{ name }}", "{{ missing }}", 1))

	_, err := execute(t, srv, "workflows", "deploy", undefined, "--var", "name=x")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidWorkflow, shared.ExitCodeFor(err))

	var renderErr *flowerrors.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "missing", renderErr.Name)

	_, err = execute(t, srv, "workflows", "deploy", good, undefined, "--var", "name=Good")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Equal(t, 1, srv.WorkflowCount())

	_, err = execute(t, srv, "workflows", "deploy", filepath.Join(dir, "nothing", "*.json"))
	assert.Error(t, err)
}

func TestUpdateCommand(t *testing.T) {
	mock.Isolate(t)
	srv := mock.NewServer(t)
	id := srv.AddWorkflow(testWorkflow("Old", false))
	path := writeFile(t, t.TempDir(), "billing.json", workflowTemplate)

	out, err := execute(t, srv, "workflows", "update", id, path, "--var", "name=New")
	require.NoError(t, err)
	assert.Contains(t, out, "Workflow 'New' updated")

	wf, _ := srv.Workflow(id)
	assert.Equal(t, "New", wf.Name)

	_, err = execute(t, srv, "workflows", "update", "999", path, "--var", "name=New")
	var nf *flowerrors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRenderCommand(t *testing.T) {
	mock.Isolate(t)
	srv := mock.NewServer(t)
	dir := t.TempDir()
	writeFile(t, dir, "partials/start.json", `{"name": "Start", "type": "n8n-nodes-base.manualTrigger", "position": [0, 0], "parameters": {}}`)
	writeFile(t, dir, "main.json", `{
  "name": "{{ upper(name) }}",
  "nodes": [{% include "partials/start.json" %}],
  "connections": {}
}`)

	out, err := execute(t, srv, "workflows", "render", "main.json", "--template-dir", dir, "--var", "name=billing")
	require.NoError(t, err)
	wf, err := model.ParseWorkflow([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "BILLING", wf.Name)
	assert.Len(t, wf.Nodes, 1)

	out, err = execute(t, srv, "workflows", "render", filepath.Join(dir, "main.json"), "--var", "name=x", "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "X"`)
	assert.Zero(t, len(srv.Requests()), "render must not call the API")

	_, err = execute(t, srv, "workflows", "render", filepath.Join(dir, "main.json"))
	assert.Equal(t, shared.ExitInvalidWorkflow, shared.ExitCodeFor(err))
}

func TestDeleteCommand(t *testing.T) {
	mock.Isolate(t)
	srv := mock.NewServer(t)
	id := srv.AddWorkflow(testWorkflow("Billing", false))

	_, err := execute(t, srv, "workflows", "delete", id)
	require.ErrorIs(t, err, shared.ErrConfirmationRequired)
	assert.Equal(t, 1, srv.WorkflowCount())

	out, err := execute(t, srv, "workflows", "delete", id, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted workflow "+id)
	assert.Zero(t, srv.WorkflowCount())
}

func TestActivateDeactivateCommands(t *testing.T) {
	mock.Isolate(t)
	srv := mock.NewServer(t)
	id := srv.AddWorkflow(testWorkflow("Billing", false))

	out, err := execute(t, srv, "workflows", "activate", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Workflow 'Billing' activated")
	wf, _ := srv.Workflow(id)
	assert.True(t, wf.Active)

	_, err = execute(t, srv, "workflows", "deactivate", id)
	require.NoError(t, err)
	wf, _ = srv.Workflow(id)
	assert.False(t, wf.Active)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "billing.json", "{}")
	writeFile(t, dir, "other.json", "{}")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		changed []string
	)
	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, []string{path}, 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)), func(p string) {
			mu.Lock()
			changed = append(changed, p)
			mu.Unlock()
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		writeFile(t, dir, "billing.json", `{"n": 1}`)
	}
	writeFile(t, dir, "other.json", `{"n": 2}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changed) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	for _, p := range changed {
		assert.Equal(t, path, p)
	}
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestDeployErr(t *testing.T) {
	assert.NoError(t, deployErr(2, nil))

	err := deployErr(2, []error{&flowerrors.ValidationError{Message: "bad"}})
	assert.Equal(t, shared.ExitInvalidWorkflow, shared.ExitCodeFor(err))

	err = deployErr(2, []error{&flowerrors.ValidationError{Message: "bad"}, errors.New("network")})
	assert.Equal(t, shared.ExitGeneralError, shared.ExitCodeFor(err))
}
