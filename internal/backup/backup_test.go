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

package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
	"github.com/woakes070048/n8n-flow-manager/pkg/model"
	"github.com/woakes070048/n8n-flow-manager/pkg/n8n"
)

func sampleWorkflow(id, name string) model.Workflow {
	return model.Workflow{
		ID:   id,
		Name: name,
		Nodes: []model.Node{
			{Name: "Start", Type: "n8n-nodes-base.manualTrigger", Position: []float64{0, 0}},
		},
		Connections: model.Connections{},
	}
}

type fakeSource struct {
	workflows []model.Workflow
	gotOpts   n8n.ListWorkflowsOptions
	err       error
}

func (f *fakeSource) List(_ context.Context, opts n8n.ListWorkflowsOptions) ([]model.Workflow, error) {
	f.gotOpts = opts
	return f.workflows, f.err
}

type fakeTarget struct {
	existing map[string]bool
	created  []string
	updated  []string
	nextID   int
}

func (f *fakeTarget) Create(_ context.Context, w *model.Workflow) (*model.Workflow, error) {
	f.nextID++
	f.created = append(f.created, w.Name)
	out := *w
	out.ID = "new" + string(rune('0'+f.nextID))
	return &out, nil
}

func (f *fakeTarget) Update(_ context.Context, id string, w *model.Workflow) (*model.Workflow, error) {
	if !f.existing[id] {
		return nil, &flowerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	f.updated = append(f.updated, id)
	out := *w
	out.ID = id
	return &out, nil
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"Daily Report":      "Daily_Report",
		"a/b\\c:d":          "a_b_c_d",
		"keep-this_one":     "keep-this_one",
		"Größe 2":           "Größe_2",
		"":                  "workflow",
		"emoji 🚀 workflow": "emoji___workflow",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), "SanitizeName(%q)", in)
	}

	long := SanitizeName(string(make([]rune, 300)))
	assert.Len(t, []rune(long), maxNameLength)
}

func TestFileName(t *testing.T) {
	w := sampleWorkflow("42", "Sync: CRM -> Sheets")
	assert.Equal(t, "42_Sync__CRM_-__Sheets.json", FileName(&w))
}

func TestBackup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backups")
	src := &fakeSource{workflows: []model.Workflow{
		sampleWorkflow("1", "First"),
		sampleWorkflow("2", "Second flow"),
	}}

	summary, err := Backup(context.Background(), src, dir, BackupOptions{ActiveOnly: true, Tags: []string{"prod"}}, nil)
	require.NoError(t, err)
	require.NoError(t, summary.Err())
	require.Len(t, summary.Items, 2)

	require.NotNil(t, src.gotOpts.Active)
	assert.True(t, *src.gotOpts.Active)
	assert.Equal(t, []string{"prod"}, src.gotOpts.Tags)

	data, err := os.ReadFile(filepath.Join(dir, "2_Second_flow.json"))
	require.NoError(t, err)
	w, err := model.ParseWorkflow(data)
	require.NoError(t, err)
	assert.Equal(t, "Second flow", w.Name)
	assert.Equal(t, "2", w.ID)
}

func TestBackup_ListError(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	_, err := Backup(context.Background(), src, t.TempDir(), BackupOptions{}, nil)
	assert.ErrorContains(t, err, "boom")
}

func writeBackups(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	src := &fakeSource{workflows: []model.Workflow{
		sampleWorkflow("1", "Existing"),
		sampleWorkflow("2", "Gone"),
	}}
	_, err := Backup(context.Background(), src, dir, BackupOptions{}, nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"name":""}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))
	return dir
}

func TestRestore_CreatesCopies(t *testing.T) {
	dir := writeBackups(t)
	dst := &fakeTarget{existing: map[string]bool{"1": true}}

	summary, err := Restore(context.Background(), dst, dir, RestoreOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, summary.Items, 3)

	assert.Equal(t, []string{"Existing", "Gone"}, dst.created)
	assert.Empty(t, dst.updated)
	assert.Equal(t, 1, summary.Failed())
	assert.Error(t, summary.Err())

	byFile := map[string]Item{}
	for _, it := range summary.Items {
		byFile[it.File] = it
	}
	assert.Equal(t, ActionFailed, byFile["broken.json"].Action)
	assert.Equal(t, ActionCreated, byFile["1_Existing.json"].Action)
}

func TestRestore_UpdateExisting(t *testing.T) {
	dir := writeBackups(t)
	dst := &fakeTarget{existing: map[string]bool{"1": true}}

	summary, err := Restore(context.Background(), dst, dir, RestoreOptions{UpdateExisting: true, Pattern: "[0-9]*.json"}, nil)
	require.NoError(t, err)
	require.Len(t, summary.Items, 2)
	require.NoError(t, summary.Err())

	assert.Equal(t, []string{"1"}, dst.updated)
	assert.Equal(t, []string{"Gone"}, dst.created)
	assert.Equal(t, ActionUpdated, summary.Items[0].Action)
	assert.Equal(t, ActionCreated, summary.Items[1].Action)
}

func TestRestore_DryRun(t *testing.T) {
	dir := writeBackups(t)
	dst := &fakeTarget{}

	summary, err := Restore(context.Background(), dst, dir, RestoreOptions{DryRun: true}, nil)
	require.NoError(t, err)
	assert.Empty(t, dst.created)
	assert.Equal(t, 1, summary.Failed())
	for _, it := range summary.Items {
		if it.File != "broken.json" {
			assert.Equal(t, ActionPlanned, it.Action)
		}
	}
}

func TestRestore_Errors(t *testing.T) {
	_, err := Restore(context.Background(), &fakeTarget{}, filepath.Join(t.TempDir(), "missing"), RestoreOptions{}, nil)
	assert.Error(t, err)

	_, err = Restore(context.Background(), &fakeTarget{}, t.TempDir(), RestoreOptions{Pattern: "[unclosed"}, nil)
	assert.ErrorContains(t, err, "invalid pattern")
}

func TestExpandPatterns(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"a.json", "nested/b.json", "nested/deep/c.json", "nested/skip.yaml"} {
		full := filepath.Join(dir, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte("{}"), 0644))
	}

	got, err := ExpandPatterns([]string{
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, "**", "*.json"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, "nested", "b.json"),
		filepath.Join(dir, "nested", "deep", "c.json"),
	}, got)

	_, err = ExpandPatterns([]string{filepath.Join(dir, "*.yml")})
	assert.ErrorContains(t, err, "no files match")
}
