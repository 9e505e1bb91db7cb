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

// Package backup saves workflows to a directory of JSON files and restores
// them from one.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"

	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
	"github.com/woakes070048/n8n-flow-manager/pkg/model"
	"github.com/woakes070048/n8n-flow-manager/pkg/n8n"
)

// DefaultPattern matches every backup file in a directory tree.
const DefaultPattern = "**/*.json"

// maxNameLength bounds the sanitized name part of a file name.
const maxNameLength = 100

// Action is what happened to one workflow.
type Action string

const (
	ActionSaved   Action = "saved"
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionPlanned Action = "planned"
	ActionFailed  Action = "failed"
)

// Item reports the result for one workflow or file.
type Item struct {
	File       string `json:"file"`
	WorkflowID string `json:"workflow_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Action     Action `json:"action"`
	Error      string `json:"error,omitempty"`
}

// Summary collects the per-item results of a backup or restore.
type Summary struct {
	Items []Item `json:"items"`
}

// Failed counts failed items.
func (s *Summary) Failed() int {
	n := 0
	for _, it := range s.Items {
		if it.Action == ActionFailed {
			n++
		}
	}
	return n
}

// Err returns an error when any item failed.
func (s *Summary) Err() error {
	if n := s.Failed(); n > 0 {
		return fmt.Errorf("%d of %d workflows failed", n, len(s.Items))
	}
	return nil
}

// Source lists workflows to back up.
type Source interface {
	List(ctx context.Context, opts n8n.ListWorkflowsOptions) ([]model.Workflow, error)
}

// Target receives restored workflows.
type Target interface {
	Create(ctx context.Context, w *model.Workflow) (*model.Workflow, error)
	Update(ctx context.Context, id string, w *model.Workflow) (*model.Workflow, error)
}

var (
	_ Source = (*n8n.WorkflowService)(nil)
	_ Target = (*n8n.WorkflowService)(nil)
)

// SanitizeName replaces every character other than letters, digits, '-'
// and '_' with '_'.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	out := []rune(b.String())
	if len(out) > maxNameLength {
		out = out[:maxNameLength]
	}
	if len(out) == 0 {
		return "workflow"
	}
	return string(out)
}

// FileName returns the backup file name for w: "<id>_<sanitized name>.json".
func FileName(w *model.Workflow) string {
	return fmt.Sprintf("%s_%s.json", SanitizeName(w.ID), SanitizeName(w.Name))
}

// BackupOptions filters which workflows are saved.
type BackupOptions struct {
	ActiveOnly bool
	Tags       []string
}

// Backup writes every listed workflow to dir, one indented JSON file each.
// Write failures are recorded per item and do not stop the run.
func Backup(ctx context.Context, src Source, dir string, opts BackupOptions, logger *slog.Logger) (*Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	listOpts := n8n.ListWorkflowsOptions{Tags: opts.Tags}
	if opts.ActiveOnly {
		active := true
		listOpts.Active = &active
	}

	workflows, err := src.List(ctx, listOpts)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	summary := &Summary{}
	for i := range workflows {
		w := &workflows[i]
		item := Item{File: FileName(w), WorkflowID: w.ID, Name: w.Name, Action: ActionSaved}
		if err := writeWorkflow(filepath.Join(dir, item.File), w); err != nil {
			item.Action = ActionFailed
			item.Error = err.Error()
			logger.Warn("backup failed", "workflow_id", w.ID, "error", err)
		} else {
			logger.Debug("workflow saved", "workflow_id", w.ID, "file", item.File)
		}
		summary.Items = append(summary.Items, item)
	}
	return summary, nil
}

func writeWorkflow(path string, w *model.Workflow) error {
	data, err := model.MarshalWorkflowIndent(w)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// RestoreOptions controls how backup files are applied.
type RestoreOptions struct {
	// Pattern selects files below the directory. Empty means DefaultPattern.
	Pattern string

	// UpdateExisting updates the workflow with the saved ID instead of
	// creating a copy. Workflows whose ID no longer exists are created.
	UpdateExisting bool

	// DryRun parses and validates files without calling the API.
	DryRun bool
}

// Restore applies every backup file in dir matching opts.Pattern, in
// sorted order. Per-file failures are recorded and do not stop the run.
func Restore(ctx context.Context, dst Target, dir string, opts RestoreOptions, logger *slog.Logger) (*Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pattern := opts.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("backup directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("backup directory: %s is not a directory", dir)
	}

	files, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("match %q: %w", pattern, err)
	}
	sort.Strings(files)

	summary := &Summary{}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		item := restoreFile(ctx, dst, filepath.Join(dir, filepath.FromSlash(rel)), opts)
		item.File = rel
		if item.Action == ActionFailed {
			logger.Warn("restore failed", "file", rel, "error", item.Error)
		} else {
			logger.Debug("workflow restored", "file", rel, "action", item.Action, "workflow_id", item.WorkflowID)
		}
		summary.Items = append(summary.Items, item)
	}
	return summary, nil
}

func restoreFile(ctx context.Context, dst Target, path string, opts RestoreOptions) Item {
	fail := func(err error) Item {
		return Item{Action: ActionFailed, Error: err.Error()}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(err)
	}
	w, err := model.ParseWorkflow(data)
	if err != nil {
		return fail(err)
	}
	item := Item{WorkflowID: w.ID, Name: w.Name}
	if opts.DryRun {
		item.Action = ActionPlanned
		return item
	}

	if opts.UpdateExisting && w.ID != "" {
		updated, err := dst.Update(ctx, w.ID, w)
		if err == nil {
			item.WorkflowID = updated.ID
			item.Action = ActionUpdated
			return item
		}
		var nf *flowerrors.NotFoundError
		if !errors.As(err, &nf) {
			item.Action = ActionFailed
			item.Error = err.Error()
			return item
		}
	}

	created, err := dst.Create(ctx, w)
	if err != nil {
		item.Action = ActionFailed
		item.Error = err.Error()
		return item
	}
	item.WorkflowID = created.ID
	item.Action = ActionCreated
	return item
}

// ExpandPatterns resolves file arguments that may contain doublestar
// globs. Plain paths are returned as given; a glob with no matches is an
// error. The result is deduplicated and keeps argument order.
func ExpandPatterns(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			add(arg)
			continue
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("match %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", arg)
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(m)
		}
	}
	return out, nil
}
