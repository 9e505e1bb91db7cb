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
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/internal/backup"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/completion"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
	"github.com/woakes070048/n8n-flow-manager/pkg/model"
	"github.com/woakes070048/n8n-flow-manager/pkg/n8n"
	"github.com/woakes070048/n8n-flow-manager/pkg/template"
)

// varFlags are the template variable flags shared by deploy, update and
// render.
type varFlags struct {
	vars     []string
	varsFile string
}

func (f *varFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.vars, "var", nil, "Template variable key=value, or key:=<json> for typed values (repeatable)")
	cmd.Flags().StringVar(&f.varsFile, "vars-file", "", "JSON or YAML file with template variables")
}

func (f *varFlags) load() (map[string]any, error) {
	vars, err := shared.ParseVars(f.vars, f.varsFile)
	if err != nil {
		return nil, &shared.ExitError{Code: shared.ExitGeneralError, Message: "invalid template variables", Cause: err}
	}
	return vars, nil
}

// WorkflowAPI is the part of the workflow service deploy uses.
type WorkflowAPI interface {
	List(ctx context.Context, opts n8n.ListWorkflowsOptions) ([]model.Workflow, error)
	Get(ctx context.Context, id string) (*model.Workflow, error)
	Create(ctx context.Context, w *model.Workflow) (*model.Workflow, error)
	Update(ctx context.Context, id string, w *model.Workflow) (*model.Workflow, error)
	Activate(ctx context.Context, id string) (*model.Workflow, error)
}

var _ WorkflowAPI = (*n8n.WorkflowService)(nil)

// deployer renders workflow files and pushes them to n8n.
type deployer struct {
	api            WorkflowAPI
	vars           map[string]any
	activate       bool
	updateExisting bool
	dryRun         bool
	logger         *slog.Logger

	// byName maps workflow names to IDs; loaded on first use.
	byName map[string]string
}

// deployFile renders, validates and pushes one file. A failure is
// reported both in the item and as the returned error.
func (d *deployer) deployFile(ctx context.Context, path string) (backup.Item, error) {
	item := backup.Item{File: path}
	fail := func(err error) (backup.Item, error) {
		item.Action = backup.ActionFailed
		item.Error = err.Error()
		d.logger.Warn("deploy failed", "file", path, "error", err)
		return item, err
	}

	wf, err := template.LoadWorkflowFile(path, d.vars)
	if err != nil {
		return fail(err)
	}
	item.Name = wf.Name

	if d.dryRun {
		item.WorkflowID = wf.ID
		item.Action = backup.ActionPlanned
		return item, nil
	}

	id, err := d.existingID(ctx, wf)
	if err != nil {
		return fail(err)
	}

	var result *model.Workflow
	if id != "" {
		result, err = d.api.Update(ctx, id, wf)
		item.Action = backup.ActionUpdated
	} else {
		result, err = d.api.Create(ctx, wf)
		item.Action = backup.ActionCreated
	}
	if err != nil {
		return fail(err)
	}
	item.WorkflowID = result.ID
	if d.byName != nil {
		d.byName[result.Name] = result.ID
	}

	if d.activate && !result.Active {
		if _, err := d.api.Activate(ctx, result.ID); err != nil {
			return fail(fmt.Errorf("activate %s: %w", result.ID, err))
		}
	}

	d.logger.Info("workflow deployed", "file", path, "workflow_id", item.WorkflowID, "action", item.Action)
	return item, nil
}

// existingID finds the workflow a deploy should update: the file's own ID
// when it still exists, otherwise a workflow with the same name.
func (d *deployer) existingID(ctx context.Context, wf *model.Workflow) (string, error) {
	if !d.updateExisting {
		return "", nil
	}
	if wf.ID != "" {
		_, err := d.api.Get(ctx, wf.ID)
		if err == nil {
			return wf.ID, nil
		}
		var nf *flowerrors.NotFoundError
		if !errors.As(err, &nf) {
			return "", err
		}
	}
	if d.byName == nil {
		all, err := d.api.List(ctx, n8n.ListWorkflowsOptions{})
		if err != nil {
			return "", err
		}
		d.byName = make(map[string]string, len(all))
		for _, w := range all {
			if _, dup := d.byName[w.Name]; !dup {
				d.byName[w.Name] = w.ID
			}
		}
	}
	return d.byName[wf.Name], nil
}

type deployResponse struct {
	shared.JSONResponse
	Items []backup.Item `json:"items"`
}

func newDeployCommand() *cobra.Command {
	var (
		vf             varFlags
		activate       bool
		updateExisting bool
		dryRun         bool
		watch          bool
	)

	cmd := &cobra.Command{
		Use:   "deploy <file|glob>...",
		Short: "Render and deploy workflow files",
		Long: `Render workflow files with the given variables, validate them, and create
them on the n8n instance.

Arguments may be files or doublestar globs ("workflows/**/*.json"). With
--update-existing, a file whose ID or name matches an existing workflow
updates it instead of creating a copy.

--watch keeps running and redeploys a file each time it changes; it
implies --update-existing.

See also: n8nctl workflows render, n8nctl restore`,
		Example: `  # Example 1: Deploy one file
  n8nctl workflows deploy workflows/billing.json

  # Example 2: Render a template for staging and activate it
  n8nctl workflows deploy templates/webhook.json --var env=staging --var retries:=3 --activate

  # Example 3: Sync a directory, updating workflows that already exist
  n8nctl workflows deploy 'workflows/**/*.json' --update-existing

  # Example 4: Check that every template renders without deploying
  n8nctl workflows deploy 'templates/*.json' --vars-file prod.yaml --dry-run

  # Example 5: Redeploy on save while editing
  n8nctl workflows deploy workflows/billing.json --watch`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := backup.ExpandPatterns(args)
			if err != nil {
				return err
			}
			vars, err := vf.load()
			if err != nil {
				return err
			}

			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			d := &deployer{
				api:            sess.Client.Workflows,
				vars:           vars,
				activate:       activate,
				updateExisting: updateExisting || watch,
				dryRun:         dryRun,
				logger:         sess.Logger,
			}

			out := cmd.OutOrStdout()
			summary := &backup.Summary{}
			var errs []error
			for _, f := range files {
				item, err := d.deployFile(cmd.Context(), f)
				summary.Items = append(summary.Items, item)
				if err != nil {
					errs = append(errs, err)
				}
			}

			if shared.GetJSON() {
				if err := shared.EmitJSON(out, deployResponse{
					JSONResponse: shared.NewJSONResponse("workflows deploy"),
					Items:        summary.Items,
				}); err != nil {
					return err
				}
			} else {
				printItems(out, summary.Items)
			}

			if watch {
				return watchFiles(cmd.Context(), files, sess.Logger, func(path string) {
					item, _ := d.deployFile(cmd.Context(), path)
					printItems(out, []backup.Item{item})
				})
			}
			return deployErr(len(files), errs)
		},
	}

	vf.register(cmd)
	cmd.Flags().BoolVar(&activate, "activate", false, "Activate workflows after deploying")
	cmd.Flags().BoolVar(&updateExisting, "update-existing", false, "Update workflows with a matching ID or name instead of creating copies")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render and validate only")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Redeploy files when they change")

	cmd.ValidArgsFunction = completion.CompleteWorkflowFiles
	return cmd
}

// deployErr turns per-file failures into one exit error. The exit code
// is ExitInvalidWorkflow only when every failure was a template or
// validation problem.
func deployErr(total int, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	code := shared.ExitInvalidWorkflow
	for _, err := range errs {
		if shared.ExitCodeFor(err) != shared.ExitInvalidWorkflow {
			code = shared.ExitGeneralError
			break
		}
	}
	return &shared.ExitError{
		Code:    code,
		Message: fmt.Sprintf("%d of %d workflow(s) failed to deploy", len(errs), total),
		Cause:   errors.Join(errs...),
	}
}

func printItems(out io.Writer, items []backup.Item) {
	if shared.GetJSON() || len(items) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, it := range items {
		switch it.Action {
		case backup.ActionFailed:
			fmt.Fprintf(w, "%s\t%s\n", shared.RenderError(it.File), it.Error)
		case backup.ActionPlanned:
			fmt.Fprintf(w, "%s\t%s\t%s\n", shared.RenderOK(it.File), it.Name, shared.RenderLabel("valid"))
		default:
			fmt.Fprintf(w, "%s\t%s\t%s %s\n", shared.RenderOK(it.File), it.Name, it.Action, it.WorkflowID)
		}
	}
	w.Flush()
}

func newUpdateCommand() *cobra.Command {
	var vf varFlags

	cmd := &cobra.Command{
		Use:   "update <id> <file>",
		Short: "Replace a workflow with a rendered file",
		Long: `Render the file and replace the workflow with the given ID. The ID in the
file, if any, is ignored.`,
		Example: `  n8nctl workflows update 12 workflows/billing.json --var env=prod`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vars, err := vf.load()
			if err != nil {
				return err
			}
			wf, err := template.LoadWorkflowFile(args[1], vars)
			if err != nil {
				return err
			}

			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			updated, err := sess.Client.Workflows.Update(cmd.Context(), args[0], wf)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, updated)
			}
			if !shared.GetQuiet() {
				fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Workflow '%s' updated (%s)", updated.Name, updated.ID)))
			}
			return nil
		},
	}

	vf.register(cmd)

	cmd.ValidArgsFunction = completeUpdateArgs
	return cmd
}

// completeUpdateArgs completes the workflow ID, then the file.
func completeUpdateArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return completion.CompleteWorkflowIDs(cmd, args, toComplete)
	case 1:
		return completion.CompleteWorkflowFiles(cmd, args, toComplete)
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func newRenderCommand() *cobra.Command {
	var (
		vf          varFlags
		templateDir string
		output      string
		raw         bool
	)

	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Render a workflow template without deploying it",
		Long: `Render a workflow template and print the resulting workflow JSON.

The output is parsed and validated as a workflow unless --raw is given.
With --template-dir, <file> names a template inside that directory and
includes resolve against it.`,
		Example: `  # Example 1: Preview a template
  n8nctl workflows render templates/webhook.json --var path=orders

  # Example 2: Render from a template directory into a file
  n8nctl workflows render webhook.json --template-dir templates --vars-file prod.yaml -o out/webhook.json

  # Example 3: Show the rendered text even if it is not a valid workflow
  n8nctl workflows render templates/webhook.json --raw`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vars, err := vf.load()
			if err != nil {
				return err
			}

			dir, name := templateDir, args[0]
			if dir == "" {
				dir, name = filepath.Split(args[0])
				if dir == "" {
					dir = "."
				}
			}

			var data []byte
			if raw {
				text, err := renderText(dir, name, vars)
				if err != nil {
					return err
				}
				data = []byte(text)
			} else {
				wf, err := template.LoadWorkflowFromDir(dir, name, vars)
				if err != nil {
					return err
				}
				if data, err = model.MarshalWorkflowIndent(wf); err != nil {
					return err
				}
			}
			if len(data) == 0 || data[len(data)-1] != '\n' {
				data = append(data, '\n')
			}

			if output != "" {
				return os.WriteFile(output, data, 0o644)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	vf.register(cmd)
	cmd.Flags().StringVar(&templateDir, "template-dir", "", "Directory templates and includes are loaded from")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the result to this file")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the rendered text without parsing it")

	cmd.ValidArgsFunction = completion.FirstArg(completion.CompleteWorkflowFiles)
	return cmd
}

func renderText(dir, name string, vars map[string]any) (string, error) {
	loader := os.DirFS(dir)
	text, err := fs.ReadFile(loader, name)
	if err != nil {
		return "", fmt.Errorf("reading template %s: %w", name, err)
	}
	return template.Render(string(text), vars, template.WithName(name), template.WithLoader(loader))
}
