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

// Package workflow implements the "n8nctl workflows" command group.
package workflow

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/internal/commands/completion"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
	"github.com/woakes070048/n8n-flow-manager/pkg/model"
	"github.com/woakes070048/n8n-flow-manager/pkg/n8n"
)

// NewCommand creates the workflows command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflows",
		Aliases: []string{"workflow", "wf"},
		Annotations: map[string]string{
			"group": "workflows",
		},
		Short: "Manage n8n workflows",
		Long: `Commands for listing, deploying, rendering, and managing n8n workflows.

Workflow files are n8n workflow JSON. Files may contain template tags
({{ var }}, {% if %}, {% for %}, {% include %}) that are rendered with
--var and --vars-file before the workflow is parsed and validated.`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newDeployCommand())
	cmd.AddCommand(newUpdateCommand())
	cmd.AddCommand(newRenderCommand())
	cmd.AddCommand(newDeleteCommand())
	cmd.AddCommand(newSetActiveCommand(true))
	cmd.AddCommand(newSetActiveCommand(false))

	return cmd
}

type listResponse struct {
	shared.JSONResponse
	Workflows []model.Workflow `json:"workflows"`
}

func newListCommand() *cobra.Command {
	var (
		active   bool
		inactive bool
		tags     []string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		Long: `List workflows on the n8n instance, following pagination.

See also: n8nctl workflows get, n8nctl backup`,
		Example: `  # Example 1: List every workflow
  n8nctl workflows list

  # Example 2: Only active workflows tagged "billing"
  n8nctl workflows list --active --tag billing

  # Example 3: Names of inactive workflows
  n8nctl workflows list --inactive --jq '.workflows[].name'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if active && inactive {
				return &shared.ExitError{Code: shared.ExitGeneralError, Message: "--active and --inactive are mutually exclusive"}
			}

			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			opts := n8n.ListWorkflowsOptions{Tags: tags, Limit: limit}
			switch {
			case active:
				opts.Active = &active
			case inactive:
				f := false
				opts.Active = &f
			}

			workflows, err := sess.Client.Workflows.List(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, listResponse{
					JSONResponse: shared.NewJSONResponse("workflows list"),
					Workflows:    workflows,
				})
			}

			if len(workflows) == 0 {
				fmt.Fprintln(out, "No workflows found.")
				return nil
			}
			printWorkflowTable(out, workflows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&active, "active", false, "Only active workflows")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Only inactive workflows")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Only workflows with this tag (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of workflows (0 = all)")

	return cmd
}

func printWorkflowTable(out io.Writer, workflows []model.Workflow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tACTIVE\tNODES\tTAGS\tUPDATED")
	for _, wf := range workflows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			wf.ID,
			wf.Name,
			activeMark(wf.Active),
			len(wf.Nodes),
			strings.Join(wf.TagNames(), ","),
			formatTime(wf),
		)
	}
	w.Flush()
}

func activeMark(active bool) string {
	if active {
		return shared.RenderStatus("active")
	}
	return "-"
}

func formatTime(wf model.Workflow) string {
	if wf.UpdatedAt == nil {
		return ""
	}
	return wf.UpdatedAt.Local().Format("2006-01-02 15:04")
}

func newGetCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a workflow",
		Long: `Show a workflow's summary, or save its JSON with --output.

The saved file can be deployed again with 'n8nctl workflows deploy'.`,
		Example: `  n8nctl workflows get 12
  n8nctl workflows get 12 --output workflows/billing.json
  n8nctl workflows get 12 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			wf, err := sess.Client.Workflows.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "" {
				if err := writeWorkflowFile(output, wf); err != nil {
					return err
				}
				if !shared.GetQuiet() && !shared.GetJSON() {
					fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Workflow saved to %s", output)))
				}
			}

			if shared.GetJSON() {
				return shared.EmitJSON(out, wf)
			}
			if output == "" {
				printWorkflow(out, wf)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Save the workflow JSON to this file")

	cmd.ValidArgsFunction = completion.FirstArg(completion.CompleteWorkflowIDs)
	return cmd
}

func printWorkflow(out io.Writer, wf *model.Workflow) {
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Name:   "), wf.Name)
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("ID:     "), wf.ID)
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Active: "), activeMark(wf.Active))
	if tags := wf.TagNames(); len(tags) > 0 {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Tags:   "), strings.Join(tags, ", "))
	}
	if ts := formatTime(*wf); ts != "" {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Updated:"), ts)
	}
	fmt.Fprintf(out, "%s %d\n", shared.RenderLabel("Nodes:  "), len(wf.Nodes))
	for _, n := range wf.Nodes {
		line := fmt.Sprintf("  %s %s (%s)", shared.SymbolInfo, n.Name, n.Type)
		if n.Disabled {
			line += " " + shared.RenderLabel("[disabled]")
		}
		fmt.Fprintln(out, line)
	}
}

func writeWorkflowFile(path string, wf *model.Workflow) error {
	data, err := model.MarshalWorkflowIndent(wf)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func newDeleteCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete workflows",
		Long: `Delete one or more workflows. Asks for confirmation unless --yes is given;
non-interactive sessions must pass --yes.`,
		Example: `  n8nctl workflows delete 12
  n8nctl workflows delete 12 13 --yes`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := shared.Confirm(fmt.Sprintf("Delete %d workflow(s): %s?", len(args), strings.Join(args, ", ")), yes)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}

			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			deleted := make([]string, 0, len(args))
			for _, id := range args {
				if err := sess.Client.Workflows.Delete(cmd.Context(), id); err != nil {
					return err
				}
				deleted = append(deleted, id)
				if !shared.GetJSON() && !shared.GetQuiet() {
					fmt.Fprintln(out, shared.RenderOK("Deleted workflow "+id))
				}
			}

			if shared.GetJSON() {
				return shared.EmitJSON(out, struct {
					shared.JSONResponse
					Deleted []string `json:"deleted"`
				}{shared.NewJSONResponse("workflows delete"), deleted})
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	cmd.ValidArgsFunction = completion.CompleteWorkflowIDs
	return cmd
}

func newSetActiveCommand(activate bool) *cobra.Command {
	use, verb := "deactivate", "deactivated"
	if activate {
		use, verb = "activate", "activated"
	}

	return &cobra.Command{
		Use:               use + " <id>...",
		Short:             strings.ToUpper(use[:1]) + use[1:] + " workflows",
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completion.CompleteWorkflowIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			out := cmd.OutOrStdout()
			updated := make([]model.Workflow, 0, len(args))
			for _, id := range args {
				var wf *model.Workflow
				if activate {
					wf, err = sess.Client.Workflows.Activate(cmd.Context(), id)
				} else {
					wf, err = sess.Client.Workflows.Deactivate(cmd.Context(), id)
				}
				if err != nil {
					return err
				}
				updated = append(updated, *wf)
				if !shared.GetJSON() && !shared.GetQuiet() {
					fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Workflow '%s' %s", wf.Name, verb)))
				}
			}

			if shared.GetJSON() {
				return shared.EmitJSON(out, listResponse{
					JSONResponse: shared.NewJSONResponse("workflows " + use),
					Workflows:    updated,
				})
			}
			return nil
		},
	}
}
