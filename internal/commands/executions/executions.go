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

// Package executions implements the "n8nctl executions" command group.
package executions

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/internal/commands/completion"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
	"github.com/woakes070048/n8n-flow-manager/pkg/model"
	"github.com/woakes070048/n8n-flow-manager/pkg/n8n"
)

// NewCommand creates the executions command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "executions",
		Aliases: []string{"execution", "exec"},
		Annotations: map[string]string{
			"group": "executions",
		},
		Short: "Run workflows and inspect their executions",
		Long: `Commands for triggering workflows, waiting for their executions, and
inspecting or cleaning up past executions on the n8n instance.

Exit codes of run and wait:
  0  execution succeeded
  3  execution finished with a failed status
  4  execution did not finish before the timeout
  5  the workflow could not be triggered
  6  interrupted (Ctrl-C)`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newDeleteCommand())
	cmd.AddCommand(newRetryCommand())
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newWaitCommand())

	return cmd
}

type listResponse struct {
	shared.JSONResponse
	Executions []model.Execution `json:"executions"`
}

func newListCommand() *cobra.Command {
	var (
		workflowID  string
		status      string
		limit       int
		includeData bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions, newest first",
		Example: `  # Example 1: Last 20 executions
  n8nctl executions list

  # Example 2: Failed executions of one workflow
  n8nctl executions list --workflow 12 --status error

  # Example 3: IDs only
  n8nctl executions list --jq '.executions[].id'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := n8n.ListExecutionsOptions{
				WorkflowID:  workflowID,
				Limit:       limit,
				IncludeData: includeData,
			}
			if status != "" {
				s, err := model.ParseStatus(status)
				if err != nil {
					return &shared.ExitError{Code: shared.ExitGeneralError, Message: "invalid --status", Cause: err}
				}
				opts.Status = s
			}

			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			executions, err := sess.Client.Executions.List(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, listResponse{
					JSONResponse: shared.NewJSONResponse("executions list"),
					Executions:   executions,
				})
			}
			if len(executions) == 0 {
				fmt.Fprintln(out, "No executions found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWORKFLOW\tSTATUS\tMODE\tSTARTED\tDURATION")
			for _, e := range executions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.WorkflowID, shared.RenderStatus(string(e.Status)), e.Mode, formatStarted(&e), formatDuration(&e))
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow", "", "Only executions of this workflow")
	cmd.Flags().StringVar(&status, "status", "", "Only executions with this status (success, error, running, waiting, ...)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of executions (0 = all)")
	cmd.Flags().BoolVar(&includeData, "include-data", false, "Include result data")
	cmd.RegisterFlagCompletionFunc("workflow", completion.CompleteWorkflowIDs)
	cmd.RegisterFlagCompletionFunc("status", completion.CompleteExecutionStatus)

	return cmd
}

func formatStarted(e *model.Execution) string {
	if e.StartedAt == nil {
		return ""
	}
	return e.StartedAt.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(e *model.Execution) string {
	d := e.Duration()
	switch {
	case d == 0:
		return ""
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	}
	return shared.FormatElapsed(d)
}

func newGetCommand() *cobra.Command {
	var includeData bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show an execution",
		Example: `  n8nctl executions get 981
  n8nctl executions get 981 --data --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			// Data is needed to show the failure message.
			exec, err := sess.Client.Executions.Get(cmd.Context(), args[0], true)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				if !includeData {
					exec.Data = nil
				}
				return shared.EmitJSON(out, exec)
			}
			printExecution(out, exec)
			if includeData && exec.Data != nil {
				fmt.Fprintln(out)
				fmt.Fprintln(out, shared.RenderHeader("Data"))
				fmt.Fprintln(out, exec.Data.String())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeData, "data", false, "Include the execution's result data")

	cmd.ValidArgsFunction = completion.FirstArg(completion.CompleteExecutionIDs)
	return cmd
}

func printExecution(out io.Writer, e *model.Execution) {
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Execution:"), e.ID)
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Workflow: "), e.WorkflowID)
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Status:   "), shared.RenderStatus(string(e.Status)))
	if e.Mode != "" {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Mode:     "), e.Mode)
	}
	if started := formatStarted(e); started != "" {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Started:  "), started)
	}
	if d := formatDuration(e); d != "" {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Duration: "), d)
	}
	if e.RetryOf != "" {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Retry of: "), e.RetryOf)
	}
	if msg := e.ErrorMessage(); msg != "" {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Error:    "), msg)
	}
}

func newDeleteCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete executions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := shared.Confirm(fmt.Sprintf("Delete %d execution(s): %s?", len(args), strings.Join(args, ", ")), yes)
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

			for _, id := range args {
				if err := sess.Client.Executions.Delete(cmd.Context(), id); err != nil {
					return err
				}
				if !shared.GetJSON() && !shared.GetQuiet() {
					fmt.Fprintln(out, shared.RenderOK("Deleted execution "+id))
				}
			}
			if shared.GetJSON() {
				return shared.EmitJSON(out, struct {
					shared.JSONResponse
					Deleted []string `json:"deleted"`
				}{shared.NewJSONResponse("executions delete"), args})
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	cmd.ValidArgsFunction = completion.CompleteExecutionIDs
	return cmd
}

func newRetryCommand() *cobra.Command {
	var (
		wait bool
		po   pollFlags
	)

	cmd := &cobra.Command{
		Use:   "retry <id>",
		Short: "Retry a failed execution",
		Long: `Ask n8n to re-run a failed execution. With --wait, poll the new execution
until it finishes, exiting like 'executions wait'.`,
		Example: `  n8nctl executions retry 981
  n8nctl executions retry 981 --wait --timeout 2m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			exec, err := sess.Client.Executions.Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if wait && !exec.IsTerminal() {
				return waitFor(cmd, sess, exec.ID.String(), po)
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, exec)
			}
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Retry started as execution %s (%s)", exec.ID, shared.RenderStatus(string(exec.Status)))))
			if wait && exec.IsFailed() {
				return shared.NewExecutionFailedError(fmt.Sprintf("execution %s %s", exec.ID, exec.Status))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the retried execution to finish")
	po.register(cmd)

	cmd.ValidArgsFunction = completion.FirstArg(completion.CompleteExecutionIDs)
	return cmd
}
