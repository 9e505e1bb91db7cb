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

package executions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/internal/commands/completion"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
	"github.com/woakes070048/n8n-flow-manager/internal/history"
	"github.com/woakes070048/n8n-flow-manager/internal/log"
	"github.com/woakes070048/n8n-flow-manager/pkg/model"
	"github.com/woakes070048/n8n-flow-manager/pkg/orchestrator"
)

// pollFlags are the polling knobs shared by run, wait and retry.
type pollFlags struct {
	timeout         time.Duration
	pollInterval    time.Duration
	maxPollInterval time.Duration
	backoff         bool
}

func (p *pollFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&p.timeout, "timeout", 0, "Give up after this long (default: max_poll_timeout from config, 5m)")
	cmd.Flags().DurationVar(&p.pollInterval, "poll-interval", 0, "Wait between polls (default: poll_interval from config, 2s)")
	cmd.Flags().DurationVar(&p.maxPollInterval, "max-poll-interval", 0, "Upper bound for the wait between polls")
	cmd.Flags().BoolVar(&p.backoff, "backoff", false, "Double the wait after every poll, up to --max-poll-interval")
}

func (p *pollFlags) options() orchestrator.Options {
	return orchestrator.Options{
		Timeout:         p.timeout,
		PollInterval:    p.pollInterval,
		MaxPollInterval: p.maxPollInterval,
		Backoff:         p.backoff,
	}
}

// runResponse is the JSON form of a run or wait.
type runResponse struct {
	shared.JSONResponse
	Outcome      orchestrator.Outcome `json:"outcome"`
	WorkflowID   string               `json:"workflow_id,omitempty"`
	ExecutionID  string               `json:"execution_id,omitempty"`
	Status       model.Status         `json:"status,omitempty"`
	Polls        int                  `json:"polls"`
	SkippedPolls int                  `json:"skipped_polls"`
	ElapsedMS    int64                `json:"elapsed_ms"`
	Error        string               `json:"error,omitempty"`
	Execution    *model.Execution     `json:"execution,omitempty"`
}

func newRunCommand() *cobra.Command {
	var (
		input       string
		noWait      bool
		metricsFile string
		noHistory   bool
		po          pollFlags
	)

	cmd := &cobra.Command{
		Use:   "run <workflow-id>",
		Short: "Trigger a workflow and wait for it to finish",
		Long: `Trigger a workflow once and poll its execution until it succeeds, fails,
the timeout passes, or the command is interrupted.

The trigger is never retried, so a workflow is not started twice. Polls
that fail are skipped and polling continues until the timeout.

Each run is recorded in the local history database (see 'n8nctl history')
unless --no-history is given.`,
		Example: `  # Example 1: Run and wait with the configured timeout
  n8nctl executions run 12

  # Example 2: Pass input inline or from a file
  n8nctl executions run 12 --input '{"customerId": 42}'
  n8nctl executions run 12 --input @payload.json

  # Example 3: Poll gently for a long job
  n8nctl executions run 12 --timeout 30m --poll-interval 5s --backoff --max-poll-interval 1m

  # Example 4: Fire and forget
  n8nctl executions run 12 --no-wait

  # Example 5: Export run metrics for node_exporter
  n8nctl executions run 12 --metrics-file /var/lib/node_exporter/n8n_run.prom`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			workflowID := args[0]

			data, err := shared.ParseInput(input)
			if err != nil {
				return &shared.ExitError{Code: shared.ExitGeneralError, Message: "invalid --input", Cause: err}
			}

			sess, err := shared.NewSession(ctx, shared.SessionOptions{Metrics: metricsFile != ""})
			if err != nil {
				return err
			}
			defer sess.Close()

			if noWait {
				return triggerOnly(cmd, sess, workflowID, data)
			}

			orch, err := sess.Orchestrator()
			if err != nil {
				return err
			}

			sess.Logger.Debug("running workflow", log.WorkflowIDKey, workflowID)
			spinner := startSpinner(fmt.Sprintf("Running workflow %s...", workflowID))
			started := time.Now()
			res, runErr := orch.RunAndWait(ctx, workflowID, data, po.options())
			spinner.Stop()

			if !noHistory {
				recordRun(sess, workflowID, started, res, runErr)
			}
			if metricsFile != "" {
				if err := sess.Telemetry.WriteMetrics(metricsFile); err != nil {
					sess.Logger.Warn("failed to write metrics", "path", metricsFile, "error", err)
				}
			}

			return report(cmd.OutOrStdout(), "executions run", workflowID, res, runErr)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Input data as a JSON object, or @file")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Trigger and print the execution ID without waiting")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics to this file in Prometheus text format")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the run in the local history")
	po.register(cmd)

	cmd.ValidArgsFunction = completion.FirstArg(completion.CompleteWorkflowIDs)
	return cmd
}

func triggerOnly(cmd *cobra.Command, sess *shared.Session, workflowID string, data map[string]any) error {
	exec, err := sess.Client.Executions.Trigger(cmd.Context(), workflowID, data)
	if err != nil {
		return &orchestrator.TriggerError{WorkflowID: workflowID, Cause: err}
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.EmitJSON(out, runResponse{
			JSONResponse: shared.NewJSONResponse("executions run"),
			WorkflowID:   workflowID,
			ExecutionID:  exec.ID.String(),
			Status:       exec.Status,
		})
	}
	fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Workflow triggered, execution %s", exec.ID)))
	return nil
}

func newWaitCommand() *cobra.Command {
	var po pollFlags

	cmd := &cobra.Command{
		Use:   "wait <execution-id>",
		Short: "Wait for a running execution to finish",
		Long: `Poll an existing execution until it reaches a terminal status. Exit codes
match 'executions run'.`,
		Example: `  n8nctl executions wait 981 --timeout 10m`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()
			return waitFor(cmd, sess, args[0], po)
		},
	}

	po.register(cmd)

	cmd.ValidArgsFunction = completion.FirstArg(completion.CompleteExecutionIDs)
	return cmd
}

func waitFor(cmd *cobra.Command, sess *shared.Session, executionID string, po pollFlags) error {
	orch, err := sess.Orchestrator()
	if err != nil {
		return err
	}

	spinner := startSpinner(fmt.Sprintf("Waiting for execution %s...", executionID))
	res, runErr := orch.Wait(cmd.Context(), executionID, po.options())
	spinner.Stop()

	workflowID := ""
	if res != nil && res.Execution != nil {
		workflowID = res.Execution.WorkflowID.String()
	}
	return report(cmd.OutOrStdout(), "executions wait", workflowID, res, runErr)
}

// startSpinner returns a running spinner, or an idle one when output is
// JSON or quiet.
func startSpinner(msg string) *shared.Spinner {
	s := shared.NewSpinner()
	if !shared.GetJSON() && !shared.GetQuiet() {
		s.Start(msg)
	}
	return s
}

// recordRun stores the run in the local history. Failures only warn: the
// run itself already happened.
func recordRun(sess *shared.Session, workflowID string, started time.Time, res *orchestrator.Result, runErr error) {
	path, err := sess.Config.HistoryDBPath()
	if err != nil {
		sess.Logger.Warn("history disabled", "error", err)
		return
	}

	// Record even when the run was canceled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := history.Open(ctx, history.Config{Path: path})
	if err != nil {
		sess.Logger.Warn("failed to open history", "path", path, "error", err)
		return
	}
	defer store.Close()

	run := history.NewRun(sess.Config.Environment, workflowID, started, res, runErr)
	if _, err := store.Record(ctx, run); err != nil {
		sess.Logger.Warn("failed to record run", "error", err)
	}
}

// report prints the outcome of a run and returns the error that sets the
// exit code: nil on success, an ExitError for a failed execution, and the
// orchestrator's typed error otherwise.
func report(out io.Writer, command, workflowID string, res *orchestrator.Result, runErr error) error {
	if res == nil {
		return runErr
	}

	resultErr := runErr
	if res.Outcome == orchestrator.OutcomeFailed {
		msg := fmt.Sprintf("execution %s finished with status %s", res.ExecutionID, statusOf(res))
		if res.Execution != nil {
			if detail := res.Execution.ErrorMessage(); detail != "" {
				msg += ": " + detail
			}
		}
		resultErr = shared.NewExecutionFailedError(msg)
	}

	if shared.GetJSON() {
		resp := runResponse{
			JSONResponse: shared.NewJSONResponse(command),
			Outcome:      res.Outcome,
			WorkflowID:   workflowID,
			ExecutionID:  res.ExecutionID,
			Status:       statusOf(res),
			Polls:        res.Polls,
			SkippedPolls: res.SkippedPolls,
			ElapsedMS:    res.Elapsed.Milliseconds(),
			Execution:    res.Execution,
		}
		if resultErr != nil {
			resp.Success = false
			resp.Error = resultErr.Error()
		}
		if err := shared.EmitJSON(out, resp); err != nil {
			return err
		}
		if resultErr == nil {
			return nil
		}
		return &shared.ExitError{
			Code:     shared.ExitCodeFor(resultErr),
			Message:  resultErr.Error(),
			Cause:    unwrapExit(resultErr),
			Reported: true,
		}
	}

	if shared.GetQuiet() && resultErr == nil {
		return nil
	}

	summary := fmt.Sprintf("(%d polls", res.Polls)
	if res.SkippedPolls > 0 {
		summary += fmt.Sprintf(", %d skipped", res.SkippedPolls)
	}
	summary += ", " + shared.FormatElapsed(res.Elapsed) + ")"

	switch res.Outcome {
	case orchestrator.OutcomeSucceeded:
		fmt.Fprintf(out, "%s %s\n", shared.RenderOK(fmt.Sprintf("Execution %s succeeded", res.ExecutionID)), shared.RenderLabel(summary))
	case orchestrator.OutcomeFailed:
		fmt.Fprintf(out, "%s %s\n", shared.RenderError(fmt.Sprintf("Execution %s failed", res.ExecutionID)), shared.RenderLabel(summary))
	case orchestrator.OutcomeTimedOut:
		fmt.Fprintf(out, "%s %s\n", shared.RenderWarn(fmt.Sprintf("Execution %s still %s", res.ExecutionID, statusOf(res))), shared.RenderLabel(summary))
	case orchestrator.OutcomeCanceled:
		if res.ExecutionID != "" {
			fmt.Fprintf(out, "%s\n", shared.RenderWarn(fmt.Sprintf("Stopped waiting for execution %s; it may still be running on n8n", res.ExecutionID)))
		}
	}
	if res.Execution != nil && res.Outcome != orchestrator.OutcomeCanceled {
		fmt.Fprintf(out, "  %s %s\n", shared.RenderLabel("Status:"), shared.RenderStatus(string(res.Execution.Status)))
	}
	return resultErr
}

func statusOf(res *orchestrator.Result) model.Status {
	if res.Execution == nil {
		return ""
	}
	return res.Execution.Status
}

// unwrapExit keeps the typed cause of an ExitError so callers can still
// match it with errors.As.
func unwrapExit(err error) error {
	var exitErr *shared.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Cause
	}
	return err
}
