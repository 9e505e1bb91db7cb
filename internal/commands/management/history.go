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

package management

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/internal/commands/completion"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
	"github.com/woakes070048/n8n-flow-manager/internal/config"
	"github.com/woakes070048/n8n-flow-manager/internal/history"
	"github.com/woakes070048/n8n-flow-manager/pkg/orchestrator"
)

// NewHistoryCommand creates the history command group.
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "history",
		Annotations: map[string]string{
			"group": "management",
		},
		Short: "View the local record of workflow runs",
		Long: `Every 'n8nctl executions run' is recorded in a local SQLite database,
including runs that timed out or whose trigger failed and so never show
up in n8n's own execution list.

The database lives in $XDG_DATA_HOME/n8nctl/history.db unless history_path
is set in the config file.

See also: n8nctl executions run, n8nctl executions list`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

type historyResponse struct {
	shared.JSONResponse
	Runs []history.Run `json:"runs"`
}

func newHistoryListCommand() *cobra.Command {
	var (
		workflowID string
		outcome    string
		since      string
		limit      int
		failed     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Example: `  # Example 1: Recent runs
  n8nctl history list

  # Example 2: Failures of one workflow in the last day
  n8nctl history list --workflow 12 --failed --since 24h

  # Example 3: Runs that timed out, as JSON
  n8nctl history list --outcome timed_out --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if failed {
				outcome = string(orchestrator.OutcomeFailed)
			}
			filter := history.Filter{WorkflowID: workflowID, Outcome: outcome, Limit: limit}
			if since != "" {
				age, err := parseAge(since)
				if err != nil {
					return err
				}
				filter.Since = time.Now().Add(-age)
			}

			store, err := openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				if runs == nil {
					runs = []history.Run{}
				}
				return shared.EmitJSON(out, historyResponse{
					JSONResponse: shared.NewJSONResponse("history list"),
					Runs:         runs,
				})
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tENV\tWORKFLOW\tEXECUTION\tOUTCOME\tPOLLS\tELAPSED")
			for _, r := range runs {
				polls := strconv.Itoa(r.Polls)
				if r.SkippedPolls > 0 {
					polls += fmt.Sprintf(" (%d skipped)", r.SkippedPolls)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Environment, r.WorkflowID, r.ExecutionID,
					shared.RenderStatus(r.Outcome), polls, shared.FormatElapsed(r.Elapsed))
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow", "", "Only runs of this workflow")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Only runs with this outcome (succeeded, failed, timed_out, trigger_failed, canceled)")
	cmd.Flags().BoolVar(&failed, "failed", false, "Shorthand for --outcome failed")
	cmd.Flags().StringVar(&since, "since", "", "Only runs started within this age, e.g. 2h or 7d")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of runs")
	cmd.RegisterFlagCompletionFunc("outcome", completion.CompleteOutcomes)

	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var (
		olderThan string
		yes       bool
	)

	cmd := &cobra.Command{
		Use:     "prune",
		Short:   "Delete old run records",
		Example: `  n8nctl history prune --older-than 30d --yes`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age, err := parseAge(olderThan)
			if err != nil {
				return err
			}
			ok, err := shared.Confirm(fmt.Sprintf("Delete runs older than %s?", olderThan), yes)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}

			store, err := openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Prune(cmd.Context(), time.Now().Add(-age))
			if err != nil {
				return err
			}
			if shared.GetJSON() {
				return shared.EmitJSON(out, struct {
					shared.JSONResponse
					Deleted int64 `json:"deleted"`
				}{shared.NewJSONResponse("history prune"), n})
			}
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Deleted %d run(s)", n)))
			return nil
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "30d", "Delete runs started before this age")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

// openHistory opens the history database of the selected configuration.
// Connection settings are not required.
func openHistory(ctx context.Context) (*history.Store, error) {
	opts := shared.ConfigOptions()
	opts.SkipKeychain = true
	cfg, err := config.LoadUnvalidated(opts)
	if err != nil {
		return nil, err
	}
	path, err := cfg.HistoryDBPath()
	if err != nil {
		return nil, err
	}
	return history.Open(ctx, history.Config{Path: path})
}

// parseAge accepts Go durations plus a day suffix ("7d").
func parseAge(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid age %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid age %q: use a duration like 12h or 7d", s)
	}
	return d, nil
}
