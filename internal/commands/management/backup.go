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

// Package management implements the history, backup and restore commands.
package management

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/internal/backup"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/completion"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
	"github.com/woakes070048/n8n-flow-manager/internal/log"
)

type summaryResponse struct {
	shared.JSONResponse
	Directory string        `json:"directory"`
	Items     []backup.Item `json:"items"`
}

// NewBackupCommand creates the backup command.
func NewBackupCommand() *cobra.Command {
	var opts backup.BackupOptions

	cmd := &cobra.Command{
		Use: "backup [dir]",
		Annotations: map[string]string{
			"group": "management",
		},
		Short: "Save every workflow to a directory",
		Long: `Save workflows as indented JSON files named <id>_<name>.json, one per
workflow. The directory defaults to ./backups and is created if missing.
Existing files with the same name are overwritten.

See also: n8nctl restore`,
		Example: `  # Example 1: Back up everything
  n8nctl backup

  # Example 2: Only active production workflows
  n8nctl backup ./snapshots/prod --active-only --tag production`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "./backups"
			if len(args) == 1 {
				dir = args[0]
			}

			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			summary, err := backup.Backup(cmd.Context(), sess.Client.Workflows, dir, opts, log.WithComponent(sess.Logger, "backup"))
			if err != nil {
				return err
			}
			return reportSummary(cmd.OutOrStdout(), "backup", dir, summary)
		},
	}

	cmd.Flags().BoolVar(&opts.ActiveOnly, "active-only", false, "Only active workflows")
	cmd.Flags().StringSliceVar(&opts.Tags, "tag", nil, "Only workflows with this tag (repeatable)")

	cmd.ValidArgsFunction = completion.FirstArg(completion.CompleteDirectories)
	return cmd
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand() *cobra.Command {
	var opts backup.RestoreOptions

	cmd := &cobra.Command{
		Use: "restore <dir>",
		Annotations: map[string]string{
			"group": "management",
		},
		Short: "Upload workflows from a backup directory",
		Long: `Upload every backup file in a directory. By default each file becomes a
new workflow. With --update-existing, the workflow with the saved ID is
overwritten, and files whose workflow no longer exists are created.

Files are applied in name order. A file that fails is reported and the
rest continue.

See also: n8nctl backup, n8nctl workflows deploy`,
		Example: `  # Example 1: Preview a restore
  n8nctl restore ./backups --dry-run

  # Example 2: Roll production back to a snapshot
  n8nctl --env prod restore ./snapshots/prod --update-existing

  # Example 3: Restore a subset
  n8nctl restore ./backups --pattern '12_*.json'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			summary, err := backup.Restore(cmd.Context(), sess.Client.Workflows, args[0], opts, log.WithComponent(sess.Logger, "restore"))
			if err != nil {
				return err
			}
			return reportSummary(cmd.OutOrStdout(), "restore", args[0], summary)
		},
	}

	cmd.Flags().StringVar(&opts.Pattern, "pattern", "", "Glob selecting files below dir (default \""+backup.DefaultPattern+"\")")
	cmd.Flags().BoolVar(&opts.UpdateExisting, "update-existing", false, "Overwrite workflows that still exist instead of creating copies")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Parse and validate files without uploading")

	cmd.ValidArgsFunction = completion.FirstArg(completion.CompleteDirectories)
	return cmd
}

func reportSummary(out io.Writer, command, dir string, summary *backup.Summary) error {
	if shared.GetJSON() {
		resp := summaryResponse{
			JSONResponse: shared.NewJSONResponse(command),
			Directory:    dir,
			Items:        summary.Items,
		}
		if resp.Items == nil {
			resp.Items = []backup.Item{}
		}
		if err := summary.Err(); err != nil {
			resp.Success = false
			if err := shared.EmitJSON(out, resp); err != nil {
				return err
			}
			return &shared.ExitError{Code: shared.ExitGeneralError, Message: command + " incomplete", Cause: err, Reported: true}
		}
		return shared.EmitJSON(out, resp)
	}

	if len(summary.Items) == 0 {
		fmt.Fprintln(out, "No workflows found.")
		return nil
	}
	if !shared.GetQuiet() || summary.Failed() > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tID\tNAME\tRESULT")
		for _, it := range summary.Items {
			result := shared.Humanize(string(it.Action))
			if it.Error != "" {
				result += ": " + it.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", it.File, it.WorkflowID, it.Name, result)
		}
		w.Flush()
	}

	if err := summary.Err(); err != nil {
		return &shared.ExitError{Code: shared.ExitGeneralError, Message: command + " incomplete", Cause: err}
	}
	fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%d workflow(s) processed in %s", len(summary.Items), dir)))
	return nil
}
