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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/internal/commands/completion"
	configcmd "github.com/woakes070048/n8n-flow-manager/internal/commands/config"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/credentials"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/diagnostics"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/docs"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/executions"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/management"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
	versioncmd "github.com/woakes070048/n8n-flow-manager/internal/commands/version"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/workflow"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the n8nctl command tree.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "n8nctl",
		Short: "n8nctl - manage n8n workflows from the command line",
		Long: `n8nctl manages workflows, executions and credentials on an n8n instance
through its public REST API. Workflow files can be templates rendered with
variables before they are deployed, and 'executions run' triggers a
workflow and waits for its outcome.

Run 'n8nctl config init' and 'n8nctl config set-key' to get started, then
'n8nctl health' to check the connection.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	shared.RegisterGlobalFlags(cmd.PersistentFlags())
	cmd.RegisterFlagCompletionFunc("env", completion.CompleteEnvironments)
	cmd.RegisterFlagCompletionFunc("trace", cobra.FixedCompletions(
		[]string{"stdout", "otlp-http", "otlp-grpc"}, cobra.ShellCompDirectiveNoFileComp))

	// Resources
	cmd.AddCommand(workflow.NewCommand())
	cmd.AddCommand(executions.NewCommand())
	cmd.AddCommand(credentials.NewCommand())

	// Management
	cmd.AddCommand(management.NewBackupCommand())
	cmd.AddCommand(management.NewRestoreCommand())
	cmd.AddCommand(management.NewHistoryCommand())

	// Diagnostics
	cmd.AddCommand(diagnostics.NewHealthCommand())
	cmd.AddCommand(diagnostics.NewPingCommand())
	cmd.AddCommand(docs.NewDocsCommand())

	// Configuration
	cmd.AddCommand(configcmd.NewConfigCommand())
	cmd.AddCommand(completion.NewCommand())
	cmd.AddCommand(versioncmd.NewVersionCommand())

	cmd.SetHelpCommand(NewHelpCommand(cmd))

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
