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

package completion

import (
	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
	"github.com/woakes070048/n8n-flow-manager/internal/config"
)

// CompleteExecutionStatus provides completion for --status flag values.
func CompleteExecutionStatus(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		statuses := []string{
			"new\tExecution is queued",
			"running\tExecution is in progress",
			"waiting\tExecution is paused on a wait node",
			"success\tExecution finished successfully",
			"error\tExecution failed",
			"canceled\tExecution was stopped",
			"crashed\tExecution crashed",
		}
		return statuses, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteOutcomes provides completion for history --outcome values.
func CompleteOutcomes(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		outcomes := []string{
			"succeeded\tFinished with status success",
			"failed\tFinished with a failure status",
			"timed_out\tStill running at the deadline",
			"trigger_failed\tThe trigger request was rejected",
			"canceled\tInterrupted locally",
		}
		return outcomes, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteEnvironments completes --env from the config file's named
// environments.
func CompleteEnvironments(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		file, err := config.ReadFile(shared.GetConfigPath())
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return file.EnvironmentNames(), cobra.ShellCompDirectiveNoFileComp
	})
}
