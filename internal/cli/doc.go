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

/*
Package cli provides the root command for n8nctl.

It assembles the Cobra command tree from the internal/commands subpackages
and owns the global flags, version information and the JSON-capable help
command.

# Command Tree

	n8nctl
	├── workflows     list, get, deploy, update, render, delete, activate, deactivate
	├── executions    list, get, delete, retry, run, wait
	├── credentials   list, get, create, update, delete, schema
	├── backup        Export workflows to a directory
	├── restore       Import workflows from a directory
	├── history       Local record of 'executions run'
	├── health        Check configuration and connectivity
	├── ping          Measure API latency
	├── docs          Links to the n8n documentation
	├── config        show, path, init, set-key, validate
	├── completion    Shell completion scripts
	├── version       Show version
	└── help          Show help

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

All commands inherit these flags:

	--verbose, -v    Enable verbose output
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--jq             Filter JSON output (implies --json)
	--config         Path to config file
	--env, -e        Named environment from the config file
	--base-url       n8n base URL
	--api-key        n8n API key
	--trace          Export traces: stdout, otlp-http or otlp-grpc

# Exit Codes

  - 0: Success
  - 1: General error
  - 2: Invalid workflow or template
  - 3: Remote execution failed
  - 4: Timed out waiting for an execution
  - 5: Trigger rejected
  - 6: Canceled
  - 7: Configuration error
*/
package cli
