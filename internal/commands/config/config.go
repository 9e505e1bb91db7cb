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

// Package config implements the "n8nctl config" command group.
package config

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
	"github.com/woakes070048/n8n-flow-manager/internal/config"
	"github.com/woakes070048/n8n-flow-manager/internal/log"
)

// NewConfigCommand creates the config command with subcommands.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "config",
		Annotations: map[string]string{
			"group": "config",
		},
		Short: "View and manage configuration",
		Long: `View and manage n8nctl configuration.

Settings are resolved from, highest first: command-line flags, N8N_*
environment variables, a .env file in the working directory, the selected
environment of the config file, the top level of the config file, and the
system keychain for the API key.

Subcommands:
  show     - Display the effective configuration
  path     - Show the config file location
  init     - Create a config file
  set-key  - Store an API key in the system keychain
  validate - Check the config file`,
	}

	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newPathCommand())
	cmd.AddCommand(newInitCommand())
	cmd.AddCommand(newSetKeyCommand())
	cmd.AddCommand(NewValidateCommand())

	// If no subcommand provided, default to 'show'
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runShow(cmd)
	}

	return cmd
}

// showResponse is the JSON form of the effective configuration.
type showResponse struct {
	shared.JSONResponse
	*config.Config
	APIKey       string   `json:"api_key"`
	ConfigPath   string   `json:"config_path"`
	Environments []string `json:"environments"`
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the configuration commands would use, and where each value came
from. The API key is masked.`,
		Example: `  n8nctl config show
  n8nctl --env prod config show --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd)
		},
	}
}

func runShow(cmd *cobra.Command) error {
	cfg, err := config.LoadUnvalidated(shared.ConfigOptions())
	if err != nil {
		return err
	}
	file, err := config.ReadFile(shared.GetConfigPath())
	if err != nil {
		return err
	}
	path, err := configPath()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		envs := file.EnvironmentNames()
		return shared.EmitJSON(out, showResponse{
			JSONResponse: shared.NewJSONResponse("config show"),
			Config:       cfg,
			APIKey:       log.SanitizeAPIKey(cfg.APIKey),
			ConfigPath:   path,
			Environments: envs,
		})
	}

	printConfig(out, path, cfg, file)
	return nil
}

func printConfig(out io.Writer, path string, cfg *config.Config, file *config.File) {
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Config file:"), path)
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Environment:"), cfg.Environment)
	if envs := file.EnvironmentNames(); len(envs) > 0 {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Available:  "), strings.Join(envs, ", "))
	}
	fmt.Fprintln(out)

	rows := [][2]string{
		{"base_url", cfg.BaseURL},
		{"api_key", log.SanitizeAPIKey(cfg.APIKey)},
		{"timeout", cfg.Timeout.String()},
		{"max_retries", fmt.Sprint(cfg.MaxRetries)},
		{"poll_interval", cfg.PollInterval.String()},
		{"max_poll_timeout", cfg.MaxPollTimeout.String()},
		{"rate_limit", fmt.Sprint(cfg.RateLimit)},
	}
	if cfg.APIKey == "" {
		rows[1][1] = "(not set)"
	}
	if cfg.BaseURL == "" {
		rows[0][1] = "(not set)"
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SETTING\tVALUE\tSOURCE")
	for _, r := range rows {
		source, ok := cfg.Source[r[0]]
		if !ok {
			source = "default"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r[0], r[1], source)
	}
	w.Flush()
}

func newPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func configPath() (string, error) {
	if p := shared.GetConfigPath(); p != "" {
		return p, nil
	}
	p, err := config.ConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to determine config path: %w", err)
	}
	return p, nil
}

func newInitCommand() *cobra.Command {
	var (
		baseURL     string
		environment string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a config file",
		Long: `Create a config file with a base URL. With --environment, the URL is
stored under that named environment and it becomes the default.

The API key is never written to the file. Store it with
'n8nctl config set-key' or set N8N_API_KEY.`,
		Example: `  n8nctl config init --base-url http://localhost:5678
  n8nctl config init --environment prod --base-url https://n8n.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			file := &config.File{}
			if _, err := os.Stat(path); err == nil {
				if !force && environment == "" {
					return fmt.Errorf("%s already exists; use --force to overwrite or --environment to add one", path)
				}
				if environment != "" && !force {
					if file, err = config.ReadFile(path); err != nil {
						return err
					}
				}
			}

			if baseURL == "" {
				baseURL, err = shared.PromptInput("n8n base URL", "http://localhost:5678", validateURL)
				if err != nil {
					return err
				}
			}
			if err := validateURL(baseURL); err != nil {
				return err
			}

			if environment == "" {
				file.BaseURL = baseURL
			} else {
				if file.Environments == nil {
					file.Environments = map[string]config.Settings{}
				}
				settings := file.Environments[environment]
				settings.BaseURL = baseURL
				file.Environments[environment] = settings
				file.DefaultEnvironment = environment
			}

			if err := config.WriteFile(path, file); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Wrote "+path))
			fmt.Fprintln(cmd.OutOrStdout(), "Next: n8nctl config set-key && n8nctl health")
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "n8n base URL")
	cmd.Flags().StringVar(&environment, "environment", "", "Store the URL under this named environment")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func validateURL(s string) error {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return fmt.Errorf("base URL must start with http:// or https://")
	}
	return nil
}

func newSetKeyCommand() *cobra.Command {
	var (
		fromStdin bool
		remove    bool
	)

	cmd := &cobra.Command{
		Use:   "set-key",
		Short: "Store the API key in the system keychain",
		Long: `Store the n8n API key for the selected environment in the system
keychain (macOS Keychain, Secret Service on Linux, Windows Credential
Manager). Keys are stored per environment; select one with --env.

Create an API key in n8n under Settings > n8n API.`,
		Example: `  # Example 1: Prompt for the key
  n8nctl config set-key

  # Example 2: Store the production key from a secret manager
  vault kv get -field=key secret/n8n | n8nctl --env prod config set-key --stdin

  # Example 3: Forget a key
  n8nctl --env prod config set-key --delete`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := shared.GetEnvironment()
			if env == "" {
				env = config.DefaultEnvironment
			}
			out := cmd.OutOrStdout()

			if remove {
				if err := config.DeleteAPIKey(env); err != nil {
					return err
				}
				fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Removed API key for environment %q", env)))
				return nil
			}

			var key string
			if fromStdin {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read key: %w", err)
				}
				key = strings.TrimSpace(string(data))
			} else {
				var err error
				key, err = shared.PromptSecret("n8n API key", fmt.Sprintf("Stored in the system keychain for environment %q", env))
				if err != nil {
					return err
				}
			}

			if err := config.SetAPIKey(env, key); err != nil {
				return err
			}
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Stored API key %s for environment %q", log.SanitizeAPIKey(key), env)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the key from standard input")
	cmd.Flags().BoolVar(&remove, "delete", false, "Remove the stored key")

	return cmd
}

// sortedEnvironments returns the file's settings keyed by scope, the top
// level first.
func sortedEnvironments(file *config.File) ([]string, map[string]config.Settings) {
	scopes := map[string]config.Settings{"(top level)": file.Settings}
	names := []string{"(top level)"}
	envs := make([]string, 0, len(file.Environments))
	for name, s := range file.Environments {
		scopes["environments."+name] = s
		envs = append(envs, "environments."+name)
	}
	sort.Strings(envs)
	return append(names, envs...), scopes
}
