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

package config

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
	"github.com/woakes070048/n8n-flow-manager/internal/config"
)

// ValidationResult represents the result of config validation.
type ValidationResult struct {
	shared.JSONResponse
	Path     string   `json:"path"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the 'config validate' subcommand.
func NewValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		Long: `Validate the config file structure and values.

Checks performed:
  - YAML syntax and structure
  - Base URLs use http or https
  - Numeric settings are not negative
  - default_environment names an existing environment
  - API keys are not stored in plain text (warning)

With --strict, warnings are treated as errors.`,
		Example: `  # Validate configuration
  n8nctl config validate

  # Validate with warnings as errors
  n8nctl config validate --strict

  # Get validation result as JSON
  n8nctl config validate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			result := ValidationResult{JSONResponse: shared.NewJSONResponse("config validate"), Path: path}
			file, err := config.ReadFile(path)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
			} else {
				result.Errors, result.Warnings = validateFile(file)
			}
			return outputValidationResult(cmd.OutOrStdout(), result, strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	return cmd
}

// validateFile checks every settings scope of the file.
func validateFile(file *config.File) (errs, warnings []string) {
	scopes, settings := sortedEnvironments(file)
	anyURL := false
	for _, scope := range scopes {
		s := settings[scope]
		if s.BaseURL != "" {
			anyURL = true
			if err := validateURL(s.BaseURL); err != nil {
				errs = append(errs, fmt.Sprintf("%s: base_url %q: %v", scope, s.BaseURL, err))
			}
		}
		if s.Timeout < 0 {
			errs = append(errs, fmt.Sprintf("%s: timeout must not be negative", scope))
		}
		if s.MaxRetries != nil && *s.MaxRetries < 0 {
			errs = append(errs, fmt.Sprintf("%s: max_retries must not be negative", scope))
		}
		if s.PollInterval < 0 {
			errs = append(errs, fmt.Sprintf("%s: poll_interval must not be negative", scope))
		}
		if s.MaxPollTimeout < 0 {
			errs = append(errs, fmt.Sprintf("%s: max_poll_timeout must not be negative", scope))
		}
		if s.PollInterval > 0 && s.MaxPollTimeout > 0 && s.PollInterval > s.MaxPollTimeout {
			warnings = append(warnings, fmt.Sprintf("%s: poll_interval is longer than max_poll_timeout", scope))
		}
		if s.RateLimit < 0 {
			errs = append(errs, fmt.Sprintf("%s: rate_limit must not be negative", scope))
		}
		if s.APIKey != "" {
			warnings = append(warnings, fmt.Sprintf("%s: api_key is stored in plain text; prefer 'n8nctl config set-key'", scope))
		}
	}

	if d := file.DefaultEnvironment; d != "" && d != config.DefaultEnvironment {
		if _, ok := file.Environments[d]; !ok {
			errs = append(errs, fmt.Sprintf("default_environment %q is not defined under environments", d))
		}
	}
	if !anyURL {
		warnings = append(warnings, "no base_url configured; commands need N8N_BASE_URL or --base-url")
	}
	return errs, warnings
}

func outputValidationResult(out io.Writer, result ValidationResult, strict bool) error {
	result.Valid = len(result.Errors) == 0 && (!strict || len(result.Warnings) == 0)
	result.Success = result.Valid

	failed := func(reported bool) error {
		if result.Valid {
			return nil
		}
		return &shared.ExitError{
			Code:     shared.ExitConfig,
			Message:  fmt.Sprintf("config validation failed with %d error(s) and %d warning(s)", len(result.Errors), len(result.Warnings)),
			Reported: reported,
		}
	}

	if shared.GetJSON() {
		if err := shared.EmitJSON(out, result); err != nil {
			return err
		}
		return failed(true)
	}

	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Config file:"), result.Path)
	for _, e := range result.Errors {
		fmt.Fprintln(out, shared.RenderError(e))
	}
	for _, w := range result.Warnings {
		fmt.Fprintln(out, shared.RenderWarn(w))
	}
	if result.Valid {
		fmt.Fprintln(out, shared.RenderOK("Configuration is valid"))
	}
	return failed(false)
}
