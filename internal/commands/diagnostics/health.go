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

// Package diagnostics implements the health and ping commands.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
	"github.com/woakes070048/n8n-flow-manager/internal/config"
	"github.com/woakes070048/n8n-flow-manager/internal/history"
	"github.com/woakes070048/n8n-flow-manager/internal/log"
)

// checkTimeout bounds the whole health check.
const checkTimeout = 30 * time.Second

// Check is the result of one health check step.
type Check struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// HealthResult contains the overall health check results.
type HealthResult struct {
	shared.JSONResponse
	ConfigPath      string   `json:"config_path"`
	Environment     string   `json:"environment,omitempty"`
	BaseURL         string   `json:"base_url,omitempty"`
	Checks          []Check  `json:"checks"`
	Recommendations []string `json:"recommendations"`
	OverallHealthy  bool     `json:"overall_healthy"`
}

func (r *HealthResult) add(c Check, recommendation string) {
	r.Checks = append(r.Checks, c)
	if !c.OK && !c.Skipped {
		r.OverallHealthy = false
		if recommendation != "" {
			r.Recommendations = append(r.Recommendations, recommendation)
		}
	}
}

// NewHealthCommand creates the health command.
func NewHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "health",
		Aliases: []string{"doctor"},
		Annotations: map[string]string{
			"group": "diagnostics",
		},
		Short: "Check configuration and connectivity",
		Long: `Check that n8nctl is ready to use.

This command checks:
  - The config file exists and parses
  - A base URL and API key are configured, and where each came from
  - The n8n API answers with the configured key
  - The local run history database opens

Exits 7 when the configuration is incomplete and 1 when n8n cannot be
reached.

See also: n8nctl ping, n8nctl config show`,
		Example: `  # Example 1: Basic health check
  n8nctl health

  # Example 2: Check another environment
  n8nctl --env prod health

  # Example 3: Use in CI to verify configuration
  n8nctl health --json --jq '.overall_healthy'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
			defer cancel()

			result, err := runHealth(ctx)
			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				result.Success = result.OverallHealthy
				if jsonErr := shared.EmitJSON(out, result); jsonErr != nil {
					return jsonErr
				}
				if err != nil {
					return &shared.ExitError{Code: shared.ExitCodeFor(err), Message: err.Error(), Cause: err, Reported: true}
				}
				return nil
			}
			printHealth(out, result)
			return err
		},
	}

	return cmd
}

// runHealth performs every check. The error is non-nil when any check
// failed and carries the exit code of the first failure.
func runHealth(ctx context.Context) (*HealthResult, error) {
	result := &HealthResult{
		JSONResponse:    shared.NewJSONResponse("health"),
		Recommendations: []string{},
		OverallHealthy:  true,
	}
	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	result.ConfigPath = shared.GetConfigPath()
	if result.ConfigPath == "" {
		if p, err := config.ConfigPath(); err == nil {
			result.ConfigPath = p
		}
	}
	fileCheck := Check{Name: "config file", OK: true, Detail: result.ConfigPath}
	if _, err := os.Stat(result.ConfigPath); errors.Is(err, os.ErrNotExist) {
		fileCheck.Detail = "not found (environment variables only)"
	} else if _, err := config.ReadFile(shared.GetConfigPath()); err != nil {
		fileCheck.OK = false
		fileCheck.Error = err.Error()
		fail(err)
	}
	result.add(fileCheck, "Fix the config file or run 'n8nctl config init --force'.")

	cfg, err := config.LoadUnvalidated(shared.ConfigOptions())
	if err != nil {
		result.add(Check{Name: "configuration", Error: err.Error()}, "")
		fail(err)
		return result, firstErr
	}
	result.Environment = cfg.Environment
	result.BaseURL = cfg.BaseURL

	valid := Check{Name: "configuration", OK: true}
	if err := cfg.Validate(); err != nil {
		valid.OK = false
		valid.Error = err.Error()
		fail(err)
		var uv interface{ Suggestion() string }
		suggestion := ""
		if errors.As(err, &uv) {
			suggestion = uv.Suggestion()
		}
		result.add(valid, suggestion)
	} else {
		valid.Detail = fmt.Sprintf("base_url from %s, api_key %s from %s",
			sourceOf(cfg, "base_url"), log.SanitizeAPIKey(cfg.APIKey), sourceOf(cfg, "api_key"))
		result.add(valid, "")
	}

	api := Check{Name: "n8n API"}
	if valid.OK {
		sess, err := shared.NewSession(ctx, shared.SessionOptions{})
		if err == nil {
			defer sess.Close()
			start := time.Now()
			err = sess.Client.Health(ctx)
			if err == nil {
				api.OK = true
				api.Detail = fmt.Sprintf("%s answered in %s", cfg.BaseURL, time.Since(start).Round(time.Millisecond))
			}
		}
		if err != nil {
			api.Error = err.Error()
			fail(err)
		}
		result.add(api, "Check that n8n is running, the base URL is right, and the API key is valid.")
	} else {
		api.Skipped = true
		api.Detail = "configuration incomplete"
		result.add(api, "")
	}

	result.add(checkHistory(ctx, cfg), "Check that history_path is writable.")

	return result, firstErr
}

func checkHistory(ctx context.Context, cfg *config.Config) Check {
	c := Check{Name: "run history"}
	path, err := cfg.HistoryDBPath()
	if err == nil {
		var store *history.Store
		store, err = history.Open(ctx, history.Config{Path: path})
		if err == nil {
			store.Close()
		}
	}
	if err != nil {
		c.Error = err.Error()
		return c
	}
	c.OK = true
	c.Detail = path
	return c
}

func sourceOf(cfg *config.Config, key string) string {
	if s, ok := cfg.Source[key]; ok {
		return s
	}
	return "default"
}

func printHealth(out io.Writer, r *HealthResult) {
	fmt.Fprintln(out, shared.RenderHeader("n8nctl Health Check"))
	if r.Environment != "" {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Environment:"), r.Environment)
	}
	fmt.Fprintln(out)

	for _, c := range r.Checks {
		line := fmt.Sprintf("%-14s", c.Name)
		if c.Detail != "" {
			line += " " + c.Detail
		}
		switch {
		case c.Skipped:
			fmt.Fprintln(out, shared.RenderWarn(line+" (skipped)"))
		case c.OK:
			fmt.Fprintln(out, shared.RenderOK(line))
		default:
			fmt.Fprintln(out, shared.RenderError(line+": "+c.Error))
		}
	}
	fmt.Fprintln(out)

	if len(r.Recommendations) > 0 {
		fmt.Fprintln(out, "Recommendations:")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(out, "  - %s\n", rec)
		}
		fmt.Fprintln(out)
	}

	if r.OverallHealthy {
		fmt.Fprintln(out, "Overall Status: Healthy")
	} else {
		fmt.Fprintln(out, "Overall Status: Issues Found")
	}
}
