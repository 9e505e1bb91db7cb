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

package diagnostics

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
)

// PingResult contains the latency of each probe.
type PingResult struct {
	shared.JSONResponse
	BaseURL   string  `json:"base_url"`
	Attempts  int     `json:"attempts"`
	Failures  int     `json:"failures"`
	LatencyMS []int64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// NewPingCommand creates the ping command.
func NewPingCommand() *cobra.Command {
	var (
		count    int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use: "ping",
		Annotations: map[string]string{
			"group": "diagnostics",
		},
		Short: "Measure round trips to the n8n API",
		Long: `Send lightweight authenticated requests to the n8n API and report the
latency of each.

Exit codes:
  0 - Every request succeeded
  1 - At least one request failed
  7 - Configuration is incomplete`,
		Example: `  n8nctl ping
  n8nctl --env prod ping --count 5 --interval 500ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			out := cmd.OutOrStdout()
			result := PingResult{
				JSONResponse: shared.NewJSONResponse("ping"),
				BaseURL:      sess.Client.BaseURL(),
				LatencyMS:    []int64{},
			}
			var lastErr error
			for i := 0; i < count; i++ {
				if i > 0 {
					select {
					case <-cmd.Context().Done():
						return cmd.Context().Err()
					case <-time.After(interval):
					}
				}
				start := time.Now()
				err := sess.Client.Health(cmd.Context())
				elapsed := time.Since(start)
				result.Attempts++
				if err != nil {
					result.Failures++
					lastErr = err
					if !shared.GetJSON() {
						fmt.Fprintln(out, shared.RenderError(fmt.Sprintf("%s: %v", result.BaseURL, err)))
					}
					continue
				}
				result.LatencyMS = append(result.LatencyMS, elapsed.Milliseconds())
				if !shared.GetJSON() {
					fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%s: %s", result.BaseURL, elapsed.Round(time.Millisecond))))
				}
			}

			if shared.GetJSON() {
				result.Success = lastErr == nil
				if lastErr != nil {
					result.Error = lastErr.Error()
				}
				if err := shared.EmitJSON(out, result); err != nil {
					return err
				}
				if lastErr != nil {
					return &shared.ExitError{Code: shared.ExitGeneralError, Message: "ping failed", Cause: lastErr, Reported: true}
				}
				return nil
			}
			if lastErr != nil {
				return &shared.ExitError{
					Code:    shared.ExitGeneralError,
					Message: fmt.Sprintf("%d of %d requests failed", result.Failures, result.Attempts),
					Cause:   lastErr,
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "c", 1, "Number of requests")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Wait between requests")

	return cmd
}
