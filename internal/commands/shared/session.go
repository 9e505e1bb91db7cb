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

package shared

import (
	"context"
	"log/slog"
	"time"

	"github.com/woakes070048/n8n-flow-manager/internal/config"
	"github.com/woakes070048/n8n-flow-manager/internal/log"
	"github.com/woakes070048/n8n-flow-manager/internal/tracing"
	"github.com/woakes070048/n8n-flow-manager/pkg/n8n"
	"github.com/woakes070048/n8n-flow-manager/pkg/orchestrator"
)

// Session bundles what one command invocation needs to talk to n8n.
type Session struct {
	Config    *config.Config
	Client    *n8n.Client
	Logger    *slog.Logger
	Telemetry *tracing.Provider
}

// SessionOptions tunes NewSession.
type SessionOptions struct {
	// Metrics enables the Prometheus-backed meter provider.
	Metrics bool
}

// ConfigOptions returns the config loading options implied by the global
// flags.
func ConfigOptions() config.Options {
	return config.Options{
		Path:        configFlag,
		Environment: envFlag,
		Overrides: config.Overrides{
			BaseURL: baseURLFlag,
			APIKey:  apiKeyFlag,
		},
	}
}

// NewLogger builds the CLI logger. LOG_LEVEL and the config file set the
// level; --verbose and --quiet override both.
func NewLogger(cfg *config.Config) *slog.Logger {
	lc := log.FromEnv()
	if cfg != nil {
		if cfg.Log.Level != "" {
			lc.Level = cfg.Log.Level
		}
		if cfg.Log.Format != "" {
			lc.Format = log.Format(cfg.Log.Format)
		}
	}
	switch {
	case verboseFlag:
		lc.Level = "debug"
	case quietFlag:
		lc.Level = "error"
	}
	return log.New(lc)
}

// NewSession loads configuration, installs telemetry and builds the n8n
// client. Callers must Close the session.
func NewSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	cfg, err := config.Load(ConfigOptions())
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg)

	telemetry, err := tracing.Setup(ctx, tracing.Config{
		ServiceName:    "n8nctl",
		ServiceVersion: version,
		Exporter:       traceFlag,
		Metrics:        opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	httpCfg := cfg.HTTPConfig()
	httpCfg.UserAgent = "n8nctl/" + version

	client, err := n8n.New(cfg.BaseURL, cfg.APIKey,
		n8n.WithHTTPConfig(httpCfg),
		n8n.WithLogger(log.WithComponent(logger, "n8n")),
		n8n.WithTracerProvider(telemetry.TracerProvider()),
	)
	if err != nil {
		_ = telemetry.Shutdown(ctx)
		return nil, err
	}

	logger.Debug("session ready",
		log.EnvironmentKey, cfg.Environment,
		"base_url", cfg.BaseURL,
		"api_key", log.SanitizeAPIKey(cfg.APIKey),
	)

	return &Session{
		Config:    cfg,
		Client:    client,
		Logger:    logger,
		Telemetry: telemetry,
	}, nil
}

// Orchestrator returns a run-and-wait orchestrator bound to the session's
// client, defaults, and telemetry.
func (s *Session) Orchestrator() (*orchestrator.Orchestrator, error) {
	return orchestrator.New(s.Client.Executions,
		orchestrator.WithDefaults(s.Config.RunOptions()),
		orchestrator.WithLogger(log.WithComponent(s.Logger, "orchestrator")),
		orchestrator.WithTracerProvider(s.Telemetry.TracerProvider()),
		orchestrator.WithMeterProvider(s.Telemetry.MeterProvider()),
	)
}

// Close flushes telemetry.
func (s *Session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Telemetry.Shutdown(ctx)
}
