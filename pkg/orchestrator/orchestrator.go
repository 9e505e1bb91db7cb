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

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/woakes070048/n8n-flow-manager/pkg/model"
)

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeSucceeded     Outcome = "succeeded"
	OutcomeFailed        Outcome = "failed"
	OutcomeTimedOut      Outcome = "timed_out"
	OutcomeTriggerFailed Outcome = "trigger_failed"
	OutcomeCanceled      Outcome = "canceled"
)

const (
	DefaultTimeout         = 300 * time.Second
	DefaultPollInterval    = 2 * time.Second
	DefaultMaxPollInterval = 30 * time.Second
)

// ExecutionAPI is the part of the n8n client the orchestrator drives.
// *n8n.ExecutionService implements it.
type ExecutionAPI interface {
	Trigger(ctx context.Context, workflowID string, input map[string]any) (*model.Execution, error)
	Get(ctx context.Context, id string, includeData bool) (*model.Execution, error)
}

// Options tunes one run. Zero fields fall back to the orchestrator's
// defaults.
type Options struct {
	// Timeout bounds the whole run, trigger included.
	Timeout time.Duration

	// PollInterval is the wait between polls, or the first wait when
	// Backoff is set.
	PollInterval time.Duration

	// MaxPollInterval caps the wait between polls.
	MaxPollInterval time.Duration

	// Backoff doubles the wait after every non-terminal poll.
	Backoff bool
}

// Result describes how a run ended. It is returned for every outcome.
type Result struct {
	Outcome     Outcome
	ExecutionID string

	// Execution is the last snapshot observed; nil if no poll succeeded.
	Execution *model.Execution

	Polls        int
	SkippedPolls int
	Elapsed      time.Duration
}

// Orchestrator triggers workflows and waits for their executions. It keeps
// no per-run state and is safe for concurrent use.
type Orchestrator struct {
	api      ExecutionAPI
	defaults Options
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *metricsCollector
}

// Option configures an Orchestrator.
type Option func(*orchestratorConfig)

type orchestratorConfig struct {
	defaults       Options
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithDefaults sets the options used when a run leaves fields at zero.
func WithDefaults(opts Options) Option {
	return func(c *orchestratorConfig) { c.defaults = opts }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *orchestratorConfig) { c.logger = logger }
}

// WithTracerProvider sets the tracer provider for run spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *orchestratorConfig) { c.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider for run metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *orchestratorConfig) { c.meterProvider = mp }
}

// New creates an orchestrator over api.
func New(api ExecutionAPI, opts ...Option) (*Orchestrator, error) {
	cfg := orchestratorConfig{
		logger:         slog.Default(),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	mc, err := newMetricsCollector(cfg.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return &Orchestrator{
		api:      api,
		defaults: fillDefaults(cfg.defaults, Options{}),
		logger:   cfg.logger,
		tracer:   cfg.tracerProvider.Tracer("github.com/woakes070048/n8n-flow-manager/pkg/orchestrator"),
		metrics:  mc,
	}, nil
}

// fillDefaults fills zero fields of opts from base, then from the package
// defaults.
func fillDefaults(opts, base Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = base.Timeout
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = base.PollInterval
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxPollInterval <= 0 {
		opts.MaxPollInterval = base.MaxPollInterval
	}
	if opts.MaxPollInterval <= 0 {
		opts.MaxPollInterval = max(DefaultMaxPollInterval, opts.PollInterval)
	}
	if opts.MaxPollInterval < opts.PollInterval {
		opts.MaxPollInterval = opts.PollInterval
	}
	opts.Backoff = opts.Backoff || base.Backoff
	return opts
}

// RunAndWait triggers the workflow once and polls its execution until it
// succeeds, fails, the timeout passes or ctx is canceled.
//
// Succeeded and Failed return a nil error; Failed carries the remote status
// in Result.Execution. TimedOut, TriggerFailed and Canceled return
// *TimeoutError, *TriggerError and *CanceledError.
func (o *Orchestrator) RunAndWait(ctx context.Context, workflowID string, input map[string]any, opts Options) (*Result, error) {
	start := time.Now()
	opts = fillDefaults(opts, o.defaults)
	deadline := start.Add(opts.Timeout)

	ctx, span := o.tracer.Start(ctx, "orchestrator.run_and_wait",
		trace.WithAttributes(
			attribute.String("n8n.workflow_id", workflowID),
			attribute.Float64("n8n.timeout_seconds", opts.Timeout.Seconds()),
		))
	defer span.End()

	logger := o.logger.With("workflow_id", workflowID)
	res := &Result{}

	exec, err := o.api.Trigger(ctx, workflowID, input)
	if err != nil {
		if ctx.Err() != nil {
			return o.finish(ctx, span, res, start, OutcomeCanceled, &CanceledError{Cause: ctx.Err()})
		}
		logger.Error("trigger failed", "error", err)
		return o.finish(ctx, span, res, start, OutcomeTriggerFailed, &TriggerError{WorkflowID: workflowID, Cause: err})
	}

	res.ExecutionID = exec.ID.String()
	if exec.Status.IsTerminal() {
		res.Execution = exec
	}
	span.AddEvent("triggered", trace.WithAttributes(attribute.String("n8n.execution_id", res.ExecutionID)))
	logger.Info("workflow triggered", "execution_id", res.ExecutionID)

	return o.poll(ctx, span, res, opts, start, deadline)
}

// Wait polls an existing execution until it reaches a terminal status. It
// behaves like the polling half of RunAndWait.
func (o *Orchestrator) Wait(ctx context.Context, executionID string, opts Options) (*Result, error) {
	start := time.Now()
	opts = fillDefaults(opts, o.defaults)

	ctx, span := o.tracer.Start(ctx, "orchestrator.wait",
		trace.WithAttributes(attribute.String("n8n.execution_id", executionID)))
	defer span.End()

	res := &Result{ExecutionID: executionID}
	return o.poll(ctx, span, res, opts, start, start.Add(opts.Timeout))
}

func (o *Orchestrator) poll(ctx context.Context, span trace.Span, res *Result, opts Options, start, deadline time.Time) (*Result, error) {
	logger := o.logger.With("execution_id", res.ExecutionID)
	backoff := newBackoff(opts)

	// A poll may run past the deadline by at most half an interval, so a
	// timeout is always reported within one interval of it.
	pollDeadline := deadline.Add(opts.PollInterval / 2)

	for {
		if ctx.Err() != nil {
			return o.canceled(ctx, span, res, start)
		}

		exec, err := o.pollOnce(ctx, res.ExecutionID, pollDeadline)
		res.Polls++
		o.metrics.recordPoll(context.WithoutCancel(ctx), err != nil)

		switch {
		case err != nil && ctx.Err() != nil:
			return o.canceled(ctx, span, res, start)
		case err != nil:
			res.SkippedPolls++
			logger.Warn("poll failed, skipping tick", "poll", res.Polls, "error", err)
			span.AddEvent("poll_skipped", trace.WithAttributes(attribute.String("error", err.Error())))
		default:
			res.Execution = exec
			span.AddEvent("poll", trace.WithAttributes(attribute.String("n8n.status", string(exec.Status))))
			logger.Debug("polled execution", "poll", res.Polls, "status", exec.Status)

			if exec.Status.IsTerminal() {
				if exec.Status.IsSuccessful() {
					return o.finish(ctx, span, res, start, OutcomeSucceeded, nil)
				}
				logger.Warn("execution failed", "status", exec.Status, "message", exec.ErrorMessage())
				return o.finish(ctx, span, res, start, OutcomeFailed, nil)
			}
		}

		now := time.Now()
		if !now.Before(deadline) {
			return o.finish(ctx, span, res, start, OutcomeTimedOut, &TimeoutError{
				ExecutionID: res.ExecutionID,
				Timeout:     opts.Timeout,
				Last:        res.Execution,
			})
		}

		wait, _ := backoff.Next()
		wait = min(wait, deadline.Sub(now))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return o.canceled(ctx, span, res, start)
		case <-timer.C:
		}
	}
}

func (o *Orchestrator) pollOnce(ctx context.Context, executionID string, deadline time.Time) (*model.Execution, error) {
	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return o.api.Get(pollCtx, executionID, true)
}

// newBackoff returns the wait schedule between polls: constant by default,
// doubling when opts.Backoff is set, capped at MaxPollInterval.
func newBackoff(opts Options) retry.Backoff {
	if opts.Backoff {
		return retry.WithCappedDuration(opts.MaxPollInterval, retry.NewExponential(opts.PollInterval))
	}
	return retry.WithCappedDuration(opts.MaxPollInterval, retry.NewConstant(opts.PollInterval))
}

func (o *Orchestrator) canceled(ctx context.Context, span trace.Span, res *Result, start time.Time) (*Result, error) {
	o.logger.Info("wait canceled", "execution_id", res.ExecutionID, "polls", res.Polls)
	return o.finish(ctx, span, res, start, OutcomeCanceled, &CanceledError{ExecutionID: res.ExecutionID, Cause: ctx.Err()})
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, res *Result, start time.Time, outcome Outcome, err error) (*Result, error) {
	res.Outcome = outcome
	res.Elapsed = time.Since(start)

	span.SetAttributes(
		attribute.String("n8n.outcome", string(outcome)),
		attribute.Int("n8n.polls", res.Polls),
		attribute.Int("n8n.skipped_polls", res.SkippedPolls),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if outcome == OutcomeFailed {
		span.SetStatus(codes.Error, "execution "+string(res.Execution.Status))
	}

	o.metrics.recordRun(context.WithoutCancel(ctx), outcome, res.Elapsed)
	o.logger.Info("run finished",
		"execution_id", res.ExecutionID,
		"outcome", outcome,
		"polls", res.Polls,
		"skipped_polls", res.SkippedPolls,
		"elapsed", res.Elapsed,
	)
	return res, err
}
