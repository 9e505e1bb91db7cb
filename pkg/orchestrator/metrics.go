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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metricsCollector records run outcomes and polling activity.
type metricsCollector struct {
	runsTotal       metric.Int64Counter
	pollsTotal      metric.Int64Counter
	pollErrorsTotal metric.Int64Counter
	runDuration     metric.Float64Histogram
}

func newMetricsCollector(mp metric.MeterProvider) (*metricsCollector, error) {
	meter := mp.Meter("n8n-flow-manager")
	mc := &metricsCollector{}

	var err error
	mc.runsTotal, err = meter.Int64Counter(
		"n8n_runs_total",
		metric.WithDescription("Total number of orchestrated runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	mc.pollsTotal, err = meter.Int64Counter(
		"n8n_polls_total",
		metric.WithDescription("Total number of execution status polls"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, err
	}

	mc.pollErrorsTotal, err = meter.Int64Counter(
		"n8n_poll_errors_total",
		metric.WithDescription("Total number of polls skipped after a failure"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, err
	}

	mc.runDuration, err = meter.Float64Histogram(
		"n8n_run_duration_seconds",
		metric.WithDescription("Run duration from trigger to outcome in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

func (mc *metricsCollector) recordPoll(ctx context.Context, failed bool) {
	mc.pollsTotal.Add(ctx, 1)
	if failed {
		mc.pollErrorsTotal.Add(ctx, 1)
	}
}

func (mc *metricsCollector) recordRun(ctx context.Context, outcome Outcome, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", string(outcome)))
	mc.runsTotal.Add(ctx, 1, attrs)
	mc.runDuration.Record(ctx, elapsed.Seconds(), attrs)
}
