package orchestrator

import (
	"github.com/grid-infra/dl-acceptor/metrics"
	"github.com/grid-infra/dl-acceptor/runner"
)

// MetricsReporter is responsible for reporting metrics from run results.
type MetricsReporter interface {
	ReportResults(runID string, result *runner.Result)
}

// DefaultMetricsReporter implements the MetricsReporter interface.
type DefaultMetricsReporter struct {
	vo string
}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter(vo string) *DefaultMetricsReporter {
	return &DefaultMetricsReporter{vo: vo}
}

// ReportResults reports the run results to metrics systems.
func (r *DefaultMetricsReporter) ReportResults(runID string, result *runner.Result) {
	metrics.RecordCycle(
		r.vo,
		runID,
		string(result.Status),
		result.Stats.Total,
		result.Stats.Passed,
		result.Stats.Failed+result.Stats.Errored,
		result.Duration,
	)
}
