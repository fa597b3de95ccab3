package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/grid-infra/dl-acceptor/types"
)

const (
	MetricsNamespace = "dla"
)

var (
	Debug                bool = true
	validResults              = []types.RunStatus{types.RunStatusPass, types.RunStatusFail, types.RunStatusSkip, types.RunStatusError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "invocations_total",
		Help:      "Count of driver invocations",
	}, []string{
		"vo",
		"run_id",
		"name",
		"result",
	})

	invocationExitCode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "invocation_exit_code",
		Help:      "Exit code of the latest driver invocation",
	}, []string{
		"vo",
		"run_id",
		"name",
	})

	invocationDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "invocation_duration_seconds",
		Help:      "Duration of the latest driver invocation",
	}, []string{
		"vo",
		"run_id",
		"name",
	})

	cycleResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "cycle_results",
		Help:      "Result of orchestration cycles",
	}, []string{
		"vo",
		"run_id",
		"result",
	})

	cycleRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cycle_runs_total",
		Help:      "Total number of driver invocations per cycle",
	}, []string{
		"vo",
		"run_id",
	})

	cycleRunsPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cycle_runs_passed",
		Help:      "Number of passed driver invocations per cycle",
	}, []string{
		"vo",
		"run_id",
	})

	cycleRunsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cycle_runs_failed",
		Help:      "Number of failed driver invocations per cycle",
	}, []string{
		"vo",
		"run_id",
	})

	cycleDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "cycle_duration_seconds",
		Help:      "Duration of orchestration cycles",
	}, []string{
		"vo",
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordInvocation records the outcome of a single driver invocation
func RecordInvocation(vo string, runID string, name string, result types.RunStatus, exitCode int, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordInvocation - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "invocations_total",
			"vo", vo,
			"run_id", runID,
			"name", name,
			"exit_code", exitCode,
			"result", result)
	}
	invocationsTotal.WithLabelValues(vo, runID, name, string(result)).Inc()
	invocationExitCode.WithLabelValues(vo, runID, name).Set(float64(exitCode))
	invocationDuration.WithLabelValues(vo, runID, name).Set(duration.Seconds())
}

// RecordCycle records the aggregated outcome of a full orchestration cycle
func RecordCycle(
	vo string,
	runID string,
	result string,
	total int,
	passed int,
	failed int,
	duration time.Duration,
) {
	cycleResults.WithLabelValues(vo, runID, result).Set(1)
	cycleRunsTotal.WithLabelValues(vo, runID).Add(float64(total))
	cycleRunsPassed.WithLabelValues(vo, runID).Add(float64(passed))
	cycleRunsFailed.WithLabelValues(vo, runID).Add(float64(failed))
	cycleDuration.WithLabelValues(vo, runID).Set(duration.Seconds())
}

func isValidResult(result types.RunStatus) bool {
	return slices.Contains(validResults, result)
}
