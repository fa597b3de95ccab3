package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/grid-infra/dl-acceptor/environ"
	"github.com/grid-infra/dl-acceptor/logging"
	"github.com/grid-infra/dl-acceptor/metrics"
	"github.com/grid-infra/dl-acceptor/registry"
	"github.com/grid-infra/dl-acceptor/types"
)

// DriverRunner runs the transfer test driver against a plan of configurations
type DriverRunner interface {
	// RunAll runs every configuration in the plan, in order
	RunAll(ctx context.Context) (*Result, error)
	// RunConfiguration runs the driver once for a single configuration
	RunConfiguration(ctx context.Context, rc types.RunConfiguration) (*types.RunResult, error)
	// SetFileLogger sets the file logger receiving per-invocation output
	SetFileLogger(logger *logging.FileLogger)
	// SetEnvironment sets the environment exported to driver invocations
	SetEnvironment(env *environ.Context)
}

// ResultStats tracks pass/fail counts for a full plan execution
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	Errored   int
	StartTime time.Time
	EndTime   time.Time
}

// Result captures the outcome of running the whole plan
type Result struct {
	Runs     []*types.RunResult
	Status   types.RunStatus
	Duration time.Duration
	Stats    ResultStats
	RunID    string

	// LastExitCode is the exit code of the last driver invocation that was
	// actually executed. Skipped runs do not change it.
	LastExitCode int
}

// String returns a human-readable summary of the plan execution
func (r *Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "RunID: %s\n", r.RunID)
	fmt.Fprintf(&b, "Status: %s\n", r.Status)
	fmt.Fprintf(&b, "Duration: %s\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Runs: %d passed, %d failed, %d skipped (total: %d)\n",
		r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped, r.Stats.Total)
	for i, run := range r.Runs {
		fmt.Fprintf(&b, "  %d. [%s] %s (exit %d, %s)\n",
			i+1, run.Status, run.Config.GetName(), run.ExitCode, run.Duration.Round(time.Millisecond))
	}
	return b.String()
}

// Config holds configuration for creating a driver runner
type Config struct {
	Registry     *registry.Registry
	Log          log.Logger
	DriverBinary string // Name or path of the driver executable
	WorkDir      string // Working directory for driver invocations
	VO           string // Virtual organisation label attached to metrics
	FileLogger   *logging.FileLogger

	// HaltOnFailure skips the remaining configurations once one fails
	// instead of attempting all of them
	HaltOnFailure bool
}

// runner implements DriverRunner
type runner struct {
	registry      *registry.Registry
	log           log.Logger
	driverBinary  string
	workDir       string
	vo            string
	fileLogger    *logging.FileLogger
	haltOnFailure bool
	env           *environ.Context
	runID         string
	tracer        trace.Tracer
}

var _ DriverRunner = &runner{}

// NewDriverRunner creates a new driver runner
func NewDriverRunner(cfg Config) (*runner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.DriverBinary == "" {
		return nil, fmt.Errorf("driver binary is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.WorkDir != "" {
		if _, err := os.Stat(cfg.WorkDir); err != nil {
			return nil, fmt.Errorf("work directory %s is not accessible: %w", cfg.WorkDir, err)
		}
	}

	cfg.Log.Debug("Creating driver runner",
		"driverBinary", cfg.DriverBinary,
		"workDir", cfg.WorkDir,
		"vo", cfg.VO,
		"haltOnFailure", cfg.HaltOnFailure)

	return &runner{
		registry:      cfg.Registry,
		log:           cfg.Log,
		driverBinary:  cfg.DriverBinary,
		workDir:       cfg.WorkDir,
		vo:            cfg.VO,
		fileLogger:    cfg.FileLogger,
		haltOnFailure: cfg.HaltOnFailure,
		tracer:        otel.Tracer("driver runner"),
	}, nil
}

// SetFileLogger sets the file logger receiving per-invocation output
func (r *runner) SetFileLogger(logger *logging.FileLogger) {
	r.fileLogger = logger
}

// SetEnvironment sets the environment exported to driver invocations
func (r *runner) SetEnvironment(env *environ.Context) {
	r.env = env
}

// RunAll runs every configuration in the plan, in order. A failing invocation
// does not stop the plan unless halt-on-failure is enabled, in which case the
// remaining configurations are recorded as skipped.
func (r *runner) RunAll(ctx context.Context) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "run all configurations")
	defer span.End()

	if r.fileLogger != nil {
		r.runID = r.fileLogger.RunID()
	} else {
		r.runID = uuid.New().String()
	}
	defer func() {
		r.runID = ""
	}()

	runs := r.registry.GetRuns()
	result := &Result{
		RunID: r.runID,
		Runs:  make([]*types.RunResult, 0, len(runs)),
		Stats: ResultStats{
			Total:     len(runs),
			StartTime: time.Now(),
		},
	}

	r.log.Info("Running transfer test plan",
		"run_id", r.runID,
		"runs", len(runs),
		"driver", r.driverBinary)

	var anyFailed, anyRan bool
	for _, rc := range runs {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("run plan interrupted: %w", err)
		}

		if r.haltOnFailure && anyFailed {
			rr := r.skipConfiguration(rc)
			result.Runs = append(result.Runs, rr)
			result.Stats.Skipped++
			continue
		}

		rr, err := r.RunConfiguration(ctx, rc)
		if err != nil {
			return result, fmt.Errorf("running configuration %s: %w", rc.GetName(), err)
		}

		result.Runs = append(result.Runs, rr)
		result.LastExitCode = rr.ExitCode
		anyRan = true

		switch rr.Status {
		case types.RunStatusPass:
			result.Stats.Passed++
		case types.RunStatusFail:
			result.Stats.Failed++
			anyFailed = true
		case types.RunStatusError:
			result.Stats.Errored++
			anyFailed = true
		case types.RunStatusSkip:
			result.Stats.Skipped++
		}
	}

	result.Status = determineStatusFromFlags(!anyRan, anyFailed)
	result.Stats.EndTime = time.Now()
	result.Duration = result.Stats.EndTime.Sub(result.Stats.StartTime)

	r.log.Info("Transfer test plan complete",
		"run_id", r.runID,
		"status", result.Status,
		"passed", result.Stats.Passed,
		"failed", result.Stats.Failed+result.Stats.Errored,
		"skipped", result.Stats.Skipped,
		"duration", result.Duration.Round(time.Millisecond),
		"lastExitCode", result.LastExitCode)

	return result, nil
}

// RunConfiguration runs the driver once for a single configuration and blocks
// until the process exits or its timeout lapses.
func (r *runner) RunConfiguration(ctx context.Context, rc types.RunConfiguration) (*types.RunResult, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("run %s", rc.GetName()))
	defer span.End()

	if rc.ConfigPath == "" {
		return nil, fmt.Errorf("configuration path is required")
	}

	runCtx := ctx
	if rc.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, rc.Timeout)
		defer cancel()
	}

	args := []string{"-i", rc.ConfigPath}
	if rc.Cleanup {
		args = append(args, "--cleanup")
	}
	if rc.Exit {
		args = append(args, "--exit")
	}

	cmd := exec.CommandContext(runCtx, r.driverBinary, args...)
	cmd.Dir = r.workDir
	if r.env != nil {
		cmd.Env = append(os.Environ(), r.env.Vars()...)
	}

	// Driver output goes to the console as it happens and is captured for
	// the run artifacts
	var stdout, stderr bytes.Buffer
	cmd.Stdout = io.MultiWriter(os.Stdout, &stdout)
	cmd.Stderr = io.MultiWriter(os.Stderr, &stderr)

	r.log.Info("Starting driver",
		"run_id", r.runID,
		"name", rc.GetName(),
		"config", rc.ConfigPath,
		"flags", rc.FlagString(),
		"timeout", rc.Timeout)

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &types.RunResult{
		Config:   rc,
		Duration: duration,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Command:  cmd.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.Status = types.RunStatusPass
		result.ExitCode = 0

	case runCtx.Err() == context.DeadlineExceeded:
		result.Status = types.RunStatusFail
		result.ExitCode = -1
		result.TimedOut = true
		result.Error = fmt.Errorf("driver timed out after %v", rc.Timeout)

	case errors.As(err, &exitErr):
		result.Status = types.RunStatusFail
		result.ExitCode = exitErr.ExitCode()
		result.Error = fmt.Errorf("driver exited with status %d", exitErr.ExitCode())

	default:
		// The driver never started, e.g. the binary is missing
		result.Status = types.RunStatusError
		result.ExitCode = 127
		result.Error = fmt.Errorf("failed to start driver: %w", err)
	}

	r.recordResult(result)

	switch result.Status {
	case types.RunStatusPass:
		r.log.Info("Driver run passed",
			"run_id", r.runID, "name", rc.GetName(), "duration", duration.Round(time.Millisecond))
	default:
		r.log.Error("Driver run failed",
			"run_id", r.runID,
			"name", rc.GetName(),
			"status", result.Status,
			"exitCode", result.ExitCode,
			"timedOut", result.TimedOut,
			"duration", duration.Round(time.Millisecond),
			"error", result.Error)
	}

	return result, nil
}

// skipConfiguration synthesizes a skipped result for a configuration that is
// not executed because an earlier one failed
func (r *runner) skipConfiguration(rc types.RunConfiguration) *types.RunResult {
	result := &types.RunResult{
		Config: rc,
		Status: types.RunStatusSkip,
	}

	r.log.Info("Skipping driver run after earlier failure",
		"run_id", r.runID, "name", rc.GetName())

	r.recordResult(result)
	return result
}

// recordResult feeds a run result to metrics and the file logger
func (r *runner) recordResult(result *types.RunResult) {
	metrics.RecordInvocation(r.vo, r.runID, result.Config.GetName(), result.Status, result.ExitCode, result.Duration)

	if r.fileLogger != nil {
		if err := r.fileLogger.LogRunResult(result); err != nil {
			r.log.Warn("Failed to write run log",
				"run_id", r.runID, "name", result.Config.GetName(), "error", err)
		}
	}
}

// determineStatusFromFlags determines the overall status from the
// plan-level aggregation flags
func determineStatusFromFlags(allSkipped bool, anyFailed bool) types.RunStatus {
	if allSkipped {
		return types.RunStatusSkip
	}
	if anyFailed {
		return types.RunStatusFail
	}
	return types.RunStatusPass
}
