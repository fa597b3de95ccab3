package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/grid-infra/dl-acceptor/credential"
	"github.com/grid-infra/dl-acceptor/environ"
	"github.com/grid-infra/dl-acceptor/exitcodes"
	"github.com/grid-infra/dl-acceptor/logging"
	"github.com/grid-infra/dl-acceptor/metrics"
	"github.com/grid-infra/dl-acceptor/registry"
	"github.com/grid-infra/dl-acceptor/runner"
	"github.com/grid-infra/dl-acceptor/service"
)

// orchestrator implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &orchestrator{}

// orchestrator drives transfer testing cycles: it refreshes the proxy
// credential, prepares the scratch environment and runs the driver against
// every configuration in the plan, once or periodically.
type orchestrator struct {
	ctx        context.Context
	config     *Config
	version    string
	registry   *registry.Registry
	credential *credential.Manager
	runner     runner.DriverRunner
	scheduler  CycleScheduler
	formatter  ResultFormatter
	reporter   MetricsReporter
	service    *service.Service
	result     *runner.Result

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*orchestrator, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating orchestrator with config",
		"plan", config.PlanFile,
		"vo", config.VO,
		"driver", config.DriverBinary,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"haltOnFailure", config.HaltOnFailure)

	reg, err := registry.NewRegistry(registry.Config{
		Log:            config.Log,
		PlanFile:       config.PlanFile,
		DefaultTimeout: config.RunTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	credMgr, err := credential.NewManager(credential.Config{
		Log:       config.Log,
		VO:        config.VO,
		ProxyPath: config.ProxyPath,
		Validity:  config.ProxyValidity,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create credential manager: %w", err)
	}

	driverRunner, err := runner.NewDriverRunner(runner.Config{
		Registry:      reg,
		Log:           config.Log,
		DriverBinary:  config.DriverBinary,
		VO:            config.VO,
		HaltOnFailure: config.HaltOnFailure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create driver runner: %w", err)
	}

	config.Log.Info("orchestrator.New: created registry, credential manager and driver runner")

	o := &orchestrator{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		credential:       credMgr,
		runner:           driverRunner,
		scheduler:        NewDefaultCycleScheduler(config.RunInterval, config.RunOnce, config.Log),
		formatter:        NewConsoleResultFormatter(config.Log),
		reporter:         NewDefaultMetricsReporter(config.VO),
		service:          service.New(config.Metrics),
		shutdownCallback: shutdownCallback,
	}
	o.scheduler.RegisterCallback(o.runCycle)
	return o, nil
}

// Start begins orchestrating transfer testing cycles.
// Start implements the cliapp.Lifecycle interface.
func (o *orchestrator) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			o.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	o.ctx = ctx

	if o.config.RunOnce {
		o.config.Log.Info("Starting dl-acceptor in run-once mode", "version", o.version)
	} else {
		o.config.Log.Info("Starting dl-acceptor in continuous mode",
			"version", o.version, "interval", o.config.RunInterval)
	}

	o.service.Start(ctx)

	if err := o.scheduler.Start(ctx); err != nil {
		// Credential, filesystem and other orchestration faults are runtime
		// errors, distinct from the driver reporting failed transfers
		o.config.Log.Error("Runtime error running cycle", "error", err)
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	// In run-once mode the process exit status mirrors the last driver
	// invocation, so a clean cycle with failed runs still exits non-zero
	if o.config.RunOnce {
		o.config.Log.Info("Cycle completed, exiting (run-once mode)")

		if o.result != nil && o.result.LastExitCode != 0 {
			o.config.Log.Warn("Run-once cycle completed with driver failures",
				"lastExitCode", o.result.LastExitCode)
			return NewDriverFailureError(o.result.LastExitCode, o.result.String())
		}

		go func() {
			o.shutdownCallback(nil)
		}()
		return nil // Success (exit code 0)
	}

	o.config.Log.Debug("dl-acceptor started successfully")
	return nil
}

// runCycle runs one full orchestration cycle: credential refresh, environment
// preparation, then every configuration in the plan
func (o *orchestrator) runCycle() error {
	o.config.Log.Info("Starting orchestration cycle", "vo", o.config.VO)

	handle, err := o.refreshCredential()
	if err != nil {
		metrics.RecordErrorDetails("credential refresh failed", err)
		return NewCredentialError(err)
	}

	env, err := environ.Prepare(environ.Config{
		Log:        o.config.Log,
		ScratchDir: o.config.ScratchDir,
		ProxyPath:  handle.Path,
		Timeout:    o.config.TransferTimeout,
		MaxFileAge: o.config.ScratchMaxAge,
	})
	if err != nil {
		metrics.RecordErrorDetails("environment preparation failed", err)
		return NewFilesystemError(err)
	}

	runID := uuid.New().String()
	fileLogger, err := logging.NewFileLogger(o.config.LogDir, runID)
	if err != nil {
		metrics.RecordErrorDetails("log directory preparation failed", err)
		return NewFilesystemError(err)
	}

	o.runner.SetFileLogger(fileLogger)
	o.runner.SetEnvironment(env)

	result, err := o.runner.RunAll(o.ctx)
	if err != nil {
		metrics.RecordErrorDetails("plan execution failed", err)
		return NewRuntimeError(err)
	}
	o.result = result

	if err := o.formatter.FormatResults(result); err != nil {
		o.config.Log.Error("Error formatting results", "error", err)
	}
	o.reporter.ReportResults(runID, result)

	if err := fileLogger.LogSummary(result.String()); err != nil {
		o.config.Log.Error("Error writing run summary", "error", err)
	}
	if err := fileLogger.Complete(); err != nil {
		o.config.Log.Error("Error completing run logs", "error", err)
	}

	o.config.Log.Info("Orchestration cycle completed",
		"run_id", runID,
		"status", result.Status,
		"lastExitCode", result.LastExitCode,
		"logDir", fileLogger.RunDir())
	return nil
}

// refreshCredential obtains the proxy credential for the cycle. The default
// is to destroy any existing proxy and acquire a fresh one; with reuse
// enabled a proxy with enough lifetime left is kept.
func (o *orchestrator) refreshCredential() (*credential.Handle, error) {
	if o.config.ReuseValidProxy {
		return o.credential.Ensure(o.ctx, o.config.ProxyMinRemaining)
	}
	return o.credential.Refresh(o.ctx)
}

// Stop stops the orchestrator service.
// Stop implements the cliapp.Lifecycle interface.
func (o *orchestrator) Stop(ctx context.Context) error {
	o.config.Log.Info("Stopping dl-acceptor")

	if o.scheduler.Stopped() {
		o.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	if err := o.scheduler.Stop(); err != nil {
		return err
	}
	o.service.Shutdown()

	o.config.Log.Info("dl-acceptor stopped successfully")
	return nil
}

// Stopped returns true if the orchestrator service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (o *orchestrator) Stopped() bool {
	return o.scheduler.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (o *orchestrator) WaitForShutdown(ctx context.Context) error {
	return o.scheduler.WaitForShutdown(ctx)
}
