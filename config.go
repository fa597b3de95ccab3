package orchestrator

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
	"github.com/grid-infra/dl-acceptor/credential"
	"github.com/grid-infra/dl-acceptor/flags"
)

// Config holds the application configuration
type Config struct {
	PlanFile          string        // Path to the run plan listing driver configurations
	VO                string        // Virtual organisation the credential is scoped to
	DriverBinary      string        // Name or path of the transfer test driver
	ScratchDir        string        // Scratch directory exported to the driver
	TransferTimeout   time.Duration // Per-transfer timeout exported to the driver
	RunTimeout        time.Duration // Default wall-clock timeout per driver invocation, 0 means none
	ProxyPath         string        // Location of the proxy credential file
	ProxyValidity     time.Duration // Requested credential lifetime
	ReuseValidProxy   bool          // Reuse an existing credential when it has enough lifetime left
	ProxyMinRemaining time.Duration // Minimum remaining lifetime for credential reuse
	RunInterval       time.Duration // Interval between orchestration cycles
	RunOnce           bool          // Indicates if the service should exit after one cycle
	HaltOnFailure     bool          // Skip remaining configurations once one fails
	ScratchMaxAge     time.Duration // Prune leftover test files older than this, 0 disables
	LogDir            string        // Directory to store run logs

	Metrics opmetrics.CLIConfig // Metrics server configuration
	Log     log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger, planFile string, vo string) (*Config, error) {
	// Parse flags
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	if planFile == "" {
		return nil, errors.New("run plan is required")
	}
	if vo == "" {
		return nil, errors.New("virtual organisation is required")
	}

	transferTimeout := ctx.Duration(flags.TransferTimeout.Name)
	if transferTimeout <= 0 {
		return nil, fmt.Errorf("transfer timeout must be positive, got %v", transferTimeout)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	// Get log directory, default to "logs" if not specified
	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}

	// Resolve the absolute paths
	absPlanFile, err := filepath.Abs(planFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for run plan '%s': %w", planFile, err)
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}
	scratchDir, err := filepath.Abs(ctx.String(flags.ScratchDir.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for scratch directory '%s': %w", ctx.String(flags.ScratchDir.Name), err)
	}

	// The conventional per-user proxy location applies unless one is given
	proxyPath := ctx.String(flags.ProxyPath.Name)
	if proxyPath == "" {
		proxyPath = credential.DefaultProxyPath()
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	return &Config{
		PlanFile:          absPlanFile,
		VO:                vo,
		DriverBinary:      ctx.String(flags.DriverBinary.Name),
		ScratchDir:        scratchDir,
		TransferTimeout:   transferTimeout,
		RunTimeout:        ctx.Duration(flags.RunTimeout.Name),
		ProxyPath:         proxyPath,
		ProxyValidity:     ctx.Duration(flags.ProxyValidity.Name),
		ReuseValidProxy:   ctx.Bool(flags.ReuseValidProxy.Name),
		ProxyMinRemaining: ctx.Duration(flags.ProxyMinRemaining.Name),
		RunInterval:       runInterval,
		RunOnce:           runOnce,
		HaltOnFailure:     ctx.Bool(flags.HaltOnFailure.Name),
		ScratchMaxAge:     ctx.Duration(flags.ScratchMaxAge.Name),
		LogDir:            logDir,
		Metrics:           metricsCfg,
		Log:               log,
	}, nil
}
