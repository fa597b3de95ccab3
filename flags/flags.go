package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "DL_ACCEPTOR"

var (
	RunPlan = &cli.StringFlag{
		Name:     "plan",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "PLAN"),
		Usage:    "Path to run plan file (eg. 'plan.yaml') listing the driver configurations to execute",
	}
	VO = &cli.StringFlag{
		Name:     "vo",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "VO"),
		Usage:    "Virtual organization to request the delegated credential for (eg. 'dteam')",
	}
	DriverBinary = &cli.StringFlag{
		Name:    "driver-binary",
		Value:   "fts-datalake-test",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DRIVER_BINARY"),
		Usage:   "Path to the transfer test driver binary",
	}
	ScratchDir = &cli.StringFlag{
		Name:    "scratch-dir",
		Value:   "/tmp/dl-acceptor/scratch",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SCRATCH_DIR"),
		Usage:   "Local scratch directory for the driver's working files",
	}
	TransferTimeout = &cli.DurationFlag{
		Name:    "transfer-timeout",
		Value:   300 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TRANSFER_TIMEOUT"),
		Usage:   "Transfer timeout exported to the driver via the XRD_* variables",
	}
	RunTimeout = &cli.DurationFlag{
		Name:    "run-timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_TIMEOUT"),
		Usage:   "Wall-clock timeout per driver invocation. Set to 0 or omit for no timeout.",
	}
	ProxyPath = &cli.StringFlag{
		Name:    "proxy-path",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROXY_PATH"),
		Usage:   "Location of the credential proxy file. Defaults to the standard per-user path.",
	}
	ProxyValidity = &cli.DurationFlag{
		Name:    "proxy-valid",
		Value:   12 * time.Hour,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROXY_VALID"),
		Usage:   "Validity requested for newly acquired credential proxies",
	}
	ReuseValidProxy = &cli.BoolFlag{
		Name:    "reuse-valid-proxy",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REUSE_VALID_PROXY"),
		Usage:   "Keep an existing proxy when it still has enough validity instead of always re-acquiring",
	}
	ProxyMinRemaining = &cli.DurationFlag{
		Name:    "proxy-min-remaining",
		Value:   time.Hour,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROXY_MIN_REMAINING"),
		Usage:   "Minimum remaining proxy validity required when --reuse-valid-proxy is set",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between orchestration cycles (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	HaltOnFailure = &cli.BoolFlag{
		Name:    "halt-on-failure",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HALT_ON_FAILURE"),
		Usage:   "Stop executing remaining configurations after the first driver failure",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store per-run driver output and summaries",
	}
	ScratchMaxAge = &cli.DurationFlag{
		Name:    "scratch-max-age",
		Value:   24 * time.Hour,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SCRATCH_MAX_AGE"),
		Usage:   "Remove leftover driver test files older than this during environment preparation. Set to 0 to disable.",
	}
)

var requiredFlags = []cli.Flag{
	RunPlan,
	VO,
}

var optionalFlags = []cli.Flag{
	DriverBinary,
	ScratchDir,
	TransferTimeout,
	RunTimeout,
	ProxyPath,
	ProxyValidity,
	ReuseValidProxy,
	ProxyMinRemaining,
	RunInterval,
	HaltOnFailure,
	LogDir,
	ScratchMaxAge,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
