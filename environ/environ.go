// Package environ prepares the local environment the transfer test driver
// runs in: the scratch directory for its working files and the environment
// variables it reads.
package environ

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Environment variables the driver reads.
const (
	ScratchDirVar = "FTS_LOCALPATH"
	ProxyVar      = "X509_USER_PROXY"

	ConnectionWindowVar  = "XRD_CONNECTIONWINDOW"
	RequestTimeoutVar    = "XRD_REQUESTTIMEOUT"
	StreamTimeoutVar     = "XRD_STREAMTIMEOUT"
	TimeoutResolutionVar = "XRD_TIMEOUTRESOLUTION"
)

// StaleFilePrefix is the name prefix of the driver's local test files.
// Leftovers carrying it are pruned during environment preparation.
const StaleFilePrefix = "fts.testfile"

// Context is the environment a driver invocation inherits: the scratch
// directory, the credential location and the transfer timeouts. It is built
// once per orchestration cycle and constant for its duration.
type Context struct {
	ScratchDir string
	ProxyPath  string
	Timeout    time.Duration
}

// Vars renders the context as KEY=VALUE pairs for the child process
// environment. The four transfer timeout variables all carry the same value.
func (c *Context) Vars() []string {
	seconds := strconv.Itoa(int(c.Timeout.Seconds()))
	return []string{
		ScratchDirVar + "=" + c.ScratchDir,
		ProxyVar + "=" + c.ProxyPath,
		ConnectionWindowVar + "=" + seconds,
		RequestTimeoutVar + "=" + seconds,
		StreamTimeoutVar + "=" + seconds,
		TimeoutResolutionVar + "=" + seconds,
	}
}

// Config holds configuration for preparing the environment
type Config struct {
	Log        log.Logger
	ScratchDir string
	ProxyPath  string
	Timeout    time.Duration // Transfer timeout exported to the driver
	MaxFileAge time.Duration // Prune leftover test files older than this, 0 disables
}

// Prepare creates the scratch directory if needed, verifies it is writable
// and prunes stale driver test files. It is idempotent: an existing scratch
// directory is reused as-is.
func Prepare(cfg Config) (*Context, error) {
	if cfg.ScratchDir == "" {
		return nil, fmt.Errorf("scratch directory is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("transfer timeout must be positive, got %v", cfg.Timeout)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	if err := os.MkdirAll(cfg.ScratchDir, 0755); err != nil {
		return nil, fmt.Errorf("creating scratch directory %s: %w", cfg.ScratchDir, err)
	}

	if err := probeWritable(cfg.ScratchDir); err != nil {
		return nil, fmt.Errorf("scratch directory %s is not writable: %w", cfg.ScratchDir, err)
	}

	if cfg.MaxFileAge > 0 {
		pruned, err := pruneStaleFiles(cfg.ScratchDir, cfg.MaxFileAge)
		if err != nil {
			// Stale leftovers only waste space, they never block a run.
			cfg.Log.Warn("Failed to prune stale test files", "dir", cfg.ScratchDir, "error", err)
		} else if pruned > 0 {
			cfg.Log.Info("Pruned stale test files", "dir", cfg.ScratchDir, "count", pruned, "maxAge", cfg.MaxFileAge)
		}
	}

	cfg.Log.Debug("Environment prepared", "scratchDir", cfg.ScratchDir, "proxyPath", cfg.ProxyPath, "timeout", cfg.Timeout)

	return &Context{
		ScratchDir: cfg.ScratchDir,
		ProxyPath:  cfg.ProxyPath,
		Timeout:    cfg.Timeout,
	}, nil
}

// probeWritable verifies files can be created in the directory
func probeWritable(dir string) error {
	probe, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}

// pruneStaleFiles removes driver test files older than maxAge and returns
// how many were removed
func pruneStaleFiles(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), StaleFilePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return pruned, err
		}
		pruned++
	}

	return pruned, nil
}
