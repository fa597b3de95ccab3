// Package credential manages the delegated credential (VOMS proxy) the
// transfer test driver authenticates with. Proxies are created and destroyed
// by invoking the external proxy tooling, never issued locally.
package credential

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const (
	DefaultInitBinary    = "voms-proxy-init"
	DefaultDestroyBinary = "voms-proxy-destroy"
	DefaultInfoBinary    = "voms-proxy-info"
)

// Handle is an opaque reference to a delegated credential on disk.
type Handle struct {
	Path string
}

// Config holds configuration for creating a Manager
type Config struct {
	Log            log.Logger
	VO             string        // Virtual organization the proxy is scoped to
	ProxyPath      string        // Proxy file location, defaults to the per-user path
	Validity       time.Duration // Validity requested on acquisition
	CommandTimeout time.Duration // Timeout for each proxy tool invocation
	InitBinary     string
	DestroyBinary  string
	InfoBinary     string
}

// Manager drives the external proxy tooling to destroy, acquire and inspect
// delegated credentials.
type Manager struct {
	log            log.Logger
	vo             string
	proxyPath      string
	validity       time.Duration
	commandTimeout time.Duration
	initBinary     string
	destroyBinary  string
	infoBinary     string
}

// NewManager creates a new credential manager
func NewManager(cfg Config) (*Manager, error) {
	if cfg.VO == "" {
		return nil, fmt.Errorf("virtual organization is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.ProxyPath == "" {
		cfg.ProxyPath = DefaultProxyPath()
	}
	if cfg.Validity == 0 {
		cfg.Validity = 12 * time.Hour
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = time.Minute
	}
	if cfg.InitBinary == "" {
		cfg.InitBinary = DefaultInitBinary
	}
	if cfg.DestroyBinary == "" {
		cfg.DestroyBinary = DefaultDestroyBinary
	}
	if cfg.InfoBinary == "" {
		cfg.InfoBinary = DefaultInfoBinary
	}

	cfg.Log.Debug("NewManager()", "vo", cfg.VO, "proxyPath", cfg.ProxyPath, "validity", cfg.Validity)

	return &Manager{
		log:            cfg.Log,
		vo:             cfg.VO,
		proxyPath:      cfg.ProxyPath,
		validity:       cfg.Validity,
		commandTimeout: cfg.CommandTimeout,
		initBinary:     cfg.InitBinary,
		destroyBinary:  cfg.DestroyBinary,
		infoBinary:     cfg.InfoBinary,
	}, nil
}

// DefaultProxyPath returns the conventional per-user proxy location.
func DefaultProxyPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("x509up_u%d", os.Getuid()))
}

// ProxyPath returns the proxy file location this manager operates on.
func (m *Manager) ProxyPath() string {
	return m.proxyPath
}

// Refresh destroys any cached credential, then acquires a fresh one.
// Destruction is best-effort: a missing proxy is not an error. Acquisition
// failure is.
func (m *Manager) Refresh(ctx context.Context) (*Handle, error) {
	m.destroy(ctx)

	if err := m.acquire(ctx); err != nil {
		return nil, err
	}

	m.log.Info("Acquired fresh credential proxy", "vo", m.vo, "path", m.proxyPath, "validity", m.validity)
	return &Handle{Path: m.proxyPath}, nil
}

// Ensure returns a credential with at least minRemaining validity left,
// reusing the existing proxy when possible and refreshing otherwise.
// On success the proxy at the handle's path is readable and valid for at
// least minRemaining.
func (m *Manager) Ensure(ctx context.Context, minRemaining time.Duration) (*Handle, error) {
	remaining, err := m.TimeLeft(ctx)
	if err == nil && remaining >= minRemaining {
		m.log.Debug("Reusing existing credential proxy", "path", m.proxyPath, "remaining", remaining)
		return &Handle{Path: m.proxyPath}, nil
	}
	if err != nil {
		m.log.Debug("No reusable credential proxy", "path", m.proxyPath, "error", err)
	} else {
		m.log.Debug("Credential proxy expires too soon", "path", m.proxyPath, "remaining", remaining, "required", minRemaining)
	}

	return m.Refresh(ctx)
}

// TimeLeft reports the remaining validity of the current proxy.
func (m *Manager) TimeLeft(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, m.commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.infoBinary, "--file", m.proxyPath, "--timeleft")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("querying proxy validity: %w\nstderr: %s", err, stderr.String())
	}

	return parseTimeLeft(stdout.String())
}

// destroy removes the cached proxy via the external tooling. Failures are
// logged and swallowed: the proxy may simply not exist yet.
func (m *Manager) destroy(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.destroyBinary, "--file", m.proxyPath)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		m.log.Debug("Credential proxy destroy failed, proxy may not exist", "path", m.proxyPath, "error", err, "stderr", stderr.String())
		return
	}
	m.log.Debug("Destroyed cached credential proxy", "path", m.proxyPath)
}

// acquire requests a new delegated credential for the configured VO.
func (m *Manager) acquire(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.commandTimeout)
	defer cancel()

	args := []string{
		"--voms", m.vo,
		"--out", m.proxyPath,
		"--valid", formatValidity(m.validity),
	}
	cmd := exec.CommandContext(ctx, m.initBinary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	m.log.Debug("Acquiring credential proxy", "command", cmd.String())

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("proxy acquisition timed out after %v", m.commandTimeout)
		}
		return fmt.Errorf("acquiring proxy for VO %s: %w\nstderr: %s", m.vo, err, stderr.String())
	}

	return nil
}

// formatValidity renders a duration in the H:MM form the proxy tooling expects
func formatValidity(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%d:%02d", hours, minutes)
}

// parseTimeLeft parses the tooling's timeleft output, a validity in seconds
func parseTimeLeft(output string) (time.Duration, error) {
	s := strings.TrimSpace(output)
	if s == "" {
		return 0, fmt.Errorf("empty timeleft output")
	}

	// The tooling may prepend informational lines, the number is the last one.
	lines := strings.Split(s, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])

	seconds, err := strconv.Atoi(last)
	if err != nil {
		return 0, fmt.Errorf("parsing timeleft %q: %w", last, err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative timeleft %d", seconds)
	}

	return time.Duration(seconds) * time.Second, nil
}
