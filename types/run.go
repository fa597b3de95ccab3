// Package types contains shared types used across the dl-acceptor orchestrator
package types

import (
	"path/filepath"
	"strings"
	"time"
)

// RunStatus represents the possible states of a driver invocation
type RunStatus string

const (
	RunStatusPass  RunStatus = "pass"
	RunStatusFail  RunStatus = "fail"
	RunStatusSkip  RunStatus = "skip"
	RunStatusError RunStatus = "error"
)

// String implements the Stringer interface for RunStatus
func (s RunStatus) String() string {
	return string(s)
}

// RunConfiguration describes a single driver invocation: the configuration
// file handed to the driver plus the optional behavior flags.
type RunConfiguration struct {
	Name       string
	ConfigPath string
	Cleanup    bool // ask the driver to remove transferred artifacts after the run
	Exit       bool // ask the driver to terminate after setup
	Timeout    time.Duration
}

// GetName returns a display name for the run configuration. When no explicit
// name is set, the configuration file's base name is used.
func (rc RunConfiguration) GetName() string {
	if rc.Name != "" {
		return rc.Name
	}
	base := filepath.Base(rc.ConfigPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FlagString renders the optional driver flags for display, e.g. "--cleanup --exit".
func (rc RunConfiguration) FlagString() string {
	var flags []string
	if rc.Cleanup {
		flags = append(flags, "--cleanup")
	}
	if rc.Exit {
		flags = append(flags, "--exit")
	}
	return strings.Join(flags, " ")
}

// RunResult captures the outcome of a single driver invocation
type RunResult struct {
	Config   RunConfiguration
	Status   RunStatus
	ExitCode int
	Error    error
	Duration time.Duration
	Stdout   string // Captured driver stdout
	Stderr   string // Captured driver stderr
	Command  string // The rendered command line, for artifact logs
	TimedOut bool   // Track if this invocation timed out
}

// RunSpec is a single entry of the run plan file
type RunSpec struct {
	Name    string         `yaml:"name,omitempty"`
	Config  string         `yaml:"config"`
	Cleanup bool           `yaml:"cleanup,omitempty"`
	Exit    bool           `yaml:"exit,omitempty"`
	Timeout *time.Duration `yaml:"timeout,omitempty"`
}

// PlanConfig represents the complete run plan: the ordered list of driver
// invocations an orchestration cycle performs.
type PlanConfig struct {
	Runs     []RunSpec `yaml:"runs"`
	Metadata struct {
		Description string `yaml:"description,omitempty"`
	} `yaml:"metadata"`
}
