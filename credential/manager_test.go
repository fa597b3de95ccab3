package credential

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeTool creates an executable shell script standing in for the
// external proxy tooling.
func writeFakeTool(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755))
	return path
}

// readCalls returns the newline-separated invocation log the fake tools append to.
func readCalls(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(t, err)
	return string(data)
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.VO == "" {
		cfg.VO = "dteam"
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}

func TestNewManagerRequiresVO(t *testing.T) {
	_, err := NewManager(Config{Log: log.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "virtual organization is required")
}

func TestRefreshDestroysThenAcquires(t *testing.T) {
	tmpDir := t.TempDir()
	callsFile := filepath.Join(tmpDir, "calls.log")
	proxyPath := filepath.Join(tmpDir, "proxy")

	destroy := writeFakeTool(t, tmpDir, "destroy", "echo destroy >> "+callsFile)
	init := writeFakeTool(t, tmpDir, "init", "echo acquire >> "+callsFile+"\ntouch "+proxyPath)

	m := newTestManager(t, Config{
		ProxyPath:     proxyPath,
		InitBinary:    init,
		DestroyBinary: destroy,
	})

	handle, err := m.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Equal(t, proxyPath, handle.Path)

	// Destruction must precede acquisition.
	assert.Equal(t, "destroy\nacquire\n", readCalls(t, callsFile))
	assert.FileExists(t, proxyPath)
}

func TestRefreshToleratesDestroyFailure(t *testing.T) {
	tmpDir := t.TempDir()
	callsFile := filepath.Join(tmpDir, "calls.log")
	proxyPath := filepath.Join(tmpDir, "proxy")

	destroy := writeFakeTool(t, tmpDir, "destroy", "echo destroy >> "+callsFile+"\nexit 1")
	init := writeFakeTool(t, tmpDir, "init", "echo acquire >> "+callsFile+"\ntouch "+proxyPath)

	m := newTestManager(t, Config{
		ProxyPath:     proxyPath,
		InitBinary:    init,
		DestroyBinary: destroy,
	})

	handle, err := m.Refresh(context.Background())
	require.NoError(t, err, "a missing proxy must not fail the refresh")
	require.NotNil(t, handle)
	assert.Equal(t, "destroy\nacquire\n", readCalls(t, callsFile))
}

func TestRefreshFailsWhenAcquisitionFails(t *testing.T) {
	tmpDir := t.TempDir()
	proxyPath := filepath.Join(tmpDir, "proxy")

	destroy := writeFakeTool(t, tmpDir, "destroy", "exit 0")
	init := writeFakeTool(t, tmpDir, "init", "echo 'no valid certificate found' >&2\nexit 1")

	m := newTestManager(t, Config{
		ProxyPath:     proxyPath,
		InitBinary:    init,
		DestroyBinary: destroy,
	})

	handle, err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.Nil(t, handle)
	assert.Contains(t, err.Error(), "acquiring proxy for VO dteam")
	assert.Contains(t, err.Error(), "no valid certificate found")
	assert.NoFileExists(t, proxyPath)
}

func TestAcquireArguments(t *testing.T) {
	tmpDir := t.TempDir()
	argsFile := filepath.Join(tmpDir, "args.log")
	proxyPath := filepath.Join(tmpDir, "proxy")

	destroy := writeFakeTool(t, tmpDir, "destroy", "exit 0")
	init := writeFakeTool(t, tmpDir, "init", `echo "$@" > `+argsFile+"\ntouch "+proxyPath)

	m := newTestManager(t, Config{
		VO:            "atlas",
		ProxyPath:     proxyPath,
		Validity:      90 * time.Minute,
		InitBinary:    init,
		DestroyBinary: destroy,
	})

	_, err := m.Refresh(context.Background())
	require.NoError(t, err)

	args := readCalls(t, argsFile)
	assert.Contains(t, args, "--voms atlas")
	assert.Contains(t, args, "--out "+proxyPath)
	assert.Contains(t, args, "--valid 1:30")
}

func TestEnsureReusesValidProxy(t *testing.T) {
	tmpDir := t.TempDir()
	callsFile := filepath.Join(tmpDir, "calls.log")
	proxyPath := filepath.Join(tmpDir, "proxy")
	require.NoError(t, os.WriteFile(proxyPath, []byte("proxy"), 0600))

	destroy := writeFakeTool(t, tmpDir, "destroy", "echo destroy >> "+callsFile)
	init := writeFakeTool(t, tmpDir, "init", "echo acquire >> "+callsFile)
	info := writeFakeTool(t, tmpDir, "info", "echo info >> "+callsFile+"\necho 7200")

	m := newTestManager(t, Config{
		ProxyPath:     proxyPath,
		InitBinary:    init,
		DestroyBinary: destroy,
		InfoBinary:    info,
	})

	handle, err := m.Ensure(context.Background(), time.Hour)
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Equal(t, proxyPath, handle.Path)

	// Only the validity query ran, no destroy or acquire.
	assert.Equal(t, "info\n", readCalls(t, callsFile))
}

func TestEnsureRefreshesExpiringProxy(t *testing.T) {
	tmpDir := t.TempDir()
	callsFile := filepath.Join(tmpDir, "calls.log")
	proxyPath := filepath.Join(tmpDir, "proxy")

	destroy := writeFakeTool(t, tmpDir, "destroy", "echo destroy >> "+callsFile)
	init := writeFakeTool(t, tmpDir, "init", "echo acquire >> "+callsFile+"\ntouch "+proxyPath)
	info := writeFakeTool(t, tmpDir, "info", "echo info >> "+callsFile+"\necho 60")

	m := newTestManager(t, Config{
		ProxyPath:     proxyPath,
		InitBinary:    init,
		DestroyBinary: destroy,
		InfoBinary:    info,
	})

	handle, err := m.Ensure(context.Background(), time.Hour)
	require.NoError(t, err)
	require.NotNil(t, handle)

	assert.Equal(t, "info\ndestroy\nacquire\n", readCalls(t, callsFile))
}

func TestEnsureRefreshesWhenNoProxyExists(t *testing.T) {
	tmpDir := t.TempDir()
	callsFile := filepath.Join(tmpDir, "calls.log")
	proxyPath := filepath.Join(tmpDir, "proxy")

	destroy := writeFakeTool(t, tmpDir, "destroy", "echo destroy >> "+callsFile)
	init := writeFakeTool(t, tmpDir, "init", "echo acquire >> "+callsFile+"\ntouch "+proxyPath)
	info := writeFakeTool(t, tmpDir, "info", "echo info >> "+callsFile+"\necho 'proxy not found' >&2\nexit 1")

	m := newTestManager(t, Config{
		ProxyPath:     proxyPath,
		InitBinary:    init,
		DestroyBinary: destroy,
		InfoBinary:    info,
	})

	handle, err := m.Ensure(context.Background(), time.Hour)
	require.NoError(t, err)
	require.NotNil(t, handle)

	assert.Equal(t, "info\ndestroy\nacquire\n", readCalls(t, callsFile))
}

func TestFormatValidity(t *testing.T) {
	tests := []struct {
		name     string
		d        time.Duration
		expected string
	}{
		{name: "twelve hours", d: 12 * time.Hour, expected: "12:00"},
		{name: "ninety minutes", d: 90 * time.Minute, expected: "1:30"},
		{name: "sub hour", d: 45 * time.Minute, expected: "0:45"},
		{name: "multi day", d: 48 * time.Hour, expected: "48:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatValidity(tt.d))
		})
	}
}

func TestParseTimeLeft(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected time.Duration
		wantErr  bool
	}{
		{name: "plain seconds", output: "7200\n", expected: 2 * time.Hour},
		{name: "zero", output: "0", expected: 0},
		{name: "preceding chatter", output: "Contacting server\n3600\n", expected: time.Hour},
		{name: "empty", output: "", wantErr: true},
		{name: "garbage", output: "not-a-number", wantErr: true},
		{name: "negative", output: "-5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := parseTimeLeft(tt.output)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}
