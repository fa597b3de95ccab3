package environ

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareCreatesScratchDir(t *testing.T) {
	scratch := filepath.Join(t.TempDir(), "scratch", "nested")

	env, err := Prepare(Config{
		Log:        testlog.Logger(t, log.LevelDebug),
		ScratchDir: scratch,
		ProxyPath:  "/tmp/x509up_u0",
		Timeout:    300 * time.Second,
	})
	require.NoError(t, err)

	info, err := os.Stat(scratch)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, scratch, env.ScratchDir)
}

func TestPrepareIsIdempotent(t *testing.T) {
	scratch := t.TempDir()

	// Existing contents survive repeated preparation.
	keep := filepath.Join(scratch, "keep.dat")
	require.NoError(t, os.WriteFile(keep, []byte("data"), 0644))

	cfg := Config{
		Log:        testlog.Logger(t, log.LevelDebug),
		ScratchDir: scratch,
		ProxyPath:  "/tmp/x509up_u0",
		Timeout:    300 * time.Second,
	}
	_, err := Prepare(cfg)
	require.NoError(t, err)
	_, err = Prepare(cfg)
	require.NoError(t, err)

	_, err = os.Stat(keep)
	assert.NoError(t, err)
}

func TestPrepareFailsWhenPathIsFile(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0644))

	_, err := Prepare(Config{
		Log:        testlog.Logger(t, log.LevelDebug),
		ScratchDir: filepath.Join(blocker, "scratch"),
		ProxyPath:  "/tmp/x509up_u0",
		Timeout:    300 * time.Second,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scratch directory")
}

func TestPrepareValidation(t *testing.T) {
	t.Run("missing scratch dir", func(t *testing.T) {
		_, err := Prepare(Config{
			Log:     testlog.Logger(t, log.LevelDebug),
			Timeout: 300 * time.Second,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scratch directory is required")
	})

	t.Run("non-positive timeout", func(t *testing.T) {
		_, err := Prepare(Config{
			Log:        testlog.Logger(t, log.LevelDebug),
			ScratchDir: t.TempDir(),
			Timeout:    0,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout must be positive")
	})
}

func TestContextVars(t *testing.T) {
	env := &Context{
		ScratchDir: "/data/scratch",
		ProxyPath:  "/tmp/x509up_u1000",
		Timeout:    300 * time.Second,
	}

	assert.Equal(t, []string{
		"FTS_LOCALPATH=/data/scratch",
		"X509_USER_PROXY=/tmp/x509up_u1000",
		"XRD_CONNECTIONWINDOW=300",
		"XRD_REQUESTTIMEOUT=300",
		"XRD_STREAMTIMEOUT=300",
		"XRD_TIMEOUTRESOLUTION=300",
	}, env.Vars())
}

func TestPrunesStaleTestFiles(t *testing.T) {
	scratch := t.TempDir()

	stale := filepath.Join(scratch, "fts.testfile.old")
	fresh := filepath.Join(scratch, "fts.testfile.new")
	other := filepath.Join(scratch, "unrelated.dat")
	for _, name := range []string{stale, fresh, other} {
		require.NoError(t, os.WriteFile(name, []byte("payload"), 0644))
	}
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	_, err := Prepare(Config{
		Log:        testlog.Logger(t, log.LevelDebug),
		ScratchDir: scratch,
		ProxyPath:  "/tmp/x509up_u0",
		Timeout:    300 * time.Second,
		MaxFileAge: 24 * time.Hour,
	})
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale test file should be pruned")
	_, err = os.Stat(fresh)
	assert.NoError(t, err, "recent test file should survive")
	_, err = os.Stat(other)
	assert.NoError(t, err, "files without the test prefix should survive")
}

func TestPruningDisabledByDefault(t *testing.T) {
	scratch := t.TempDir()

	stale := filepath.Join(scratch, "fts.testfile.old")
	require.NoError(t, os.WriteFile(stale, []byte("payload"), 0644))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	_, err := Prepare(Config{
		Log:        testlog.Logger(t, log.LevelDebug),
		ScratchDir: scratch,
		ProxyPath:  "/tmp/x509up_u0",
		Timeout:    300 * time.Second,
	})
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.NoError(t, err)
}
