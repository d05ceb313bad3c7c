package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/synthreg/synthreg/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootRunsWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t,
		"--config", filepath.Join("testdata", "fast.yaml"),
		"--out", dir,
		"--log-level", "error",
		"--save-weights",
		"--no-plots",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Test Loss:")
	assert.Contains(t, out, "Weights [w1]:")
	assert.Contains(t, out, "Total params: 2")

	_, err = os.Stat(filepath.Join(dir, "weights.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "dataset.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestRootRejectsBadFlags(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join("testdata", "fast.yaml"), "--log-level", "trace", "--no-plots")
	assert.Error(t, err)

	_, err = execute(t, "--config", filepath.Join("testdata", "missing.yaml"))
	assert.Error(t, err)

	_, err = execute(t, "extra-arg")
	assert.Error(t, err)
}

func TestConfigCommandPrintsEffectiveConfig(t *testing.T) {
	out, err := execute(t, "config")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, config.Default(), cfg)

	out, err = execute(t, "config", "--config", filepath.Join("testdata", "fast.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "learning_rate: 0.01")
	assert.Contains(t, out, "epochs: 10")
}

func TestSignalContextCancelsOnSIGTERM(t *testing.T) {
	ctx, stop := signalContext(context.Background())
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not cancelled by SIGTERM")
	}
}
