package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/monify-labs/sysmon/internal/config"
	"github.com/monify-labs/sysmon/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "sysmon v"+config.Version)
}

func TestSetupAppliesFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sysmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("proc_sorting: memory\noutput: json\n"), 0o600))

	configFlag, envFileFlag, outputFlag, debugFlag = path, filepath.Join(dir, "missing.env"), "yaml", true
	defer func() { configFlag, envFileFlag, outputFlag, debugFlag = "", config.EnvFilePath, "", false }()

	cfg, err := setup()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.GetString(config.KeyProcSorting))
	assert.Equal(t, "yaml", cfg.GetString(config.KeyOutput), "flag beats file")
	assert.True(t, cfg.GetBool(config.KeyDebug))
}

type countingResetter struct{ resets atomic.Int32 }

func (c *countingResetter) ResetNetworkTotals() { c.resets.Add(1) }

func TestWatchTotalsReset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 2)
	r := &countingResetter{}

	done := make(chan struct{})
	go func() {
		watchTotalsReset(ctx, sigs, r, logger.Component("test"))
		close(done)
	}()

	sigs <- syscall.SIGUSR1
	sigs <- syscall.SIGUSR1
	assert.Eventually(t, func() bool { return r.resets.Load() == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}
