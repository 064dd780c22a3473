package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/v0xg/pagepilot/internal/config"
)

func TestRunFlagsOverrideConfig(t *testing.T) {
	a := newApp()
	root := newRootCmd(a)
	runCmd, _, err := root.Find([]string{"run"})
	require.NoError(t, err)

	require.NoError(t, runCmd.ParseFlags([]string{
		"--url", "http://localhost:8080/login",
		"--provider", "openai",
		"--max-rounds", "7",
		"--record", "out",
		"--headless",
		"--api-key", "flag-key",
	}))
	require.NoError(t, a.loadConfig())

	assert.Equal(t, "http://localhost:8080/login", a.cfg.Browser.StartURL)
	assert.Equal(t, "openai", a.cfg.LLM.Provider)
	assert.Equal(t, 7, a.cfg.Agent.MaxRounds)
	assert.Equal(t, "out", a.cfg.Record.Dir)
	assert.True(t, a.cfg.Browser.Headless)
	assert.Equal(t, "flag-key", a.cfg.LLM.APIKey)
}

func TestUnsetFlagsKeepDefaults(t *testing.T) {
	a := newApp()
	root := newRootCmd(a)
	runCmd, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	require.NoError(t, runCmd.ParseFlags(nil))

	require.NoError(t, a.loadConfig())

	assert.Equal(t, 20, a.cfg.Agent.MaxRounds)
	assert.Equal(t, "gemini", a.cfg.LLM.Provider)
	assert.False(t, a.cfg.Record.Enabled())
}

func TestConfigFileFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: 127.0.0.1:9911\n"), 0o600))

	a := newApp()
	a.cfgFile = path
	require.NoError(t, a.loadConfig())

	assert.Equal(t, "127.0.0.1:9911", a.cfg.Server.Addr)
}

func TestInvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  max_rounds: -3\n"), 0o600))

	a := newApp()
	a.cfgFile = path
	assert.ErrorContains(t, a.loadConfig(), "agent.max_rounds")
}

func TestNewDispatcher(t *testing.T) {
	d, err := newDispatcher(config.Default(), zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, d)

	cfg := config.Default()
	cfg.LLM.Provider = "llama"
	_, err = newDispatcher(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestRunRequiresAPIKey(t *testing.T) {
	a := newApp()
	a.cfg = config.Default()
	a.cfg.LLM.APIKey = ""
	a.logger = zap.NewNop()

	err := a.run(context.Background(), "log in")

	assert.ErrorIs(t, err, errMissingAPIKey)
}
