package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesSpecConstants(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8, cfg.Cores)
	assert.Equal(t, 100, cfg.InboxCapacity)
	assert.Equal(t, 512, cfg.MaxPayloadBytes)
	assert.Equal(t, 64, cfg.MaxProcesses)
	assert.Equal(t, 50*time.Millisecond, cfg.Quantum)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MKERNEL_CORES", "4")
	t.Setenv("MKERNEL_INBOX_CAPACITY", "16")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Cores)
	assert.Equal(t, 16, cfg.InboxCapacity)
	assert.Equal(t, 512, cfg.MaxPayloadBytes)
}

func TestLoad_DefaultsWithoutEnv(t *testing.T) {
	for _, key := range []string{"MKERNEL_CORES", "MKERNEL_INBOX_CAPACITY"} {
		os.Unsetenv(key)
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
