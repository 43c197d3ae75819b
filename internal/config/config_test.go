package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	require.NotNil(t, cfg)
	assert.Equal(t, ":3001", cfg.Addr)
	assert.Equal(t, 6, cfg.Rules.MaxPlayers)
	assert.Equal(t, 4, cfg.Rules.TickHz)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	t.Setenv("MAX_PLAYERS", "8")
	t.Setenv("TICK_HZ", "not-a-number")

	cfg := Load()
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 8, cfg.Rules.MaxPlayers)
	// bad values fall back rather than fail
	assert.Equal(t, 4, cfg.Rules.TickHz)
}
