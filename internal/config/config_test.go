package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
channel: somechannel
admins:
  - somechannel
  - trustedmod
port: 9090
database: /tmp/subathon.db
time:
  base_value: 30
  multipliers:
    tier_1: 1.0
    tier_2: 2.5
    tier_3: 6.0
    bits: 1.5
    donation: 2.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "somechannel", cfg.Channel)
	assert.Equal(t, []string{"somechannel", "trustedmod"}, cfg.Admins)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/subathon.db", cfg.Database)
	assert.Equal(t, 30.0, cfg.Time.BaseValue)
	assert.Equal(t, 2.5, cfg.Time.Multipliers.Tier2)
	assert.Equal(t, 1.5, cfg.Time.Multipliers.Bits)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "channel: somechannel\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "data.db", cfg.Database)
	assert.Equal(t, "public", cfg.PublicDir)
	assert.Equal(t, 60.0, cfg.Time.BaseValue)
	assert.Equal(t, 1.0, cfg.Time.Multipliers.Tier1)
}

func TestLoadRequiresChannel(t *testing.T) {
	_, err := Load(writeConfig(t, "port: 9090\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TWITCH_TOKEN", "oauth:secret")
	t.Setenv("PORT", "3000")

	cfg, err := Load(writeConfig(t, "channel: somechannel\nport: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, "oauth:secret", cfg.Token)
	assert.Equal(t, 3000, cfg.Port)
}
