package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ConfigGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dnsgate.toml")

	cfg, err := Load(path, "0.1.0")
	require.NoError(t, err)

	// The generated default parses back and carries sane values.
	assert.Equal(t, configver, cfg.Version)
	assert.Equal(t, "0.1.0", cfg.ServerVersion())
	assert.Equal(t, "127.0.0.1", cfg.Binding.Address)
	assert.Equal(t, 5300, cfg.Binding.Port)
	require.Len(t, cfg.ExternalDNS, 1)
	assert.Empty(t, cfg.ExternalDNS[0].Targets)
	assert.Equal(t, 8192, cfg.Cache.Limit)
	assert.True(t, cfg.UseFiltering)
	assert.False(t, cfg.UseHeuristics)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func Test_ConfigLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dnsgate.toml")
	content := `
version = "1.0.0"
loglevel = "debug"
ipv6 = true
use_heuristics = true
monitoring = ["denied", "cache"]

[binding]
address = "0.0.0.0"
port = 53

[[external_dns]]
name = "default"
address = "9.9.9.9"
targets = []

[[external_dns]]
name = "corp"
address = "10.0.0.53:5353"
targets = ["internal.example"]

[cache]
limit = 64
ttl = 120
timeout = "500ms"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, "0.1.0")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.IPv6)
	assert.True(t, cfg.UseHeuristics)
	assert.Equal(t, []string{"denied", "cache"}, cfg.Monitoring)
	require.Len(t, cfg.ExternalDNS, 2)
	assert.Equal(t, "10.0.0.53:5353", cfg.ExternalDNS[1].Address)
	assert.Equal(t, []string{"internal.example"}, cfg.ExternalDNS[1].Targets)
	assert.Equal(t, 64, cfg.Cache.Limit)
	assert.Equal(t, "500ms", cfg.Cache.Timeout.String())

	// Unset sentinels fall back to the defaults.
	assert.Equal(t, "127.0.0.1", cfg.Nullroute)
	assert.Equal(t, "::1", cfg.Nullroutev6)
}
