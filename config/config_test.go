package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Gthulhu/scx_netland/engine"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("scx_netland", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "", newFlags(t))
	require.NoError(t, err)

	assert.EqualValues(t, 20000, cfg.Scheduler.SliceUs)
	assert.EqualValues(t, 1000, cfg.Scheduler.SliceUsMin)
	assert.Equal(t, "main.bpf.o", cfg.Scheduler.BPFObject)
	assert.Equal(t, "enp153s0", cfg.Congestion.Interface)
	assert.Equal(t, 500*time.Millisecond, cfg.CongestionInterval())
	assert.Equal(t, "127.0.0.1:9190", cfg.Stats.Addr)
	assert.Zero(t, cfg.MonitorInterval())
	assert.Equal(t, "info", cfg.LogLevel())

	ec := cfg.EngineConfig()
	assert.EqualValues(t, engine.SLICE_NS_DEFAULT, ec.SliceNsDefault)
	assert.EqualValues(t, engine.SLICE_NS_MIN, ec.SliceNsMin)
	assert.False(t, ec.PerCPULocal)
	assert.Zero(t, ec.CongestionBias)
}

func TestLoadFlags(t *testing.T) {
	fs := newFlags(t, "-s", "5000", "-S", "500", "-l", "-v", "--interface", "eth0",
		"--congestion-bias", "40", "--monitor", "1.5", "--stats-addr", ":9999")
	cfg, err := Load("", "", fs)
	require.NoError(t, err)

	assert.EqualValues(t, 5000, cfg.Scheduler.SliceUs)
	assert.EqualValues(t, 500, cfg.Scheduler.SliceUsMin)
	assert.True(t, cfg.Scheduler.PerCPULocal)
	assert.Equal(t, "debug", cfg.LogLevel())
	assert.Equal(t, "eth0", cfg.Congestion.Interface)
	assert.Equal(t, 1500*time.Millisecond, cfg.MonitorInterval())
	assert.Equal(t, ":9999", cfg.Stats.Addr)

	ec := cfg.EngineConfig()
	assert.EqualValues(t, 5_000_000, ec.SliceNsDefault)
	assert.EqualValues(t, 500_000, ec.SliceNsMin)
	assert.EqualValues(t, 40, ec.CongestionBias)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	body := `
[scheduler]
slice_us = 8000
partial = true

[congestion]
interface = "wlan0"
interval_ms = 250
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "netland.toml"), []byte(body), 0o644))
	t.Setenv("SCX_CONGESTION_INTERFACE", "eth1")

	cfg, err := Load("netland", dir, newFlags(t))
	require.NoError(t, err)
	assert.EqualValues(t, 8000, cfg.Scheduler.SliceUs)
	assert.True(t, cfg.Scheduler.Partial)
	assert.Equal(t, 250*time.Millisecond, cfg.CongestionInterval())
	assert.Equal(t, "eth1", cfg.Congestion.Interface, "env beats file")

	cfg, err = Load("netland", dir, newFlags(t, "--interface", "eth2"))
	require.NoError(t, err)
	assert.Equal(t, "eth2", cfg.Congestion.Interface, "flag beats env")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("does_not_exist", t.TempDir(), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 20000, cfg.Scheduler.SliceUs)
}

func TestLoadBrokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.toml"), []byte("[scheduler\nslice_us ="), 0o644))
	_, err := Load("bad", dir, nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("", "", nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero slice", func(c *Config) { c.Scheduler.SliceUs = 0 }},
		{"zero min slice", func(c *Config) { c.Scheduler.SliceUsMin = 0 }},
		{"min above default", func(c *Config) { c.Scheduler.SliceUsMin = c.Scheduler.SliceUs + 1 }},
		{"zero interval", func(c *Config) { c.Congestion.IntervalMs = 0 }},
		{"bias too large", func(c *Config) { c.Congestion.Bias = 101 }},
		{"negative monitor", func(c *Config) { c.Stats.Monitor = -1 }},
		{"predictor without weights", func(c *Config) { c.Predictor.Mode = "resnet" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	_, err = Load("", "", newFlags(t, "-S", "30000"))
	assert.Error(t, err)
}
