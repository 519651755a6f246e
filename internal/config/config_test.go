package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Simulation.Interval)
	assert.Equal(t, 22, cfg.Simulation.PanelCount)
	assert.Equal(t, 15, cfg.Simulation.WindowLength)
	assert.Equal(t, WrapSkip, cfg.Simulation.WrapPolicy)
	assert.Equal(t, 3, cfg.Simulation.FaultThreshold)
	assert.Equal(t, 5.0, cfg.Simulation.WarningPercent)
	assert.Equal(t, 10.0, cfg.Simulation.FaultPercent)
	assert.Equal(t, 14471.13, cfg.Scaler.TargetMax)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.InfluxDB.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SIMULATION_INTERVAL", "2s")
	t.Setenv("SIMULATION_PANEL_COUNT", "4")
	t.Setenv("SIMULATION_WRAP_POLICY", "PROCESS")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Simulation.Interval)
	assert.Equal(t, 4, cfg.Simulation.PanelCount)
	assert.Equal(t, WrapProcess, cfg.Simulation.WrapPolicy)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solarguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("simulation:\n  fault_threshold: 5\nhttp:\n  addr: \":9090\"\n"), 0o644))
	t.Setenv("SOLARGUARD_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Simulation.FaultThreshold)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero interval", mutate: func(c *Config) { c.Simulation.Interval = 0 }},
		{name: "no panels", mutate: func(c *Config) { c.Simulation.PanelCount = 0 }},
		{name: "empty window", mutate: func(c *Config) { c.Simulation.WindowLength = 0 }},
		{name: "unknown wrap policy", mutate: func(c *Config) { c.Simulation.WrapPolicy = "rewind" }},
		{name: "zero fault threshold", mutate: func(c *Config) { c.Simulation.FaultThreshold = 0 }},
		{name: "warning above fault", mutate: func(c *Config) { c.Simulation.WarningPercent = 12 }},
		{name: "inverted target", mutate: func(c *Config) { c.Scaler.TargetMax = -1 }},
		{name: "kafka without brokers", mutate: func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
