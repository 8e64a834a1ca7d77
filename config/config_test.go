package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 6379, cfg.ServerPort)
	assert.Equal(t, 0, cfg.HTTPPort)
	assert.Equal(t, time.Second, cfg.SweepInterval)
	assert.Equal(t, "json", cfg.SnapshotFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.PersistenceEnabled())
	assert.Equal(t, "", cfg.GetHTTPAddress())
	assert.Equal(t, "0.0.0.0:6379", cfg.GetAddress())
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero server port", mutate: func(c *Config) { c.ServerPort = 0 }},
		{name: "server port too big", mutate: func(c *Config) { c.ServerPort = 70000 }},
		{name: "negative http port", mutate: func(c *Config) { c.HTTPPort = -1 }},
		{name: "colliding ports", mutate: func(c *Config) { c.HTTPPort = c.ServerPort }},
		{name: "bad bind addr", mutate: func(c *Config) { c.BindAddr = "not an ip" }},
		{name: "negative max connections", mutate: func(c *Config) { c.MaxConnections = -1 }},
		{name: "zero sweep interval", mutate: func(c *Config) { c.SweepInterval = 0 }},
		{name: "negative snapshot interval", mutate: func(c *Config) { c.SnapshotInterval = -time.Second }},
		{name: "bad snapshot format", mutate: func(c *Config) { c.SnapshotFormat = "xml" }},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "trace" }},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "logfmt" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFile_Empty(t *testing.T) {
	cfg, err := LoadFromFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minikv.yaml")
	content := `
server_port: 7000
http_port: 7001
snapshot_path: /tmp/minikv.snap
snapshot_format: bolt
snapshot_interval: 30s
sweep_interval: 250ms
log_level: debug
log_format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.ServerPort)
	assert.Equal(t, 7001, cfg.HTTPPort)
	assert.Equal(t, "/tmp/minikv.snap", cfg.SnapshotPath)
	assert.Equal(t, "bolt", cfg.SnapshotFormat)
	assert.Equal(t, 30*time.Second, cfg.SnapshotInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.SweepInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	// untouched fields keep defaults
	assert.Equal(t, "0.0.0.0", cfg.BindAddr)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_Malformed(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{not json"), 0o644))
	_, err := LoadFromFile(jsonPath)
	assert.Error(t, err)

	yamlPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("server_port: [1, 2"), 0o644))
	_, err = LoadFromFile(yamlPath)
	assert.Error(t, err)
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	for _, name := range []string{"nested/minikv.json", "nested/minikv.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			cfg := DefaultConfig()
			cfg.ServerPort = 6400
			cfg.SnapshotPath = "/var/lib/minikv/dump"
			cfg.SnapshotInterval = 5 * time.Minute
			require.NoError(t, cfg.SaveToFile(path))

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MINIKV_PORT", "6500")
	t.Setenv("MINIKV_HTTP_PORT", "6501")
	t.Setenv("MINIKV_SNAPSHOT_PATH", "/data/minikv.bin")
	t.Setenv("MINIKV_SNAPSHOT_FORMAT", "binary")
	t.Setenv("MINIKV_SWEEP_INTERVAL", "2s")
	t.Setenv("MINIKV_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	require.NoError(t, LoadFromEnv(cfg))
	assert.Equal(t, 6500, cfg.ServerPort)
	assert.Equal(t, 6501, cfg.HTTPPort)
	assert.Equal(t, "/data/minikv.bin", cfg.SnapshotPath)
	assert.Equal(t, "binary", cfg.SnapshotFormat)
	assert.Equal(t, 2*time.Second, cfg.SweepInterval)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.PersistenceEnabled())
	assert.Equal(t, "0.0.0.0:6501", cfg.GetHTTPAddress())
}

func TestLoadFromEnv_Malformed(t *testing.T) {
	t.Setenv("MINIKV_PORT", "six")
	assert.Error(t, LoadFromEnv(DefaultConfig()))

	t.Setenv("MINIKV_PORT", "")
	t.Setenv("MINIKV_SWEEP_INTERVAL", "soon")
	assert.Error(t, LoadFromEnv(DefaultConfig()))
}

func TestString(t *testing.T) {
	assert.Contains(t, DefaultConfig().String(), `"server_port": 6379`)
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minikv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, zerolog.Nop(), func(c *Config) {
			select {
			case changes <- c:
			default:
			}
		})
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	// an invalid file is skipped
	require.NoError(t, os.WriteFile(path, []byte("log_level: loud\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))

	// a write may be observed half done, so wait for the final content
	deadline := time.After(3 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case cfg := <-changes:
			assert.NotEqual(t, "loud", cfg.LogLevel)
			reloaded = cfg.LogLevel == "debug"
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}
