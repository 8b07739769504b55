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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "vef.db", cfg.Database.DSN)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, "ffmpeg", cfg.FFmpeg.Bin)
	assert.Equal(t, "ffprobe", cfg.FFmpeg.Probe)
	assert.InDelta(t, 5.0, cfg.FFmpeg.TimeoutFactor, 0.001)
	assert.Equal(t, 60, cfg.Encoding.GopLength)
	assert.Equal(t, 30, cfg.Encoding.KeyintMin)
	assert.Equal(t, 0, cfg.Encoding.ScThreshold)
	assert.Equal(t, "vmaf_v0.6.1", cfg.Vmaf.ModelVersion)
	assert.Equal(t, 5, cfg.Vmaf.MaxAttempts)
	assert.Equal(t, 200, cfg.Vmaf.MinBitrateKbps)
	assert.Equal(t, 80000, cfg.Vmaf.MaxBitrateKbps)
	assert.InDelta(t, 1.25, cfg.Vmaf.IncreaseFactor, 0.001)
	assert.InDelta(t, 0.85, cfg.Vmaf.DecreaseFactor, 0.001)
	assert.InDelta(t, 0.7, cfg.Abr.MinrateFactor, 0.001)
	assert.InDelta(t, 1.15, cfg.Abr.MaxrateFactor, 0.001)
	assert.InDelta(t, 2.0, cfg.Abr.BufsizeFactor, 0.001)
	assert.True(t, cfg.Cleanup.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
database:
  driver: postgres
  dsn: "host=localhost user=vef dbname=vef"
scheduler:
  poll_interval: 500ms
vmaf:
  max_attempts: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 500*time.Millisecond, cfg.Scheduler.PollInterval)
	assert.Equal(t, 3, cfg.Vmaf.MaxAttempts)
	// Unset values keep defaults.
	assert.Equal(t, "ffmpeg", cfg.FFmpeg.Bin)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VEF_SERVER_PORT", "7070")
	t.Setenv("VEF_FFMPEG_BIN", "/opt/ffmpeg/bin/ffmpeg")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpeg.Bin)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"empty workspace", func(c *Config) { c.Storage.Workspace = "" }, "storage.workspace"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"zero poll interval", func(c *Config) { c.Scheduler.PollInterval = 0 }, "poll_interval"},
		{"zero timeout factor", func(c *Config) { c.FFmpeg.TimeoutFactor = 0 }, "timeout_factor"},
		{"inverted bitrate bounds", func(c *Config) { c.Vmaf.MaxBitrateKbps = c.Vmaf.MinBitrateKbps }, "max_bitrate_kbps"},
		{"increase factor too small", func(c *Config) { c.Vmaf.IncreaseFactor = 1.0 }, "increase_factor"},
		{"decrease factor too large", func(c *Config) { c.Vmaf.DecreaseFactor = 1.0 }, "decrease_factor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDownloadsPath(t *testing.T) {
	s := StorageConfig{Workspace: "/var/lib/vef", DownloadsDir: "downloads"}
	assert.Equal(t, filepath.Join("/var/lib/vef", "downloads"), s.DownloadsPath())
}

func TestServerAddress(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", s.Address())
}
