package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/retroclip/internal/state"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30.0, cfg.Export.FPS)
	assert.Equal(t, 8_000_000, cfg.Export.VideoBitrate)
	assert.Equal(t, 200*time.Millisecond, cfg.Export.FlushDelay)
	assert.Equal(t, "retroclip-export.mp4", cfg.Export.OutputName)
	assert.Equal(t, "libx264", cfg.Export.Transcode.Settings.VideoCodec)
	assert.Equal(t, 18, cfg.Export.Transcode.Settings.CRF)
	assert.Equal(t, 75, cfg.Editor.Intensity)
}

func TestLoadMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
export:
  fps: 24
  flush_delay: 500ms
  encoders: [mp4, avi/mjpeg]
  transcode:
    enabled: false
    crf: 23
editor:
  filter: vhs
  title:
    position: top-center
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 24.0, cfg.Export.FPS)
	assert.Equal(t, 500*time.Millisecond, cfg.Export.FlushDelay)
	assert.Equal(t, []string{"mp4", "avi/mjpeg"}, cfg.Export.Encoders)
	assert.False(t, cfg.Export.Transcode.Enabled)
	assert.Equal(t, 23, cfg.Export.Transcode.Settings.CRF)
	assert.Equal(t, "fast", cfg.Export.Transcode.Settings.Preset, "unset keys keep defaults")
	assert.Equal(t, "vhs", cfg.Editor.Filter)
	assert.Equal(t, "top-center", cfg.Editor.Title.Position)
	assert.Equal(t, 48, cfg.Editor.Title.Size)
	assert.True(t, cfg.Editor.Title.Background)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("export: [not a map"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := defaultConfig()
	cfg.Export.FlushDelay = time.Second
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fps", func(c *Config) { c.Export.FPS = 0 }},
		{"flush delay", func(c *Config) { c.Export.FlushDelay = -time.Second }},
		{"filter", func(c *Config) { c.Editor.Filter = "sepia" }},
		{"timestamp format", func(c *Config) { c.Editor.TimestampFormat = "rfc" }},
		{"upload limit", func(c *Config) { c.Server.MaxUploadMB = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("RETROCLIP_EXPORT_FPS=25\nRETROCLIP_SERVER_ADDR=:9999\n"), 0o644))

	t.Setenv("RETROCLIP_SERVER_ADDR", ":7000")
	t.Setenv("RETROCLIP_ENCODERS", "mp4, avi/mjpeg ,")
	t.Setenv("RETROCLIP_TRANSCODE", "false")
	t.Setenv("RETROCLIP_EXPORT_FLUSH_DELAY", "1s")
	t.Setenv("RETROCLIP_FFMPEG_THREADS", "not-a-number")
	// godotenv sets variables for the process; make sure they are removed.
	t.Setenv("RETROCLIP_EXPORT_FPS", "")
	os.Unsetenv("RETROCLIP_EXPORT_FPS")

	cfg := defaultConfig()
	require.NoError(t, cfg.ApplyEnv(envFile, filepath.Join(dir, "missing.env")))

	assert.Equal(t, 25.0, cfg.Export.FPS)
	assert.Equal(t, ":7000", cfg.Server.Addr, "process environment wins over .env")
	assert.Equal(t, []string{"mp4", "avi/mjpeg"}, cfg.Export.Encoders)
	assert.False(t, cfg.Export.Transcode.Enabled)
	assert.Equal(t, time.Second, cfg.Export.FlushDelay)
	assert.Equal(t, 0, cfg.FFmpeg.Threads, "invalid values fall back")
}

func TestEditorApply(t *testing.T) {
	positions := map[string]state.Position{
		"top-left":     {X: 0.12, Y: 0.08},
		"bottom-right": {X: 0.82, Y: 0.92},
	}
	lookup := func(name string) (state.Position, bool) {
		p, ok := positions[name]
		return p, ok
	}

	c := defaultConfig().Editor
	c.Filter = "super8"
	c.Intensity = 150
	c.TimestampFormat = "iso"
	c.Title.Position = "top-left"
	c.Title.Background = false

	e := state.New()
	require.NoError(t, c.Apply(e, lookup))
	assert.Equal(t, state.FilterSuper8, e.Filter)
	assert.Equal(t, 100, e.Intensity)
	assert.Equal(t, state.FormatISO, e.TimestampFormat)
	assert.Equal(t, state.Position{X: 0.12, Y: 0.08}, e.Title.Pos)
	assert.False(t, e.Title.Background)
	assert.Equal(t, state.Position{X: 0.82, Y: 0.92}, e.Timestamp.Pos)

	c.Title.Position = "nowhere"
	assert.Error(t, c.Apply(state.New(), lookup))
}

func TestContext(t *testing.T) {
	cfg := defaultConfig()
	cfg.LogLevel = "warn"
	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
	assert.Equal(t, "info", FromContext(context.Background()).LogLevel)
}
