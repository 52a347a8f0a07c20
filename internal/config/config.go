package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/retroclip/internal/state"
	"github.com/kikiluvv/retroclip/internal/transcode"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	LogLevel string `yaml:"log_level"`

	FFmpeg  FFmpegConfig  `yaml:"ffmpeg"`
	Export  ExportConfig  `yaml:"export"`
	Editor  EditorConfig  `yaml:"editor"`
	Preview PreviewConfig `yaml:"preview"`
	Server  ServerConfig  `yaml:"server"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
	Threads    int    `yaml:"threads"`
}

// ExportConfig tunes the export pass. Encoders lists container/codec
// candidates in order of preference.
type ExportConfig struct {
	FPS          float64         `yaml:"fps"`
	VideoBitrate int             `yaml:"video_bitrate"`
	FlushDelay   time.Duration   `yaml:"flush_delay"`
	Realtime     bool            `yaml:"realtime"`
	OutputName   string          `yaml:"output_name"`
	OutputDir    string          `yaml:"output_dir"`
	Encoders     []string        `yaml:"encoders"`
	Transcode    TranscodeConfig `yaml:"transcode"`
}

type TranscodeConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Settings transcode.Settings `yaml:",inline"`
}

type EditorConfig struct {
	Filter          string     `yaml:"filter"`
	Intensity       int        `yaml:"intensity"`
	TimestampFormat string     `yaml:"timestamp_format"`
	Title           TextConfig `yaml:"title"`
	Timestamp       TextConfig `yaml:"timestamp"`
}

// TextConfig holds the defaults of one text layer. Position names a
// position preset.
type TextConfig struct {
	Size       int    `yaml:"size"`
	Color      string `yaml:"color"`
	Background bool   `yaml:"background"`
	Position   string `yaml:"position"`
}

type PreviewConfig struct {
	MaxWidth int     `yaml:"max_width"`
	FPS      float64 `yaml:"fps"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	UploadDir       string        `yaml:"upload_dir"`
	MaxUploadMB     int64         `yaml:"max_upload_mb"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects values no component can run with
func (c *Config) Validate() error {
	if c.Export.FPS <= 0 {
		return fmt.Errorf("export.fps must be positive, got %v", c.Export.FPS)
	}
	if c.Export.VideoBitrate < 0 {
		return fmt.Errorf("export.video_bitrate must not be negative")
	}
	if c.Export.FlushDelay < 0 {
		return fmt.Errorf("export.flush_delay must not be negative")
	}
	if c.Preview.MaxWidth < 0 {
		return fmt.Errorf("preview.max_width must not be negative")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}
	if _, err := state.ParseFilter(c.Editor.Filter); err != nil {
		return fmt.Errorf("editor.filter: %w", err)
	}
	if _, err := state.ParseTimestampFormat(c.Editor.TimestampFormat); err != nil {
		return fmt.Errorf("editor.timestamp_format: %w", err)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		FFmpeg: FFmpegConfig{
			BinaryPath: "",
			Threads:    0,
		},
		Export: ExportConfig{
			FPS:          30,
			VideoBitrate: 8_000_000,
			FlushDelay:   200 * time.Millisecond,
			Realtime:     true,
			OutputName:   "retroclip-export.mp4",
			OutputDir:    ".",
			Encoders:     []string{"webm/vp9", "webm/vp8", "webm", "mp4", "avi/mjpeg"},
			Transcode: TranscodeConfig{
				Enabled:  true,
				Settings: transcode.DefaultSettings(),
			},
		},
		Editor: EditorConfig{
			Filter:          "none",
			Intensity:       75,
			TimestampFormat: "us",
			Title: TextConfig{
				Size:       48,
				Color:      "#ffffff",
				Background: true,
				Position:   "bottom-center",
			},
			Timestamp: TextConfig{
				Size:       28,
				Color:      "#ffaa00",
				Background: true,
				Position:   "bottom-right",
			},
		},
		Preview: PreviewConfig{
			MaxWidth: 960,
			FPS:      30,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			UploadDir:       filepath.Join(os.TempDir(), "retroclip"),
			MaxUploadMB:     512,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".retroclip", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
