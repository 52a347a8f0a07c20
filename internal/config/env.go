package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RETROCLIP_"

// ApplyEnv loads the given .env files (".env" when none are named, missing
// files are skipped) and overlays RETROCLIP_* variables onto c. Variables
// already set in the process environment win over .env entries.
func (c *Config) ApplyEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return err
		}
	}

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.FFmpeg.BinaryPath = getEnv("FFMPEG_PATH", c.FFmpeg.BinaryPath)
	c.FFmpeg.Threads = getEnvInt("FFMPEG_THREADS", c.FFmpeg.Threads)

	c.Export.FPS = getEnvFloat("EXPORT_FPS", c.Export.FPS)
	c.Export.VideoBitrate = getEnvInt("EXPORT_BITRATE", c.Export.VideoBitrate)
	c.Export.FlushDelay = getEnvDuration("EXPORT_FLUSH_DELAY", c.Export.FlushDelay)
	c.Export.Realtime = getEnvBool("EXPORT_REALTIME", c.Export.Realtime)
	c.Export.OutputName = getEnv("OUTPUT_NAME", c.Export.OutputName)
	c.Export.OutputDir = getEnv("OUTPUT_DIR", c.Export.OutputDir)
	if s := getEnv("ENCODERS", ""); s != "" {
		c.Export.Encoders = splitList(s)
	}
	c.Export.Transcode.Enabled = getEnvBool("TRANSCODE", c.Export.Transcode.Enabled)

	c.Preview.MaxWidth = getEnvInt("PREVIEW_MAX_WIDTH", c.Preview.MaxWidth)

	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Server.UploadDir = getEnv("UPLOAD_DIR", c.Server.UploadDir)
	c.Server.MaxUploadMB = int64(getEnvInt("MAX_UPLOAD_MB", int(c.Server.MaxUploadMB)))
	return nil
}

func getEnv(key, fallback string) string {
	if s := os.Getenv(EnvPrefix + key); s != "" {
		return s
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if s := getEnv(key, ""); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if s := getEnv(key, ""); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if s := getEnv(key, ""); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := getEnv(key, ""); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
