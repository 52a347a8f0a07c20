// Package encoder turns rendered frames into an encoded container delivered
// as ordered chunks.
package encoder

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/retroclip/internal/ffmpeg"
)

var (
	// ErrUnavailable means no candidate configuration can be used.
	ErrUnavailable = errors.New("no supported encoder configuration")
	// ErrNoAudio means the configuration cannot carry an audio track.
	ErrNoAudio = errors.New("encoder does not support audio")
)

// Config is one container/codec combination.
type Config struct {
	Name       string
	Format     string
	Ext        string
	MIME       string
	VideoCodec string
	AudioCodec string
	// Native configurations are encoded in-process and need no ffmpeg.
	Native bool
}

// DefaultCandidates lists configurations in order of preference.
var DefaultCandidates = []Config{
	{Name: "webm/vp9", Format: "webm", Ext: ".webm", MIME: "video/webm", VideoCodec: ffmpeg.CodecVP9, AudioCodec: ffmpeg.CodecOpus},
	{Name: "webm/vp8", Format: "webm", Ext: ".webm", MIME: "video/webm", VideoCodec: ffmpeg.CodecVP8, AudioCodec: ffmpeg.CodecOpus},
	{Name: "webm", Format: "webm", Ext: ".webm", MIME: "video/webm"},
	{Name: "mp4", Format: "mp4", Ext: ".mp4", MIME: "video/mp4", VideoCodec: ffmpeg.CodecH264, AudioCodec: ffmpeg.CodecAAC},
	{Name: "avi/mjpeg", Format: "avi", Ext: ".avi", MIME: "video/x-msvideo", Native: true},
}

// Lookup finds a candidate by name.
func Lookup(name string) (Config, bool) {
	for _, c := range DefaultCandidates {
		if c.Name == name {
			return c, true
		}
	}
	return Config{}, false
}

// Select returns the named candidates in the given order, skipping unknown
// names. An empty list selects DefaultCandidates.
func Select(names []string) []Config {
	if len(names) == 0 {
		return DefaultCandidates
	}
	out := make([]Config, 0, len(names))
	for _, n := range names {
		if c, ok := Lookup(n); ok {
			out = append(out, c)
		}
	}
	return out
}

// Capability is the outcome of negotiation: Available with a Config, or
// unavailable.
type Capability struct {
	Available bool
	Config    Config
}

// Prober reports the encoders ffmpeg was built with.
type Prober interface {
	Encoders(ctx context.Context) (map[string]bool, error)
}

// Negotiate picks the first usable candidate. A nil prober, or one that
// fails, leaves only native configurations usable. The audio codec is not
// required: a missing one only drops the audio track.
func Negotiate(ctx context.Context, logger zerolog.Logger, prober Prober, candidates []Config) Capability {
	var encoders map[string]bool
	if prober != nil {
		var err error
		if encoders, err = prober.Encoders(ctx); err != nil {
			logger.Warn().Err(err).Msg("Encoder probe failed, only native encoders remain")
			encoders = nil
		}
	}

	for _, c := range candidates {
		switch {
		case c.Native:
		case encoders == nil:
			continue
		case c.VideoCodec != "" && !encoders[c.VideoCodec]:
			continue
		}
		if c.AudioCodec != "" && !c.Native && !encoders[c.AudioCodec] {
			c.AudioCodec = ""
		}
		logger.Info().Str("encoder", c.Name).Msg("Encoder selected")
		return Capability{Available: true, Config: c}
	}

	return Capability{}
}
