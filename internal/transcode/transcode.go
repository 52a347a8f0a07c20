// Package transcode re-encodes a captured container into broadly compatible
// H.264/AAC MP4. It is best-effort: callers keep the original on any error.
package transcode

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	ffmpeggo "github.com/u2takey/ffmpeg-go"

	"github.com/kikiluvv/retroclip/internal/ffmpeg"
	"github.com/kikiluvv/retroclip/pkg/util"
)

// ErrEngineUnavailable means ffmpeg or a required encoder is missing.
var ErrEngineUnavailable = errors.New("transcode engine unavailable")

// Settings is the fixed transcode target.
type Settings struct {
	VideoCodec   string `yaml:"video_codec"`
	Preset       string `yaml:"preset"`
	CRF          int    `yaml:"crf"`
	AudioCodec   string `yaml:"audio_codec"`
	AudioBitrate string `yaml:"audio_bitrate"`
}

// DefaultSettings targets H.264 at visually lossless quality with 192k AAC.
func DefaultSettings() Settings {
	return Settings{
		VideoCodec:   ffmpeg.CodecH264,
		Preset:       "fast",
		CRF:          18,
		AudioCodec:   ffmpeg.CodecAAC,
		AudioBitrate: "192k",
	}
}

// Runner is the part of the ffmpeg executor the engine needs.
type Runner interface {
	Run(ctx context.Context, opts ffmpeg.RunOptions) error
	Encoders(ctx context.Context) (map[string]bool, error)
}

// Locator provides a runner on first use.
type Locator func() (Runner, error)

// Engine is loaded on first use and cached for the life of the process.
type Engine struct {
	logger   zerolog.Logger
	settings Settings
	locate   Locator

	mu      sync.Mutex
	loaded  bool
	runner  Runner
	loadErr error
}

// New returns an engine that calls locate on first use.
func New(logger zerolog.Logger, settings Settings, locate Locator) *Engine {
	return &Engine{
		logger:   logger.With().Str("component", "transcode").Logger(),
		settings: settings,
		locate:   locate,
	}
}

// Load locates ffmpeg and verifies the target encoders. The outcome is
// cached once known; a load cut short by ctx is retried on the next call.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return e.loadErr
	}

	r, err := e.load(ctx)
	if err != nil && ctx.Err() != nil {
		return err
	}
	e.loaded = true
	e.runner, e.loadErr = r, err
	return err
}

func (e *Engine) load(ctx context.Context) (Runner, error) {
	start := time.Now()
	if e.locate == nil {
		return nil, ErrEngineUnavailable
	}
	r, err := e.locate()
	if err != nil {
		return nil, errors.Wrapf(ErrEngineUnavailable, "locate ffmpeg: %v", err)
	}
	encoders, err := r.Encoders(ctx)
	if err != nil {
		return nil, errors.Wrapf(ErrEngineUnavailable, "list encoders: %v", err)
	}
	for _, codec := range []string{e.settings.VideoCodec, e.settings.AudioCodec} {
		if codec != "" && !encoders[codec] {
			return nil, errors.Wrapf(ErrEngineUnavailable, "encoder %s missing", codec)
		}
	}
	e.logger.Debug().Dur("took", time.Since(start)).Msg("Transcode engine loaded")
	return r, nil
}

// Args builds the transcode command line for in -> out.
func (e *Engine) Args(in, out string) []string {
	kw := ffmpeggo.KwArgs{
		"c:v":      e.settings.VideoCodec,
		"preset":   e.settings.Preset,
		"crf":      e.settings.CRF,
		"c:a":      e.settings.AudioCodec,
		"b:a":      e.settings.AudioBitrate,
		"pix_fmt":  "yuv420p",
		"movflags": "+faststart",
	}
	return ffmpeggo.Input(in).Output(out, kw).GetArgs()
}

// Transcode re-encodes blob, whose container is identified by ext, and
// returns the MP4 bytes. progress receives fractions in [0,1] computed
// against duration.
func (e *Engine) Transcode(ctx context.Context, blob []byte, ext string, duration time.Duration, progress func(float64)) ([]byte, error) {
	if err := e.Load(ctx); err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return nil, errors.New("nothing to transcode")
	}

	in, err := util.TempFile("", "retroclip-capture-", ext)
	if err != nil {
		return nil, errors.Wrap(err, "create input file")
	}
	inPath := in.Name()
	if _, err := in.Write(blob); err != nil {
		in.Close()
		util.CleanupFiles(inPath)
		return nil, errors.Wrap(err, "write input file")
	}
	if err := in.Close(); err != nil {
		util.CleanupFiles(inPath)
		return nil, errors.Wrap(err, "close input file")
	}

	out, err := util.TempFile("", "retroclip-transcoded-", ".mp4")
	if err != nil {
		util.CleanupFiles(inPath)
		return nil, errors.Wrap(err, "create output file")
	}
	outPath := out.Name()
	out.Close()
	defer util.CleanupFiles(inPath, outPath)

	e.logger.Info().Int("bytes", len(blob)).Str("container", ext).Msg("Transcoding capture")

	err = e.runner.Run(ctx, ffmpeg.RunOptions{
		Args: e.Args(inPath, outPath),
		ProgressHandler: func(p *ffmpeg.Progress) {
			if progress != nil {
				progress(p.Fraction(duration))
			}
		},
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("transcode output")
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "transcode")
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, errors.Wrap(err, "read transcoded file")
	}
	if len(data) == 0 {
		return nil, errors.New("transcode produced an empty file")
	}
	if progress != nil {
		progress(1)
	}
	return data, nil
}
