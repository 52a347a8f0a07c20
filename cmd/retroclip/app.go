package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/retroclip/internal/config"
	"github.com/kikiluvv/retroclip/internal/encoder"
	"github.com/kikiluvv/retroclip/internal/export"
	"github.com/kikiluvv/retroclip/internal/ffmpeg"
	"github.com/kikiluvv/retroclip/internal/logging"
	"github.com/kikiluvv/retroclip/internal/media"
	"github.com/kikiluvv/retroclip/internal/overlay"
	"github.com/kikiluvv/retroclip/internal/state"
	"github.com/kikiluvv/retroclip/internal/transcode"
)

var errNoFFmpeg = errors.New("ffmpeg not found (set ffmpeg.binary_path or RETROCLIP_FFMPEG_PATH)")

// app holds the collaborators shared by every command.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	exec      *ffmpeg.Executor
	positions *overlay.Registry
}

func newApp(ctx context.Context) *app {
	cfg := config.FromContext(ctx)
	a := &app{
		cfg:       cfg,
		logger:    logging.NewLogger(),
		positions: overlay.NewRegistry(),
	}
	exec, err := ffmpeg.New(a.logger, ffmpeg.Options{
		BinaryPath: cfg.FFmpeg.BinaryPath,
		Threads:    cfg.FFmpeg.Threads,
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("ffmpeg unavailable, only native encoders remain")
	} else {
		a.exec = exec
	}
	return a
}

func (a *app) open(ctx context.Context, path string, clock media.Clock) (*media.Source, error) {
	if a.exec == nil {
		return nil, errNoFFmpeg
	}
	return media.Open(ctx, a.logger, a.exec, path, media.Options{Clock: clock})
}

// prober is nil without ffmpeg so negotiation keeps only native encoders.
func (a *app) prober() encoder.Prober {
	if a.exec == nil {
		return nil
	}
	return a.exec
}

// editorDefaults applies the configured editor settings.
func (a *app) editorDefaults(e *state.Editor) error {
	if err := a.cfg.Editor.Apply(e, a.positions.Get); err != nil {
		return fmt.Errorf("editor config: %w", err)
	}
	return nil
}

func (a *app) exportOptions() export.Options {
	c := a.cfg.Export
	return export.Options{
		FPS:        c.FPS,
		Bitrate:    c.VideoBitrate,
		FlushDelay: c.FlushDelay,
		Realtime:   c.Realtime,
		OutputName: c.OutputName,
		Candidates: encoder.Select(c.Encoders),
	}
}

// exportDeps wires encoding, transcoding and delivery. Delivery writes into
// the configured output directory.
func (a *app) exportDeps() export.Deps {
	deps := export.Deps{
		NewSink: func(cfg encoder.Config, opts encoder.Options) (encoder.Sink, error) {
			return encoder.New(a.logger, a.exec, cfg, opts)
		},
		Downloader: export.FileDownloader{Dir: a.cfg.Export.OutputDir},
	}
	deps.Prober = a.prober()
	if a.cfg.Export.Transcode.Enabled {
		exec := a.exec
		deps.Transcoder = transcode.New(a.logger, a.cfg.Export.Transcode.Settings, func() (transcode.Runner, error) {
			if exec == nil {
				return nil, transcode.ErrEngineUnavailable
			}
			return exec, nil
		})
	}
	return deps
}
