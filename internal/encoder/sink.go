package encoder

import (
	"context"
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/retroclip/internal/ffmpeg"
)

// Sink accepts frames at a declared rate and emits the encoded container
// incrementally.
type Sink interface {
	// AttachAudio muxes the audio of the media at path. It must be called
	// before Start.
	AttachAudio(path string) error
	DetachAudio()
	Start(ctx context.Context) error
	WriteFrame(frame *image.RGBA) error
	// Chunks delivers encoded data in order and is closed once the sink
	// has finished or aborted.
	Chunks() <-chan []byte
	// Stop flushes pending frames and waits for the container to be
	// finalized.
	Stop(ctx context.Context) error
	// Abort stops without flushing.
	Abort() error
}

// Options describes the stream fed to a sink.
type Options struct {
	Width   int
	Height  int
	FPS     float64
	Bitrate int
	// Quality is the JPEG quality of native MJPEG frames.
	Quality int
}

// New builds the sink for cfg. exec may be nil for native configurations.
func New(logger zerolog.Logger, exec *ffmpeg.Executor, cfg Config, opts Options) (Sink, error) {
	if opts.Width <= 0 || opts.Height <= 0 || opts.FPS <= 0 {
		return nil, fmt.Errorf("invalid sink options %dx%d@%v", opts.Width, opts.Height, opts.FPS)
	}
	logger = logger.With().Str("component", "encoder").Str("encoder", cfg.Name).Logger()

	if cfg.Native {
		return newMJPEGSink(logger, opts), nil
	}
	if exec == nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, ErrUnavailable)
	}
	return newFFmpegSink(logger, exec, cfg, opts), nil
}

// writeRGBA writes the packed pixel rows of img.
func writeRGBA(w interface{ Write([]byte) (int, error) }, img *image.RGBA) error {
	b := img.Bounds()
	row := b.Dx() * 4
	if img.Stride == row && b.Min == (image.Point{}) {
		_, err := w.Write(img.Pix[:row*b.Dy()])
		return err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := w.Write(img.Pix[off : off+row]); err != nil {
			return err
		}
	}
	return nil
}
