package encoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"sync"

	"github.com/icza/mjpeg"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/retroclip/pkg/util"
)

// DefaultJPEGQuality is used when Options.Quality is unset.
const DefaultJPEGQuality = 85

// mjpegSink writes a Motion-JPEG AVI in-process. The writer needs a seekable
// file, so the container is delivered as one chunk once finalized.
type mjpegSink struct {
	logger zerolog.Logger
	opts   Options

	path   string
	writer mjpeg.AviWriter
	buf    bytes.Buffer
	chunks chan []byte
	once   sync.Once
}

func newMJPEGSink(logger zerolog.Logger, opts Options) *mjpegSink {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultJPEGQuality
	}
	return &mjpegSink{logger: logger, opts: opts, chunks: make(chan []byte, 1)}
}

func (s *mjpegSink) AttachAudio(string) error { return ErrNoAudio }

func (s *mjpegSink) DetachAudio() {}

func (s *mjpegSink) Start(context.Context) error {
	if s.writer != nil {
		return fmt.Errorf("sink already started")
	}
	f, err := util.TempFile("", "retroclip-mjpeg-", ".avi")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	s.path = f.Name()
	f.Close()

	fps := int32(s.opts.FPS + 0.5)
	if fps < 1 {
		fps = 1
	}
	w, err := mjpeg.New(s.path, int32(s.opts.Width), int32(s.opts.Height), fps)
	if err != nil {
		util.CleanupFiles(s.path)
		return fmt.Errorf("failed to create video writer: %w", err)
	}
	s.writer = w
	return nil
}

func (s *mjpegSink) WriteFrame(frame *image.RGBA) error {
	if s.writer == nil {
		return fmt.Errorf("sink not started")
	}
	s.buf.Reset()
	if err := jpeg.Encode(&s.buf, frame, &jpeg.Options{Quality: s.opts.Quality}); err != nil {
		return fmt.Errorf("encode frame as JPEG: %w", err)
	}
	if err := s.writer.AddFrame(s.buf.Bytes()); err != nil {
		return fmt.Errorf("add frame: %w", err)
	}
	return nil
}

func (s *mjpegSink) Chunks() <-chan []byte {
	return s.chunks
}

func (s *mjpegSink) Stop(context.Context) error {
	var err error
	s.once.Do(func() {
		defer close(s.chunks)
		if s.writer == nil {
			return
		}
		defer util.CleanupFiles(s.path)

		if err = s.writer.Close(); err != nil {
			err = fmt.Errorf("finalize avi: %w", err)
			return
		}
		var data []byte
		if data, err = os.ReadFile(s.path); err != nil {
			return
		}
		s.chunks <- data
		s.logger.Debug().Int("bytes", len(data)).Msg("MJPEG finalized")
	})
	return err
}

func (s *mjpegSink) Abort() error {
	s.once.Do(func() {
		defer close(s.chunks)
		if s.writer == nil {
			return
		}
		_ = s.writer.Close()
		util.CleanupFiles(s.path)
	})
	return nil
}
