package encoder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/retroclip/internal/ffmpeg"
)

const chunkSize = 64 << 10

type ffmpegSink struct {
	logger zerolog.Logger
	exec   *ffmpeg.Executor
	cfg    Config
	opts   Options

	audio  string
	pipe   *ffmpeg.Pipe
	chunks chan []byte
	done   chan struct{}

	mu       sync.Mutex
	readErr  error
	stopOnce sync.Once
}

func newFFmpegSink(logger zerolog.Logger, exec *ffmpeg.Executor, cfg Config, opts Options) *ffmpegSink {
	return &ffmpegSink{
		logger: logger,
		exec:   exec,
		cfg:    cfg,
		opts:   opts,
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
}

func (s *ffmpegSink) AttachAudio(path string) error {
	if s.pipe != nil {
		return fmt.Errorf("audio must be attached before start")
	}
	if s.cfg.AudioCodec == "" {
		return ErrNoAudio
	}
	s.audio = path
	return nil
}

func (s *ffmpegSink) DetachAudio() {
	s.audio = ""
}

func (s *ffmpegSink) Start(ctx context.Context) error {
	if s.pipe != nil {
		return fmt.Errorf("sink already started")
	}
	p, err := s.exec.Encode(ctx, ffmpeg.EncodeOptions{
		Width:      s.opts.Width,
		Height:     s.opts.Height,
		FPS:        s.opts.FPS,
		Bitrate:    s.opts.Bitrate,
		Format:     s.cfg.Format,
		VideoCodec: s.cfg.VideoCodec,
		AudioCodec: s.cfg.AudioCodec,
		AudioInput: s.audio,
	})
	if err != nil {
		return err
	}
	s.pipe = p
	go s.read()
	return nil
}

// read forwards container bytes as they become ready.
func (s *ffmpegSink) read() {
	defer close(s.done)
	defer close(s.chunks)

	r := s.pipe.Stdout()
	for {
		buf := make([]byte, chunkSize)
		n, err := r.Read(buf)
		if n > 0 {
			s.chunks <- buf[:n]
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.mu.Lock()
				s.readErr = err
				s.mu.Unlock()
			}
			return
		}
	}
}

func (s *ffmpegSink) WriteFrame(frame *image.RGBA) error {
	if s.pipe == nil {
		return fmt.Errorf("sink not started")
	}
	b := frame.Bounds()
	if b.Dx() != s.opts.Width || b.Dy() != s.opts.Height {
		return fmt.Errorf("frame is %dx%d, sink expects %dx%d", b.Dx(), b.Dy(), s.opts.Width, s.opts.Height)
	}
	if err := writeRGBA(s.pipe.Stdin(), frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (s *ffmpegSink) Chunks() <-chan []byte {
	return s.chunks
}

func (s *ffmpegSink) Stop(ctx context.Context) error {
	if s.pipe == nil {
		s.closeUnstarted()
		return nil
	}
	var err error
	s.stopOnce.Do(func() {
		if cerr := s.pipe.CloseInput(); cerr != nil {
			s.logger.Debug().Err(cerr).Msg("closing encoder input")
		}
		select {
		case <-s.done:
		case <-ctx.Done():
			s.pipe.Kill()
			<-s.done
			_ = s.pipe.Wait()
			err = ctx.Err()
			return
		}
		if werr := s.pipe.Wait(); werr != nil {
			err = fmt.Errorf("encoder failed: %w", werr)
			return
		}
		s.mu.Lock()
		err = s.readErr
		s.mu.Unlock()
	})
	return err
}

func (s *ffmpegSink) Abort() error {
	if s.pipe == nil {
		s.closeUnstarted()
		return nil
	}
	s.stopOnce.Do(func() {
		s.pipe.Kill()
		<-s.done
		_ = s.pipe.Wait()
	})
	return nil
}

func (s *ffmpegSink) closeUnstarted() {
	s.stopOnce.Do(func() {
		close(s.chunks)
		close(s.done)
	})
}
