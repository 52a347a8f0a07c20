// Package media exposes a video file as a playable frame source backed by an
// ffmpeg decoder process.
package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/retroclip/internal/compositor"
	"github.com/kikiluvv/retroclip/internal/ffmpeg"
)

// DefaultFPS is used when the container does not report a frame rate.
const DefaultFPS = 30

// Info describes an opened source.
type Info struct {
	Path     string
	Width    int
	Height   int
	Duration time.Duration
	FPS      float64
	HasAudio bool
}

// Options configures playback.
type Options struct {
	// FPS overrides the decode rate; 0 uses the source rate.
	FPS   float64
	Clock Clock
}

type frameStream interface {
	io.Reader
	Close() error
}

// streamFunc starts decoding at the given playback time.
type streamFunc func(ctx context.Context, at time.Duration) (frameStream, error)

// Source plays a video: seek, play, pause and pull the frame at the current
// playback time. Methods are safe for concurrent use.
type Source struct {
	logger zerolog.Logger
	info   Info
	open   streamFunc

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	clock  *playClock

	stream  frameStream
	origin  time.Duration
	decoded int64
	cur     []byte
	next    []byte
	have    bool
	eof     bool
}

// Open probes path and primes the first frame.
func Open(ctx context.Context, logger zerolog.Logger, exec *ffmpeg.Executor, path string, opts Options) (*Source, error) {
	vi, err := exec.ProbeVideo(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	if vi.Width <= 0 || vi.Height <= 0 {
		return nil, fmt.Errorf("%s: invalid frame size %dx%d", path, vi.Width, vi.Height)
	}

	fps := opts.FPS
	if fps <= 0 {
		fps = vi.FPS
	}
	if fps <= 0 || math.IsInf(fps, 0) || fps > 240 {
		fps = DefaultFPS
	}

	info := Info{
		Path:     path,
		Width:    vi.Width,
		Height:   vi.Height,
		Duration: vi.Duration,
		FPS:      fps,
		HasAudio: vi.HasAudio,
	}

	open := func(ctx context.Context, at time.Duration) (frameStream, error) {
		p, err := exec.Decode(ctx, ffmpeg.DecodeOptions{
			Input:  path,
			Start:  at,
			FPS:    fps,
			Width:  info.Width,
			Height: info.Height,
		})
		if err != nil {
			return nil, err
		}
		return pipeStream{p}, nil
	}

	s := newSource(logger, info, open, opts.Clock)
	if err := s.Seek(ctx, 0); err != nil {
		s.Close()
		return nil, err
	}
	s.logger.Info().
		Int("width", info.Width).
		Int("height", info.Height).
		Dur("duration", info.Duration).
		Float64("fps", fps).
		Bool("audio", info.HasAudio).
		Msg("Source opened")
	return s, nil
}

func newSource(logger zerolog.Logger, info Info, open streamFunc, clock Clock) *Source {
	ctx, cancel := context.WithCancel(context.Background())
	size := info.Width * info.Height * 4
	return &Source{
		logger: logger.With().Str("component", "media").Logger(),
		info:   info,
		open:   open,
		ctx:    ctx,
		cancel: cancel,
		clock:  newPlayClock(clock, info.FPS, info.Duration),
		cur:    make([]byte, size),
		next:   make([]byte, size),
	}
}

func (s *Source) Info() Info              { return s.info }
func (s *Source) Path() string            { return s.info.Path }
func (s *Source) Width() int              { return s.info.Width }
func (s *Source) Height() int             { return s.info.Height }
func (s *Source) Duration() time.Duration { return s.info.Duration }
func (s *Source) HasAudio() bool          { return s.info.HasAudio }

// Play starts or resumes playback.
func (s *Source) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.play()
}

// Pause freezes playback at the current position.
func (s *Source) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.pause()
}

// Playing reports whether the clock is running.
func (s *Source) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.playing
}

// CurrentTime returns the playback position.
func (s *Source) CurrentTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.position()
}

// Ended reports whether playback reached the end of the media.
func (s *Source) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eof || s.clock.atEnd()
}

// Seek restarts decoding at t and returns once the first frame there has
// been decoded.
func (s *Source) Seek(ctx context.Context, t time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	t = max(0, t)
	if s.info.Duration > 0 {
		t = min(t, s.info.Duration)
	}

	s.closeStream()
	stream, err := s.open(s.ctx, t)
	if err != nil {
		return fmt.Errorf("seek to %v: %w", t, err)
	}
	s.stream = stream
	s.origin = t
	s.decoded = 0
	s.have = false
	s.eof = false
	s.clock.set(t)

	if err := s.readFrame(); err != nil {
		return fmt.Errorf("seek to %v: %w", t, err)
	}
	return nil
}

// Frame copies the frame for the current playback time into dst, skipping
// decoded frames that are already late. A stepped clock then advances by one
// frame.
func (s *Source) Frame(dst *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := dst.Bounds()
	if b.Dx() != s.info.Width || b.Dy() != s.info.Height {
		return fmt.Errorf("frame buffer is %dx%d, source is %dx%d", b.Dx(), b.Dy(), s.info.Width, s.info.Height)
	}

	want := int64(math.Floor((s.clock.position()-s.origin).Seconds()*s.info.FPS + 1e-6))
	for s.decoded-1 < want && !s.eof {
		if err := s.readFrame(); err != nil {
			return err
		}
	}

	if s.have {
		copyFrame(dst, s.cur, s.info.Width)
	} else {
		compositor.Clear(dst)
	}
	s.clock.advance()
	return nil
}

// readFrame pulls the next frame into cur. Running out of data marks the
// stream as ended and is not an error.
func (s *Source) readFrame() error {
	if s.stream == nil || s.eof {
		return nil
	}
	_, err := io.ReadFull(s.stream, s.next)
	switch {
	case err == nil:
		s.cur, s.next = s.next, s.cur
		s.decoded++
		s.have = true
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.eof = true
		return nil
	default:
		return fmt.Errorf("decode: %w", err)
	}
}

func copyFrame(dst *image.RGBA, src []byte, w int) {
	b := dst.Bounds()
	row := w * 4
	for y := 0; y < b.Dy(); y++ {
		off := dst.PixOffset(b.Min.X, b.Min.Y+y)
		copy(dst.Pix[off:off+row], src[y*row:(y+1)*row])
	}
}

func (s *Source) closeStream() {
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("closing decoder")
		}
		s.stream = nil
	}
}

// Close stops the decoder.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeStream()
	s.cancel()
	return nil
}

type pipeStream struct {
	p *ffmpeg.Pipe
}

func (ps pipeStream) Read(b []byte) (int, error) {
	return ps.p.Stdout().Read(b)
}

// Close kills the decoder; the exit status of a killed process is expected.
func (ps pipeStream) Close() error {
	ps.p.Kill()
	_ = ps.p.Wait()
	return nil
}
