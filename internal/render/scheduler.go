package render

import (
	"errors"
	"fmt"
	"image"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/kikiluvv/retroclip/internal/compositor"
	"github.com/kikiluvv/retroclip/internal/overlay"
	"github.com/kikiluvv/retroclip/internal/state"
)

// Mode selects which surface a tick renders into.
type Mode int32

const (
	ModePreview Mode = iota
	ModeExport
)

func (m Mode) String() string {
	if m == ModeExport {
		return "export"
	}
	return "preview"
}

// ErrExporting is returned by BeginExport and PreviewTick while an export
// pass owns the scheduler.
var ErrExporting = errors.New("export already in progress")

// FrameSource supplies decoded frames.
type FrameSource interface {
	Width() int
	Height() int
	CurrentTime() time.Duration
	// Frame copies the frame at the current playback time into dst, which
	// has the source's native size.
	Frame(dst *image.RGBA) error
}

// Options configures a Scheduler.
type Options struct {
	// PreviewMaxWidth caps the preview surface width; 0 keeps the native
	// size.
	PreviewMaxWidth int
	Rand            *rand.Rand
}

// Scheduler owns the editor state. One Tick renders exactly one frame into
// the surface of the current mode; preview and export never interleave.
type Scheduler struct {
	logger zerolog.Logger
	mu     sync.Mutex
	mode   atomic.Int32

	editor *state.Editor
	queue  *state.Queue

	previewMaxW int
	preview     *Pipeline
	export      *Pipeline

	native     *image.RGBA
	previewBuf *image.RGBA
	exportBuf  *image.RGBA
}

// NewScheduler wraps editor. All mutation from other goroutines must go
// through queue.
func NewScheduler(logger zerolog.Logger, editor *state.Editor, queue *state.Queue, opts Options) *Scheduler {
	logger = logger.With().Str("component", "render").Logger()
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scheduler{
		logger:      logger,
		editor:      editor,
		queue:       queue,
		previewMaxW: opts.PreviewMaxWidth,
		preview:     NewPipeline(logger, rng),
		export:      NewPipeline(logger, rng),
	}
}

// Queue returns the command queue drained at the start of every tick.
func (s *Scheduler) Queue() *state.Queue {
	return s.queue
}

// Mode returns the current mode. It is safe to call from any goroutine.
func (s *Scheduler) Mode() Mode {
	return Mode(s.mode.Load())
}

// PreviewOverlays exposes the preview pipeline's overlay boxes. Only read it
// from inside a command or between ticks of the same goroutine.
func (s *Scheduler) PreviewOverlays() *overlay.Renderer {
	return s.preview.Overlays()
}

// Do runs fn against the editor between ticks.
func (s *Scheduler) Do(fn func(e *state.Editor)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.editor)
}

// Snapshot returns a copy of the editor with pending commands applied.
func (s *Scheduler) Snapshot() state.Editor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Drain(s.editor)
	return s.editor.Snapshot()
}

// BeginExport switches to export mode with a w x h surface.
func (s *Scheduler) BeginExport(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid export size %dx%d", w, h)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Mode() == ModeExport {
		return ErrExporting
	}
	if s.exportBuf == nil || s.exportBuf.Bounds().Dx() != w || s.exportBuf.Bounds().Dy() != h {
		s.exportBuf = compositor.NewSurface(w, h)
	}
	s.editor.Exporting = true
	s.mode.Store(int32(ModeExport))
	s.logger.Debug().Int("width", w).Int("height", h).Msg("Export mode")
	return nil
}

// EndExport returns to preview mode.
func (s *Scheduler) EndExport() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editor.Exporting = false
	s.mode.Store(int32(ModePreview))
	s.logger.Debug().Msg("Preview mode")
}

// Tick drains pending commands, pulls the current frame from src, renders it
// and advances the frame counter. The returned surface is reused by the next
// tick of the same mode.
func (s *Scheduler) Tick(src FrameSource) (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick(src)
}

// PreviewTick is Tick for the display loop. Once an export owns the
// scheduler it renders nothing, leaves the queue and frame counter alone and
// returns ErrExporting.
func (s *Scheduler) PreviewTick(src FrameSource) (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Mode() == ModeExport {
		return nil, ErrExporting
	}
	return s.tick(src)
}

// tick must be called with s.mu held. Mode only changes under s.mu.
func (s *Scheduler) tick(src FrameSource) (*image.RGBA, error) {
	s.queue.Drain(s.editor)

	var (
		dst      *image.RGBA
		pipeline *Pipeline
		err      error
	)
	if s.Mode() == ModeExport {
		dst, pipeline = s.exportBuf, s.export
		err = src.Frame(dst)
	} else {
		pipeline = s.preview
		dst, err = s.previewFrame(src)
	}
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	if err := pipeline.Render(dst, s.editor, src.CurrentTime()); err != nil {
		return nil, err
	}
	s.editor.FrameCount++
	return dst, nil
}

func (s *Scheduler) previewFrame(src FrameSource) (*image.RGBA, error) {
	w, h := src.Width(), src.Height()
	if s.native == nil || s.native.Bounds().Dx() != w || s.native.Bounds().Dy() != h {
		s.native = compositor.NewSurface(w, h)
	}
	if err := src.Frame(s.native); err != nil {
		return nil, err
	}

	pw, ph := PreviewSize(w, h, s.previewMaxW)
	if pw == w && ph == h {
		return s.native, nil
	}
	if s.previewBuf == nil || s.previewBuf.Bounds().Dx() != pw || s.previewBuf.Bounds().Dy() != ph {
		s.previewBuf = compositor.NewSurface(pw, ph)
	}
	scaled := resize.Resize(uint(pw), uint(ph), s.native, resize.Bilinear)
	draw.Draw(s.previewBuf, s.previewBuf.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
	return s.previewBuf, nil
}

// PreviewSize fits w x h into maxW keeping the aspect ratio.
func PreviewSize(w, h, maxW int) (int, int) {
	if maxW <= 0 || w <= maxW {
		return w, h
	}
	return maxW, max(1, h*maxW/w)
}
