// Package export drives a full-resolution render pass in step with playback
// and feeds every composited frame into an encoding sink.
package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/retroclip/internal/encoder"
	"github.com/kikiluvv/retroclip/internal/render"
)

var (
	// ErrBusy is returned when an export is already running.
	ErrBusy = errors.New("export already running")
	// ErrNotLoaded is returned when there is no media to export.
	ErrNotLoaded = errors.New("no media loaded")
	// ErrCancelled is returned by Run after a cancelled export.
	ErrCancelled = errors.New("export cancelled")
)

// DefaultFlushDelay is the pause between the end of playback and stopping
// the sink.
const DefaultFlushDelay = 200 * time.Millisecond

// Source is the media being exported.
type Source interface {
	render.FrameSource
	Path() string
	Duration() time.Duration
	HasAudio() bool
	Play()
	Pause()
	Seek(ctx context.Context, t time.Duration) error
	Ended() bool
}

// Transcoder re-encodes a captured container. Any error means the capture is
// delivered as is.
type Transcoder interface {
	Transcode(ctx context.Context, blob []byte, ext string, duration time.Duration, progress func(float64)) ([]byte, error)
}

// SinkFactory builds the sink for a negotiated configuration.
type SinkFactory func(cfg encoder.Config, opts encoder.Options) (encoder.Sink, error)

// Deps are the collaborators of a Machine. Prober and Transcoder may be nil.
type Deps struct {
	Prober     encoder.Prober
	NewSink    SinkFactory
	Transcoder Transcoder
	Downloader Downloader
	OnProgress func(Progress)
}

// Options tunes an export pass.
type Options struct {
	FPS        float64
	Bitrate    int
	FlushDelay time.Duration
	// Realtime paces ticks at FPS. Without it frames are produced as fast
	// as the source allows.
	Realtime   bool
	OutputName string
	Candidates []encoder.Config
}

// Result describes a delivered export.
type Result struct {
	JobID        string
	Name         string
	Size         int
	Frames       int
	Encoder      string
	Transcoded   bool
	TranscodeErr error
	Elapsed      time.Duration
}

// Machine runs one export at a time against a scheduler.
type Machine struct {
	logger zerolog.Logger
	sched  *render.Scheduler
	deps   Deps
	opts   Options

	phase atomic.Int32
	mu    sync.Mutex
	job   *Job
}

// NewMachine returns an idle machine.
func NewMachine(logger zerolog.Logger, sched *render.Scheduler, deps Deps, opts Options) *Machine {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.FlushDelay < 0 {
		opts.FlushDelay = 0
	}
	if len(opts.Candidates) == 0 {
		opts.Candidates = encoder.DefaultCandidates
	}
	return &Machine{
		logger: logger.With().Str("component", "export").Logger(),
		sched:  sched,
		deps:   deps,
		opts:   opts,
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return Phase(m.phase.Load())
}

// Job returns the running job, or nil when idle.
func (m *Machine) Job() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job
}

// Cancel flags the running job. It reports whether there was one.
func (m *Machine) Cancel() bool {
	j := m.Job()
	if j == nil {
		return false
	}
	j.Cancel()
	m.logger.Info().Str("job", j.ID).Msg("Export cancellation requested")
	return true
}

func (m *Machine) setPhase(j *Job, p Phase, msg string) {
	m.phase.Store(int32(p))
	m.report(j, msg)
}

func (m *Machine) report(j *Job, msg string) {
	if m.deps.OnProgress == nil {
		return
	}
	p := Progress{Phase: m.Phase(), Message: msg}
	if j != nil {
		p.JobID = j.ID
		p.Fraction = j.Progress()
		p.Frames = j.Frames()
	}
	m.deps.OnProgress(p)
}

// Run exports src and delivers the result. Whatever happens, the machine is
// back in idle and the scheduler back in preview mode when Run returns.
func (m *Machine) Run(ctx context.Context, src Source) (*Result, error) {
	if src == nil || src.Width() <= 0 || src.Height() <= 0 {
		return nil, ErrNotLoaded
	}
	if !m.phase.CompareAndSwap(int32(PhaseIdle), int32(PhasePreparing)) {
		return nil, ErrBusy
	}

	job := newJob(src.Width(), src.Height())
	m.mu.Lock()
	m.job = job
	m.mu.Unlock()

	log := m.logger.With().Str("job", job.ID).Logger()
	log.Info().Int("width", job.Width).Int("height", job.Height).Dur("duration", src.Duration()).Msg("Export started")

	defer func() {
		m.mu.Lock()
		m.job = nil
		m.mu.Unlock()
		m.setPhase(job, PhaseIdle, "idle")
	}()

	m.report(job, "preparing")
	res, err := m.run(ctx, log, job, src)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			log.Info().Int("frames", job.Frames()).Msg("Export cancelled")
		} else {
			log.Error().Err(err).Msg("Export failed")
		}
		return nil, err
	}
	log.Info().
		Str("name", res.Name).
		Int("bytes", res.Size).
		Int("frames", res.Frames).
		Bool("transcoded", res.Transcoded).
		Dur("elapsed", res.Elapsed).
		Msg("Export finished")
	return res, nil
}

func (m *Machine) run(ctx context.Context, log zerolog.Logger, job *Job, src Source) (*Result, error) {
	if err := m.sched.BeginExport(job.Width, job.Height); err != nil {
		return nil, err
	}
	defer m.sched.EndExport()

	capability := encoder.Negotiate(ctx, log, m.deps.Prober, m.opts.Candidates)
	if !capability.Available {
		return nil, encoder.ErrUnavailable
	}
	cfg := capability.Config
	job.setConfig(cfg)

	if m.deps.NewSink == nil {
		return nil, fmt.Errorf("no sink factory: %w", encoder.ErrUnavailable)
	}
	sink, err := m.deps.NewSink(cfg, encoder.Options{
		Width:   job.Width,
		Height:  job.Height,
		FPS:     m.opts.FPS,
		Bitrate: m.opts.Bitrate,
	})
	if err != nil {
		return nil, fmt.Errorf("create sink: %w", err)
	}

	if src.HasAudio() {
		if err := sink.AttachAudio(src.Path()); err != nil {
			log.Warn().Err(err).Msg("Audio unavailable, exporting video only")
		}
	}
	defer sink.DetachAudio()

	if err := src.Seek(ctx, 0); err != nil {
		_ = sink.Abort()
		return nil, fmt.Errorf("rewind source: %w", err)
	}
	if err := sink.Start(ctx); err != nil {
		_ = sink.Abort()
		return nil, fmt.Errorf("start sink: %w", err)
	}
	collected := job.collect(sink.Chunks())

	abort := func() {
		_ = sink.Abort()
		src.Pause()
		<-collected
	}

	m.setPhase(job, PhaseRecording, "recording")
	if err := m.record(ctx, job, src, sink); err != nil {
		if errors.Is(err, ErrCancelled) {
			m.setPhase(job, PhaseCancelling, "cancelling")
		}
		abort()
		return nil, err
	}

	if err := sleepCtx(ctx, m.opts.FlushDelay); err != nil {
		abort()
		return nil, err
	}
	stopErr := sink.Stop(ctx)
	src.Pause()
	<-collected
	if stopErr != nil {
		return nil, fmt.Errorf("finalize: %w", stopErr)
	}
	job.setProgress(1)

	blob := job.Assemble()
	if len(blob) == 0 {
		return nil, fmt.Errorf("encoder %s produced no data", cfg.Name)
	}

	m.setPhase(job, PhaseFinishing, "finishing")
	res := &Result{
		JobID:   job.ID,
		Frames:  job.Frames(),
		Encoder: cfg.Name,
	}
	if m.deps.Transcoder != nil {
		out, err := m.deps.Transcoder.Transcode(ctx, blob, cfg.Ext, src.Duration(), func(f float64) {
			m.report(job, fmt.Sprintf("transcoding %.0f%%", max(0, min(1, f))*100))
		})
		if err != nil {
			log.Warn().Err(err).Msg("Transcode failed, keeping captured container")
			res.TranscodeErr = err
		} else {
			blob = out
			res.Transcoded = true
		}
	}

	res.Name = OutputName(m.opts.OutputName, res.Transcoded, cfg.Ext)
	res.Size = len(blob)
	if m.deps.Downloader != nil {
		if err := m.deps.Downloader.Deliver(ctx, res.Name, blob); err != nil {
			return nil, fmt.Errorf("deliver %s: %w", res.Name, err)
		}
	}
	res.Elapsed = time.Since(job.Started)
	return res, nil
}

// record ticks until the source ends. Cancellation is polled once per frame.
func (m *Machine) record(ctx context.Context, job *Job, src Source, sink encoder.Sink) error {
	var pace <-chan time.Time
	if m.opts.Realtime {
		t := time.NewTicker(time.Duration(float64(time.Second) / m.opts.FPS))
		defer t.Stop()
		pace = t.C
	}

	src.Play()
	duration := src.Duration()
	for {
		if job.Cancelled() {
			return ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := m.sched.Tick(src)
		if err != nil {
			return err
		}
		if err := sink.WriteFrame(frame); err != nil {
			return fmt.Errorf("submit frame: %w", err)
		}
		job.frames.Add(1)

		now := src.CurrentTime()
		if duration > 0 {
			job.setProgress(float64(now) / float64(duration))
		}
		m.report(job, "")

		if src.Ended() || (duration > 0 && now >= duration) {
			return nil
		}

		if pace != nil {
			select {
			case <-pace:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
