// Package gui is the desktop preview editor.
package gui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/retroclip/internal/export"
	"github.com/kikiluvv/retroclip/internal/media"
	"github.com/kikiluvv/retroclip/internal/mp4meta"
	"github.com/kikiluvv/retroclip/internal/overlay"
	"github.com/kikiluvv/retroclip/internal/render"
	"github.com/kikiluvv/retroclip/internal/state"
	"github.com/kikiluvv/retroclip/pkg/util"
)

// Media is an opened clip.
type Media interface {
	export.Source
	Playing() bool
	Close() error
}

// Options wires the editor to decoding and exporting.
type Options struct {
	Open   func(ctx context.Context, path string) (Media, error)
	Export export.Deps
	// ExportOptions is used for every export started from the window.
	ExportOptions export.Options
	// OutputDir is shown in the completion message.
	OutputDir string
	// Defaults prepares the editor before the window opens.
	Defaults        func(*state.Editor) error
	PreviewMaxWidth int
	FPS             int
}

// Editor is the preview window.
type Editor struct {
	logger    zerolog.Logger
	opts      Options
	sched     *render.Scheduler
	queue     *state.Queue
	positions *overlay.Registry

	window  fyne.Window
	preview *Preview

	mu      sync.Mutex
	media   Media
	machine *export.Machine

	fileLabel  *widget.Label
	timeLabel  *widget.Label
	statusLbl  *widget.Label
	seek       *widget.Slider
	playBtn    *widget.Button
	exportBtn  *widget.Button
	cancelBtn  *widget.Button
	progress   *widget.ProgressBar
	stampEntry *widget.Entry
}

// Run opens the editor window and blocks until it is closed.
func Run(ctx context.Context, logger zerolog.Logger, opts Options) error {
	if opts.Open == nil {
		return errors.New("gui: no media opener")
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	ed := state.New()
	if opts.Defaults != nil {
		if err := opts.Defaults(ed); err != nil {
			return fmt.Errorf("editor defaults: %w", err)
		}
	}

	queue := state.NewQueue(256)
	e := &Editor{
		logger:    logger.With().Str("component", "gui").Logger(),
		opts:      opts,
		queue:     queue,
		positions: overlay.NewRegistry(),
		sched:     render.NewScheduler(logger, ed, queue, render.Options{PreviewMaxWidth: opts.PreviewMaxWidth}),
	}
	e.preview = NewPreview(queue, e.sched.PreviewOverlays())

	a := app.NewWithID("retroclip")
	e.window = a.NewWindow("retroclip")
	e.window.Resize(fyne.NewSize(1100, 720))
	e.window.SetContent(e.build(e.sched.Snapshot()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go e.loop(ctx)

	e.window.SetOnClosed(func() {
		cancel()
		e.mu.Lock()
		if e.machine != nil {
			e.machine.Cancel()
		}
		e.mu.Unlock()
	})
	e.window.ShowAndRun()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.media != nil {
		return e.media.Close()
	}
	return nil
}

func (e *Editor) build(initial state.Editor) fyne.CanvasObject {
	e.fileLabel = widget.NewLabel("No video loaded")
	e.timeLabel = widget.NewLabel("0:00 / 0:00")
	e.statusLbl = widget.NewLabel("")
	e.progress = widget.NewProgressBar()

	loadBtn := widget.NewButton("Load Video", e.showOpen)

	e.playBtn = widget.NewButton("Play", e.togglePlay)
	e.seek = widget.NewSlider(0, 1)
	e.seek.Step = 0.001
	e.seek.OnChangeEnded = e.seekTo

	filters := make([]string, len(state.Filters))
	for i, f := range state.Filters {
		filters[i] = string(f)
	}
	filterSel := widget.NewSelect(filters, func(s string) {
		f, err := state.ParseFilter(s)
		if err != nil {
			return
		}
		e.queue.Push(func(ed *state.Editor) { ed.Filter = f })
	})
	filterSel.SetSelected(string(initial.Filter))

	intensity := widget.NewSlider(0, 100)
	intensity.Step = 1
	intensity.Value = float64(initial.Intensity)
	intensity.OnChanged = func(v float64) {
		e.queue.Push(func(ed *state.Editor) { ed.SetIntensity(int(v)) })
	}

	titleEntry := widget.NewEntry()
	titleEntry.SetPlaceHolder("Title")
	titleEntry.SetText(initial.Title.Text)
	titleEntry.OnChanged = func(s string) {
		e.queue.Push(func(ed *state.Editor) { ed.Title.Text = s })
	}

	e.stampEntry = widget.NewEntry()
	e.stampEntry.SetPlaceHolder("YYYY-MM-DDTHH:MM")
	e.stampEntry.SetText(initial.Timestamp.Text)
	e.stampEntry.OnChanged = func(s string) {
		e.queue.Push(func(ed *state.Editor) { ed.Timestamp.Text = s })
	}

	formats := make([]string, len(state.TimestampFormats))
	for i, f := range state.TimestampFormats {
		formats[i] = string(f)
	}
	formatSel := widget.NewSelect(formats, func(s string) {
		f, err := state.ParseTimestampFormat(s)
		if err != nil {
			return
		}
		e.queue.Push(func(ed *state.Editor) { ed.TimestampFormat = f })
	})
	formatSel.SetSelected(string(initial.TimestampFormat))

	titlePos := e.positionSelect(state.DragTitle)
	stampPos := e.positionSelect(state.DragTimestamp)

	e.exportBtn = widget.NewButton("Export", e.startExport)
	e.cancelBtn = widget.NewButton("Cancel", e.cancelExport)
	e.cancelBtn.Disable()

	form := widget.NewForm(
		widget.NewFormItem("Filter", filterSel),
		widget.NewFormItem("Intensity", intensity),
		widget.NewFormItem("Title", titleEntry),
		widget.NewFormItem("Title position", titlePos),
		widget.NewFormItem("Timestamp", e.stampEntry),
		widget.NewFormItem("Format", formatSel),
		widget.NewFormItem("Timestamp position", stampPos),
	)

	side := container.NewVBox(
		loadBtn,
		e.fileLabel,
		form,
		container.NewHBox(e.exportBtn, e.cancelBtn),
		e.progress,
		e.statusLbl,
	)
	transport := container.NewBorder(nil, nil, e.playBtn, e.timeLabel, e.seek)
	main := container.NewBorder(nil, transport, nil, nil, e.preview)
	split := container.NewHSplit(main, container.NewVScroll(side))
	split.Offset = 0.7
	return split
}

func (e *Editor) positionSelect(target state.DragTarget) *widget.Select {
	sel := widget.NewSelect(e.positions.List(), func(name string) {
		pos, ok := e.positions.Get(name)
		if !ok {
			return
		}
		e.queue.Push(func(ed *state.Editor) { ed.MoveLayer(target, pos) })
	})
	sel.PlaceHolder = "(dragged)"
	return sel
}

func (e *Editor) current() Media {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.media
}

// loop is the preview render loop. It stands down while an export owns the
// scheduler.
func (e *Editor) loop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(e.opts.FPS))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		src := e.current()
		if src == nil {
			continue
		}
		frame, err := e.sched.PreviewTick(src)
		if errors.Is(err, render.ErrExporting) {
			continue
		}
		if err != nil {
			e.logger.Warn().Err(err).Msg("Preview frame failed")
			continue
		}
		show := e.preview.SetFrame(frame)
		now, total := src.CurrentTime(), src.Duration()
		playing := src.Playing()
		if src.Ended() && playing {
			src.Pause()
			e.queue.Push(func(ed *state.Editor) { ed.Playing = false })
			playing = false
		}
		fyne.Do(func() {
			show()
			e.timeLabel.SetText(util.FormatClock(now) + " / " + util.FormatClock(total))
			if total > 0 {
				e.seek.SetValue(float64(now) / float64(total))
			}
			if playing {
				e.playBtn.SetText("Pause")
			} else {
				e.playBtn.SetText("Play")
			}
		})
	}
}

func (e *Editor) showOpen() {
	fd := dialog.NewFileOpen(func(ur fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, e.window)
			return
		}
		if ur == nil {
			return
		}
		path := ur.URI().Path()
		_ = ur.Close()
		go e.load(path)
	}, e.window)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".mp4", ".mov", ".m4v", ".webm", ".mkv", ".avi"}))
	fd.Show()
}

func (e *Editor) load(path string) {
	log := e.logger.With().Str("path", path).Logger()
	if err := media.ValidateInput(path); err != nil {
		fyne.Do(func() { dialog.ShowError(err, e.window) })
		return
	}
	if e.sched.Mode() == render.ModeExport {
		fyne.Do(func() { dialog.ShowError(render.ErrExporting, e.window) })
		return
	}

	src, err := e.opts.Open(context.Background(), path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open video")
		fyne.Do(func() { dialog.ShowError(err, e.window) })
		return
	}

	stamp := ""
	if t, source, err := mp4meta.Resolve(path); err == nil {
		stamp = mp4meta.LocalDatetime(t, time.Local)
		log.Debug().Str("source", string(source)).Str("timestamp", stamp).Msg("Resolved creation date")
	}

	e.mu.Lock()
	old := e.media
	e.media = src
	e.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	e.queue.Push(func(ed *state.Editor) {
		ed.Loaded = true
		ed.Playing = false
		if stamp != "" {
			ed.Timestamp.Text = stamp
		}
	})
	log.Info().Dur("duration", src.Duration()).Bool("audio", src.HasAudio()).Msg("Video loaded")

	fyne.Do(func() {
		e.fileLabel.SetText(filepath.Base(path))
		if stamp != "" {
			e.stampEntry.SetText(stamp)
		}
		e.statusLbl.SetText("")
		e.progress.SetValue(0)
	})
}

func (e *Editor) togglePlay() {
	src := e.current()
	if src == nil || e.sched.Mode() == render.ModeExport {
		return
	}
	if src.Playing() {
		src.Pause()
		e.queue.Push(func(ed *state.Editor) { ed.Playing = false })
		e.playBtn.SetText("Play")
		return
	}
	go func() {
		if src.Ended() {
			if err := src.Seek(context.Background(), 0); err != nil {
				e.logger.Warn().Err(err).Msg("Rewind failed")
				return
			}
		}
		src.Play()
		e.queue.Push(func(ed *state.Editor) { ed.Playing = true })
	}()
	e.playBtn.SetText("Pause")
}

func (e *Editor) seekTo(v float64) {
	src := e.current()
	if src == nil || e.sched.Mode() == render.ModeExport {
		return
	}
	at := time.Duration(v * float64(src.Duration()))
	go func() {
		if err := src.Seek(context.Background(), at); err != nil {
			e.logger.Warn().Err(err).Dur("at", at).Msg("Seek failed")
		}
	}()
}

func (e *Editor) startExport() {
	src := e.current()
	if src == nil {
		dialog.ShowInformation("Export", "Load a video first.", e.window)
		return
	}

	deps := e.opts.Export
	deps.OnProgress = func(p export.Progress) {
		fyne.Do(func() {
			e.progress.SetValue(p.Fraction)
			e.statusLbl.SetText(fmt.Sprintf("%s: %s", p.Phase, p.Message))
		})
	}
	m := export.NewMachine(e.logger, e.sched, deps, e.opts.ExportOptions)

	e.mu.Lock()
	if e.machine != nil {
		e.mu.Unlock()
		return
	}
	e.machine = m
	e.mu.Unlock()

	e.exportBtn.Disable()
	e.cancelBtn.Enable()
	e.playBtn.Disable()
	e.progress.SetValue(0)

	go func() {
		res, err := m.Run(context.Background(), src)

		e.mu.Lock()
		e.machine = nil
		e.mu.Unlock()
		e.queue.Push(func(ed *state.Editor) { ed.Playing = false })

		fyne.Do(func() {
			e.exportBtn.Enable()
			e.cancelBtn.Disable()
			e.playBtn.Enable()
			switch {
			case errors.Is(err, export.ErrCancelled):
				e.statusLbl.SetText("Export cancelled")
				e.progress.SetValue(0)
			case err != nil:
				e.statusLbl.SetText("Export failed")
				dialog.ShowError(err, e.window)
			default:
				e.statusLbl.SetText("Export complete")
				dialog.ShowInformation("Export complete", e.summary(res), e.window)
			}
		})
	}()
}

func (e *Editor) summary(res *export.Result) string {
	msg := fmt.Sprintf("Saved %s (%d frames, %s, %s)",
		filepath.Join(e.opts.OutputDir, res.Name), res.Frames, util.FormatDuration(res.Elapsed), res.Encoder)
	if res.TranscodeErr != nil {
		msg += "\nMP4 conversion failed; kept the original recording."
	}
	return msg
}

func (e *Editor) cancelExport() {
	e.mu.Lock()
	m := e.machine
	e.mu.Unlock()
	if m != nil && m.Cancel() {
		e.statusLbl.SetText("Cancelling...")
	}
}
