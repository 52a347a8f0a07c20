package main

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/retroclip/internal/encoder"
	"github.com/kikiluvv/retroclip/internal/export"
	"github.com/kikiluvv/retroclip/internal/media"
	"github.com/kikiluvv/retroclip/internal/mp4meta"
	"github.com/kikiluvv/retroclip/internal/render"
	"github.com/kikiluvv/retroclip/internal/state"
	"github.com/kikiluvv/retroclip/pkg/util"
)

// editorFlags are shared by export and still.
var editorFlags struct {
	filter      string
	intensity   int
	title       string
	timestamp   string
	noTimestamp bool
	titlePos    string
	stampPos    string
	format      string
}

var exportFlags struct {
	out   string
	dir   string
	clock string
}

var stillFlags struct {
	at  string
	out string
}

func addEditorFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&editorFlags.filter, "filter", "", "filter: none, vhs, super8, camcorder, 8mm, 16mm")
	f.IntVar(&editorFlags.intensity, "intensity", 75, "filter intensity 0-100")
	f.StringVar(&editorFlags.title, "title", "", "title text")
	f.StringVar(&editorFlags.timestamp, "timestamp", "", "timestamp as YYYY-MM-DDTHH:MM (default: from the file)")
	f.BoolVar(&editorFlags.noTimestamp, "no-timestamp", false, "do not prefill the timestamp from the file")
	f.StringVar(&editorFlags.titlePos, "title-pos", "", "title position preset")
	f.StringVar(&editorFlags.stampPos, "timestamp-pos", "", "timestamp position preset")
	f.StringVar(&editorFlags.format, "format", "", "timestamp format: us, eu, iso, date-only, time-only")
}

func init() {
	addEditorFlags(exportCmd)
	exportCmd.Flags().StringVarP(&exportFlags.out, "out", "o", "", "output file name (default: export.output_name)")
	exportCmd.Flags().StringVar(&exportFlags.dir, "dir", "", "output directory (default: export.output_dir)")
	exportCmd.Flags().StringVar(&exportFlags.clock, "clock", "", "playback clock: realtime or stepped (default: from export.realtime)")

	addEditorFlags(stillCmd)
	stillCmd.Flags().StringVar(&stillFlags.at, "at", "0", "media time of the frame (seconds, m:ss or 1.5s)")
	stillCmd.Flags().StringVarP(&stillFlags.out, "out", "o", "still.png", "output PNG")
}

var exportCmd = &cobra.Command{
	Use:   "export [input video]",
	Short: "Render a clip with a filter and overlays into a video file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var stillCmd = &cobra.Command{
	Use:   "still [input video]",
	Short: "Render a single full-resolution frame to PNG",
	Args:  cobra.ExactArgs(1),
	RunE:  runStill,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [input video]",
	Short: "Show what retroclip sees in a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

// buildEditor applies config defaults, then any flags that were set.
func (a *app) buildEditor(cmd *cobra.Command, path string) (*state.Editor, error) {
	ed := state.New()
	if err := a.editorDefaults(ed); err != nil {
		return nil, err
	}
	flags := cmd.Flags()

	if flags.Changed("filter") {
		f, err := state.ParseFilter(editorFlags.filter)
		if err != nil {
			return nil, err
		}
		ed.Filter = f
	}
	if flags.Changed("intensity") {
		ed.SetIntensity(editorFlags.intensity)
	}
	if flags.Changed("format") {
		f, err := state.ParseTimestampFormat(editorFlags.format)
		if err != nil {
			return nil, err
		}
		ed.TimestampFormat = f
	}
	ed.Title.Text = editorFlags.title
	if err := a.place(ed, state.DragTitle, editorFlags.titlePos); err != nil {
		return nil, err
	}
	if err := a.place(ed, state.DragTimestamp, editorFlags.stampPos); err != nil {
		return nil, err
	}

	switch {
	case flags.Changed("timestamp"):
		ed.Timestamp.Text = editorFlags.timestamp
	case !editorFlags.noTimestamp:
		t, source, err := mp4meta.Resolve(path)
		if err != nil {
			return nil, err
		}
		ed.Timestamp.Text = mp4meta.LocalDatetime(t, time.Local)
		a.logger.Debug().Str("source", string(source)).Str("timestamp", ed.Timestamp.Text).Msg("Timestamp prefilled")
	}

	ed.Loaded = true
	return ed, nil
}

func (a *app) place(ed *state.Editor, target state.DragTarget, name string) error {
	if name == "" {
		return nil
	}
	pos, ok := a.positions.Get(name)
	if !ok {
		return fmt.Errorf("unknown %s position %q", target, name)
	}
	ed.MoveLayer(target, pos)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a := newApp(ctx)
	path := args[0]

	if err := media.ValidateInput(path); err != nil {
		return err
	}
	opts := a.exportOptions()
	clock := media.ClockStepped
	if opts.Realtime {
		clock = media.ClockRealtime
	}
	if exportFlags.clock != "" {
		c, err := media.ParseClock(exportFlags.clock)
		if err != nil {
			return err
		}
		clock = c
		opts.Realtime = c == media.ClockRealtime
	}
	if exportFlags.out != "" {
		opts.OutputName = exportFlags.out
	}

	ed, err := a.buildEditor(cmd, path)
	if err != nil {
		return err
	}
	src, err := a.open(ctx, path, clock)
	if err != nil {
		return err
	}
	defer src.Close()

	dir := a.cfg.Export.OutputDir
	if exportFlags.dir != "" {
		dir = exportFlags.dir
	}
	downloader := export.FileDownloader{Dir: dir}
	deps := a.exportDeps()
	deps.Downloader = downloader
	deps.OnProgress = progressPrinter(cmd.ErrOrStderr(), src.Duration())

	sched := render.NewScheduler(a.logger, ed, state.NewQueue(16), render.Options{PreviewMaxWidth: a.cfg.Preview.MaxWidth})
	m := export.NewMachine(a.logger, sched, deps, opts)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		m.Cancel()
	}()

	res, err := m.Run(context.WithoutCancel(ctx), src)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ev := a.logger.Info().
		Str("file", downloader.Path(res.Name)).
		Str("encoder", res.Encoder).
		Int("frames", res.Frames).
		Int("bytes", res.Size).
		Dur("elapsed", res.Elapsed)
	if res.TranscodeErr != nil {
		ev = ev.AnErr("transcode", res.TranscodeErr)
	}
	ev.Msg("Export complete")
	return nil
}

// progressPrinter redraws one status line per update.
func progressPrinter(w io.Writer, total time.Duration) func(export.Progress) {
	last := ""
	return func(p export.Progress) {
		at := time.Duration(p.Fraction * float64(total))
		line := fmt.Sprintf("\r%-10s %3.0f%%  %s / %s", p.Phase, p.Fraction*100, util.FormatClock(at), util.FormatClock(total))
		if line == last {
			return
		}
		last = line
		fmt.Fprint(w, line)
	}
}

func runStill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a := newApp(ctx)
	path := args[0]

	at, err := util.ParseTimestamp(stillFlags.at)
	if err != nil {
		return err
	}
	if err := media.ValidateInput(path); err != nil {
		return err
	}
	ed, err := a.buildEditor(cmd, path)
	if err != nil {
		return err
	}
	src, err := a.open(ctx, path, media.ClockStepped)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := src.Seek(ctx, at); err != nil {
		return err
	}
	sched := render.NewScheduler(a.logger, ed, state.NewQueue(1), render.Options{})
	if err := sched.BeginExport(src.Width(), src.Height()); err != nil {
		return err
	}
	defer sched.EndExport()

	frame, err := sched.Tick(src)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	if err := util.WriteFileAtomic(stillFlags.out, buf.Bytes()); err != nil {
		return err
	}
	a.logger.Info().Str("file", stillFlags.out).Dur("at", src.CurrentTime()).Msg("Still written")
	return nil
}

type inspectReport struct {
	Path       string  `yaml:"path"`
	Type       string  `yaml:"type"`
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Duration   string  `yaml:"duration"`
	FPS        float64 `yaml:"fps"`
	VideoCodec string  `yaml:"video_codec"`
	Audio      bool    `yaml:"audio"`
	AudioCodec string  `yaml:"audio_codec,omitempty"`
	Created    string  `yaml:"created"`
	DateSource string  `yaml:"date_source"`
	Encoder    string  `yaml:"encoder"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a := newApp(ctx)
	path := args[0]

	mimeType, err := media.DetectType(path)
	if err != nil {
		return err
	}
	if a.exec == nil {
		return errNoFFmpeg
	}
	vi, err := a.exec.ProbeVideo(ctx, path)
	if err != nil {
		return err
	}
	created, source, err := mp4meta.Resolve(path)
	if err != nil {
		return err
	}

	r := inspectReport{
		Path:       path,
		Type:       mimeType,
		Width:      vi.Width,
		Height:     vi.Height,
		Duration:   util.FormatClock(vi.Duration),
		FPS:        vi.FPS,
		VideoCodec: vi.VideoCodec,
		Audio:      vi.HasAudio,
		AudioCodec: vi.AudioCodec,
		Created:    mp4meta.LocalDatetime(created, time.Local),
		DateSource: string(source),
		Encoder:    "none",
	}
	if c := encoder.Negotiate(ctx, a.logger, a.prober(), encoder.Select(a.cfg.Export.Encoders)); c.Available {
		r.Encoder = c.Config.Name
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
