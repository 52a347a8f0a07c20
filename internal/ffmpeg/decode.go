package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"github.com/kikiluvv/retroclip/pkg/util"
)

// DecodeOptions defines a raw RGBA decode starting at Start.
type DecodeOptions struct {
	Input  string
	Start  time.Duration
	FPS    float64
	Width  int
	Height int
}

// DecodeArgs builds the arguments for a decoder writing packed RGBA frames of
// Width x Height to stdout at a constant FPS.
func DecodeArgs(opts DecodeOptions) ([]string, error) {
	if opts.Input == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", opts.Width, opts.Height)
	}

	var args []string
	if opts.Start > 0 {
		args = append(args, "-ss", util.FormatDuration(opts.Start))
	}
	args = append(args, "-i", opts.Input, "-an", "-sn")

	vf := NewFilterBuilder().
		FPS(opts.FPS).
		Scale(opts.Width, opts.Height).
		Format("rgba").
		Build()

	args = append(args,
		"-vf", vf,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
	return args, nil
}

// Decode starts a decoder process. Read Width*Height*4 bytes per frame from
// its Stdout.
func (e *Executor) Decode(ctx context.Context, opts DecodeOptions) (*Pipe, error) {
	args, err := DecodeArgs(opts)
	if err != nil {
		return nil, fmt.Errorf("invalid decode options: %w", err)
	}

	e.logger.Debug().
		Str("input", opts.Input).
		Dur("start", opts.Start).
		Float64("fps", opts.FPS).
		Msg("starting decoder")

	return e.StartPipe(ctx, PipeOptions{Args: args, Name: "decode"})
}
