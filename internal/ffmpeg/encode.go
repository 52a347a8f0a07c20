package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// EncodeOptions configures an encoder reading raw RGBA frames on stdin and
// writing a container to stdout.
type EncodeOptions struct {
	Width      int
	Height     int
	FPS        float64
	Bitrate    int
	Format     string
	VideoCodec string
	AudioCodec string
	// AudioInput, when set, is muxed as the audio track.
	AudioInput string
}

// EncodeArgs builds the arguments for a streaming encoder.
func EncodeArgs(opts EncodeOptions) ([]string, error) {
	if err := validateEncodeOptions(opts); err != nil {
		return nil, err
	}

	args := []string{
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-framerate", strconv.FormatFloat(opts.FPS, 'f', -1, 64),
		"-i", "pipe:0",
	}

	withAudio := opts.AudioInput != "" && opts.AudioCodec != ""
	if withAudio {
		args = append(args, "-i", opts.AudioInput, "-map", "0:v:0", "-map", "1:a:0?")
	} else {
		args = append(args, "-map", "0:v:0")
	}

	if opts.VideoCodec != "" {
		args = append(args, "-c:v", opts.VideoCodec)
	}
	args = append(args, codecTuning(opts.VideoCodec)...)
	if opts.Bitrate > 0 {
		args = append(args, "-b:v", strconv.Itoa(opts.Bitrate))
	}
	args = append(args, "-pix_fmt", "yuv420p")

	if withAudio {
		args = append(args, "-c:a", opts.AudioCodec, "-shortest")
	}

	if opts.Format == "mp4" {
		// A seekable output is not available on a pipe.
		args = append(args, "-movflags", "frag_keyframe+empty_moov+default_base_moof")
	}

	args = append(args, "-f", opts.Format, "pipe:1")
	return args, nil
}

// codecTuning trades compression for speed so that encoding keeps up with
// playback.
func codecTuning(codec string) []string {
	switch {
	case strings.HasPrefix(codec, "libvpx"):
		return []string{"-deadline", "realtime", "-cpu-used", "8"}
	case codec == CodecH264:
		return []string{"-preset", "veryfast"}
	}
	return nil
}

func validateEncodeOptions(opts EncodeOptions) error {
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", opts.Width, opts.Height)
	}
	if opts.FPS <= 0 {
		return fmt.Errorf("FPS must be positive")
	}
	if opts.Format == "" {
		return fmt.Errorf("output format is required")
	}
	if opts.Bitrate < 0 {
		return fmt.Errorf("bitrate cannot be negative")
	}
	return nil
}

// Encode starts an encoder process. Write Width*Height*4 bytes per frame to
// Stdin, close it to finalize, and read the container from Stdout.
func (e *Executor) Encode(ctx context.Context, opts EncodeOptions) (*Pipe, error) {
	args, err := EncodeArgs(opts)
	if err != nil {
		return nil, fmt.Errorf("invalid encode options: %w", err)
	}

	e.logger.Info().
		Str("format", opts.Format).
		Str("video_codec", opts.VideoCodec).
		Str("audio_codec", opts.AudioCodec).
		Bool("audio", opts.AudioInput != "").
		Msg("starting encoder")

	return e.StartPipe(ctx, PipeOptions{Args: args, Stdin: true, Name: "encode"})
}
