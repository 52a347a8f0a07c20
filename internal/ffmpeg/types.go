package ffmpeg

import "time"

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath     string
	Duration     time.Duration
	Width        int
	Height       int
	FPS          float64
	Bitrate      int64
	VideoCodec   string
	FormatName   string
	HasAudio     bool
	AudioCodec   string
	AudioBitrate int64
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	// OutTime is the position written so far.
	OutTime time.Duration
	Speed   string
	Done    bool
}

// Fraction reports OutTime as a share of total, clamped to [0,1].
func (p *Progress) Fraction(total time.Duration) float64 {
	if p.Done {
		return 1
	}
	if total <= 0 {
		return 0
	}
	return min(1, max(0, float64(p.OutTime)/float64(total)))
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler func(*Progress)
	LogHandler      func(line string)
}

// ProgressFunc is a callback for progress updates during ffmpeg operations.
type ProgressFunc func(*Progress)

// Codec names used by the encoder candidates and the transcode step.
const (
	CodecH264 = "libx264"
	CodecVP9  = "libvpx-vp9"
	CodecVP8  = "libvpx"
	CodecAAC  = "aac"
	CodecOpus = "libopus"
)
