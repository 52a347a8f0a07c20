package export

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kikiluvv/retroclip/internal/encoder"
)

// Phase is a state of the export machine.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhasePreparing
	PhaseRecording
	PhaseCancelling
	PhaseFinishing
)

func (p Phase) String() string {
	switch p {
	case PhasePreparing:
		return "preparing"
	case PhaseRecording:
		return "recording"
	case PhaseCancelling:
		return "cancelling"
	case PhaseFinishing:
		return "finishing"
	}
	return "idle"
}

// Progress is reported on every phase change and every recorded frame.
type Progress struct {
	JobID    string
	Phase    Phase
	Fraction float64
	Frames   int
	Message  string
}

// Job is one export pass. It only lives while the machine is out of idle.
type Job struct {
	ID      string
	Width   int
	Height  int
	Started time.Time

	config    encoder.Config
	cancelled atomic.Bool
	progress  atomic.Uint64
	frames    atomic.Int64

	mu     sync.Mutex
	chunks [][]byte
	size   int
}

func newJob(w, h int) *Job {
	return &Job{
		ID:      uuid.NewString(),
		Width:   w,
		Height:  h,
		Started: time.Now(),
	}
}

// Config returns the negotiated encoder configuration.
func (j *Job) Config() encoder.Config {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.config
}

func (j *Job) setConfig(c encoder.Config) {
	j.mu.Lock()
	j.config = c
	j.mu.Unlock()
}

// Cancel requests cancellation. It is observed at the next frame boundary.
func (j *Job) Cancel() {
	j.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (j *Job) Cancelled() bool {
	return j.cancelled.Load()
}

// Progress returns the recording progress in [0,1].
func (j *Job) Progress() float64 {
	return math.Float64frombits(j.progress.Load())
}

func (j *Job) setProgress(f float64) {
	j.progress.Store(math.Float64bits(max(0, min(1, f))))
}

// Frames returns the number of frames submitted to the sink.
func (j *Job) Frames() int {
	return int(j.frames.Load())
}

func (j *Job) append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	j.mu.Lock()
	j.chunks = append(j.chunks, chunk)
	j.size += len(chunk)
	j.mu.Unlock()
}

// Assemble joins the collected chunks in arrival order.
func (j *Job) Assemble() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	blob := make([]byte, 0, j.size)
	for _, c := range j.chunks {
		blob = append(blob, c...)
	}
	return blob
}

// collect drains chunks into the job until the sink closes the channel.
func (j *Job) collect(chunks <-chan []byte) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range chunks {
			j.append(c)
		}
	}()
	return done
}
