package server

import (
	"context"
	"sync"
	"time"

	"github.com/kikiluvv/retroclip/internal/export"
)

type jobStatus string

const (
	statusRunning   jobStatus = "running"
	statusCompleted jobStatus = "completed"
	statusCancelled jobStatus = "cancelled"
	statusFailed    jobStatus = "failed"
)

// job tracks one server-side export.
type job struct {
	id      string
	created time.Time
	cancel  context.CancelFunc

	mu       sync.Mutex
	machine  *export.Machine
	status   jobStatus
	phase    export.Phase
	fraction float64
	frames   int
	message  string
	err      string
	result   *export.Result
	download *export.MemoryDownloader
	done     chan struct{}
}

// JobView is the JSON form of a job.
type JobView struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Phase      string  `json:"phase"`
	Progress   float64 `json:"progress"`
	Frames     int     `json:"frames"`
	Message    string  `json:"message,omitempty"`
	Error      string  `json:"error,omitempty"`
	Name       string  `json:"name,omitempty"`
	Size       int     `json:"size,omitempty"`
	Encoder    string  `json:"encoder,omitempty"`
	Transcoded bool    `json:"transcoded"`
}

func (j *job) update(p export.Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.phase = p.Phase
	j.fraction = p.Fraction
	j.frames = max(j.frames, p.Frames)
	if p.Message != "" {
		j.message = p.Message
	}
}

func (j *job) view() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	v := JobView{
		ID:       j.id,
		Status:   string(j.status),
		Phase:    j.phase.String(),
		Progress: j.fraction,
		Frames:   j.frames,
		Message:  j.message,
		Error:    j.err,
	}
	if r := j.result; r != nil {
		v.Name = r.Name
		v.Size = r.Size
		v.Encoder = r.Encoder
		v.Transcoded = r.Transcoded
	}
	return v
}

// requestCancel flags the running machine, or cancels the job context when
// the machine has not picked the job up yet.
func (j *job) requestCancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != statusRunning {
		return false
	}
	if j.machine == nil || !j.machine.Cancel() {
		j.cancel()
	}
	return true
}

type jobStore struct {
	mu   sync.RWMutex
	jobs map[string]*job
}

func newJobStore() *jobStore {
	return &jobStore{jobs: make(map[string]*job)}
}

func (s *jobStore) put(j *job) {
	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()
}

func (s *jobStore) get(id string) (*job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *jobStore) all() []*job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}
