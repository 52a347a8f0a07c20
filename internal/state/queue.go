package state

import "sync"

// Command mutates the editor from inside the render loop.
type Command func(*Editor)

// Queue carries commands from event handlers to the loop that owns the
// Editor.
type Queue struct {
	ch chan Command

	// mu guards overflow. While overflow holds commands, new ones queue
	// behind it so arrival order survives.
	mu       sync.Mutex
	overflow []Command
}

// NewQueue returns a queue buffering up to size commands.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan Command, size)}
}

// Push enqueues cmd. It reports false when the queue is full and the command
// was dropped.
func (q *Queue) Push(cmd Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.overflow) > 0 {
		return false
	}
	select {
	case q.ch <- cmd:
		return true
	default:
		return false
	}
}

// Deliver enqueues cmd without ever dropping it or blocking. Commands that
// end an interaction, such as releasing a drag, go through here.
func (q *Queue) Deliver(cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.overflow) == 0 {
		select {
		case q.ch <- cmd:
			return
		default:
		}
	}
	q.overflow = append(q.overflow, cmd)
}

// Drain applies every pending command to e in arrival order and returns how
// many ran.
func (q *Queue) Drain(e *Editor) int {
	n := 0
pending:
	for {
		select {
		case cmd := <-q.ch:
			cmd(e)
			n++
		default:
			break pending
		}
	}

	q.mu.Lock()
	late := q.overflow
	q.overflow = nil
	q.mu.Unlock()
	for _, cmd := range late {
		cmd(e)
		n++
	}
	return n
}
