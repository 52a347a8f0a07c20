package media

import (
	"fmt"
	"strings"
	"time"
)

// Clock selects how playback time advances.
type Clock int

const (
	// ClockRealtime follows the wall clock while playing.
	ClockRealtime Clock = iota
	// ClockStepped advances exactly one frame interval per delivered frame,
	// so a pass runs as fast as frames can be rendered.
	ClockStepped
)

func (c Clock) String() string {
	if c == ClockStepped {
		return "stepped"
	}
	return "realtime"
}

// ParseClock parses "realtime" or "stepped".
func ParseClock(s string) (Clock, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "realtime":
		return ClockRealtime, nil
	case "stepped":
		return ClockStepped, nil
	}
	return 0, fmt.Errorf("unknown clock %q", s)
}

// playClock tracks the playback position. It never runs past limit.
type playClock struct {
	mode  Clock
	now   func() time.Time
	step  time.Duration
	limit time.Duration

	base    time.Duration
	started time.Time
	playing bool
}

func newPlayClock(mode Clock, fps float64, limit time.Duration) *playClock {
	return &playClock{
		mode:  mode,
		now:   time.Now,
		step:  time.Duration(float64(time.Second) / fps),
		limit: limit,
	}
}

func (c *playClock) position() time.Duration {
	p := c.base
	if c.playing && c.mode == ClockRealtime {
		p += c.now().Sub(c.started)
	}
	if c.limit > 0 && p > c.limit {
		p = c.limit
	}
	return p
}

func (c *playClock) play() {
	if c.playing {
		return
	}
	c.playing = true
	c.started = c.now()
}

func (c *playClock) pause() {
	if !c.playing {
		return
	}
	c.base = c.position()
	c.playing = false
}

func (c *playClock) set(t time.Duration) {
	c.base = t
	c.started = c.now()
}

// advance moves a stepped clock forward by one frame while playing.
func (c *playClock) advance() {
	if c.playing && c.mode == ClockStepped {
		c.base += c.step
		if c.limit > 0 && c.base > c.limit {
			c.base = c.limit
		}
	}
}

func (c *playClock) atEnd() bool {
	return c.limit > 0 && c.position() >= c.limit
}
