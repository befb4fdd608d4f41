// Package timer implements the per-room countdown clock. The timer is the
// only writer of the timer_main / timer_main_remaining system variables;
// every tick goes through the engine's system write path so triggers can
// watch the clock like any other variable.
package timer

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// System variable names owned by the timer subsystem.
const (
	VarMain      = "timer_main"           // configured duration, seconds
	VarRemaining = "timer_main_remaining" // remaining time, seconds
)

// State is the timer's lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// Command is a timer_control operation.
type Command string

const (
	CmdStart    Command = "start"
	CmdPause    Command = "pause"
	CmdResume   Command = "resume"
	CmdStop     Command = "stop"
	CmdSet      Command = "set"
	CmdAdd      Command = "add"
	CmdSubtract Command = "subtract"
)

// WriteFunc receives timer-derived system variable writes.
type WriteFunc func(name string, value any)

// Timer is a room's countdown clock. Invalid transitions (pause while
// stopped, resume while running) are deliberate no-ops, never errors.
type Timer struct {
	mu        sync.Mutex
	roomID    string
	duration  time.Duration
	remaining time.Duration
	state     State
	write     WriteFunc
	stop      chan struct{}
	stopOnce  sync.Once
}

// New creates a timer for a room. write may be nil for a detached timer.
func New(roomID string, seconds int, write WriteFunc) *Timer {
	d := time.Duration(seconds) * time.Second
	t := &Timer{
		roomID:    roomID,
		duration:  d,
		remaining: d,
		state:     StateStopped,
		write:     write,
		stop:      make(chan struct{}),
	}
	return t
}

// Run drives the timer with a 1-second wall-clock ticker until Close.
// Tests call Tick directly instead.
func (t *Timer) Run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

// Close stops the ticker goroutine.
func (t *Timer) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Tick advances a running timer by one second and publishes the remaining
// time. Reaching zero stops the timer.
func (t *Timer) Tick() {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return
	}
	t.remaining -= time.Second
	if t.remaining <= 0 {
		t.remaining = 0
		t.state = StateStopped
		log.Printf("timer: room %s expired", t.roomID)
	}
	remaining := t.remaining
	write := t.write
	t.mu.Unlock()

	if write != nil {
		write(VarRemaining, remaining.Seconds())
	}
}

// Control applies a timer_control command through the timer's default write
// path. Unknown commands are an error; commands that do not apply to the
// current state are silent no-ops.
func (t *Timer) Control(cmd Command, seconds int) error {
	return t.ControlWith(cmd, seconds, t.write)
}

// ControlWith applies a command and publishes the resulting system-variable
// writes through write instead of the timer's default path. Callers already
// inside a dispatch pass (a trigger-fired timer_control) must supply a write
// that does not take the engine's external write lock again; the default path
// does, and re-locking it on the same goroutine deadlocks the room.
func (t *Timer) ControlWith(cmd Command, seconds int, write WriteFunc) error {
	switch cmd {
	case CmdStart:
		t.transition(StateStopped, StateRunning, write)
	case CmdPause:
		t.transition(StateRunning, StatePaused, write)
	case CmdResume:
		t.transition(StatePaused, StateRunning, write)
	case CmdStop:
		t.stopAndReset(write)
	case CmdSet:
		if seconds < 0 {
			return fmt.Errorf("timer: set requires a non-negative duration")
		}
		t.set(time.Duration(seconds)*time.Second, write)
	case CmdAdd:
		t.adjust(time.Duration(seconds)*time.Second, write)
	case CmdSubtract:
		t.adjust(-time.Duration(seconds)*time.Second, write)
	default:
		return fmt.Errorf("timer: unknown command %q", cmd)
	}
	return nil
}

func (t *Timer) transition(from, to State, write WriteFunc) {
	t.mu.Lock()
	if t.state != from {
		t.mu.Unlock()
		return
	}
	t.state = to
	remaining := t.remaining
	t.mu.Unlock()

	if write != nil {
		write(VarRemaining, remaining.Seconds())
	}
}

func (t *Timer) stopAndReset(write WriteFunc) {
	t.mu.Lock()
	if t.state == StateStopped {
		t.mu.Unlock()
		return
	}
	t.state = StateStopped
	t.remaining = t.duration
	remaining := t.remaining
	t.mu.Unlock()

	if write != nil {
		write(VarRemaining, remaining.Seconds())
	}
}

func (t *Timer) set(d time.Duration, write WriteFunc) {
	t.mu.Lock()
	t.duration = d
	t.remaining = d
	t.mu.Unlock()

	if write != nil {
		write(VarMain, d.Seconds())
		write(VarRemaining, d.Seconds())
	}
}

func (t *Timer) adjust(delta time.Duration, write WriteFunc) {
	t.mu.Lock()
	t.remaining += delta
	if t.remaining < 0 {
		t.remaining = 0
	}
	remaining := t.remaining
	t.mu.Unlock()

	if write != nil {
		write(VarRemaining, remaining.Seconds())
	}
}

// State returns the current lifecycle state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Remaining returns the remaining time.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Duration returns the configured total duration.
func (t *Timer) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}
