package timer

import (
	"sync"
	"testing"
	"time"
)

type writeRecorder struct {
	mu     sync.Mutex
	writes []struct {
		name  string
		value any
	}
}

func (w *writeRecorder) write(name string, value any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, struct {
		name  string
		value any
	}{name, value})
}

func (w *writeRecorder) last() (string, any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.writes) == 0 {
		return "", nil
	}
	last := w.writes[len(w.writes)-1]
	return last.name, last.value
}

func TestTickCountsDown(t *testing.T) {
	rec := &writeRecorder{}
	tm := New("room-1", 60, rec.write)

	if err := tm.Control(CmdStart, 0); err != nil {
		t.Fatal(err)
	}
	tm.Tick()
	tm.Tick()

	if got := tm.Remaining(); got != 58*time.Second {
		t.Errorf("remaining = %v, want 58s", got)
	}
	name, value := rec.last()
	if name != VarRemaining || value != 58.0 {
		t.Errorf("last write = %s %v, want %s 58", name, value, VarRemaining)
	}
}

func TestTickIgnoredWhenNotRunning(t *testing.T) {
	tm := New("room-1", 60, nil)

	tm.Tick() // stopped
	if tm.Remaining() != 60*time.Second {
		t.Error("stopped timer must not count down")
	}

	tm.Control(CmdStart, 0)
	tm.Control(CmdPause, 0)
	tm.Tick() // paused
	if tm.Remaining() != 60*time.Second {
		t.Error("paused timer must not count down")
	}
}

func TestInvalidTransitionsAreNoOps(t *testing.T) {
	tm := New("room-1", 60, nil)

	// Pause while stopped: no-op, no error.
	if err := tm.Control(CmdPause, 0); err != nil {
		t.Errorf("pause while stopped: %v", err)
	}
	if tm.State() != StateStopped {
		t.Errorf("state = %s, want stopped", tm.State())
	}

	// Resume while stopped: no-op.
	if err := tm.Control(CmdResume, 0); err != nil {
		t.Errorf("resume while stopped: %v", err)
	}
	if tm.State() != StateStopped {
		t.Errorf("state = %s, want stopped", tm.State())
	}

	// Stop while stopped: no-op.
	if err := tm.Control(CmdStop, 0); err != nil {
		t.Errorf("stop while stopped: %v", err)
	}

	// Unknown commands are errors, not no-ops.
	if err := tm.Control("explode", 0); err == nil {
		t.Error("unknown command should error")
	}
}

func TestPauseResume(t *testing.T) {
	tm := New("room-1", 10, nil)
	tm.Control(CmdStart, 0)
	tm.Tick()
	tm.Control(CmdPause, 0)
	if tm.State() != StatePaused {
		t.Fatalf("state = %s, want paused", tm.State())
	}
	tm.Control(CmdResume, 0)
	tm.Tick()
	if tm.Remaining() != 8*time.Second {
		t.Errorf("remaining = %v, want 8s", tm.Remaining())
	}
}

func TestStopResets(t *testing.T) {
	tm := New("room-1", 30, nil)
	tm.Control(CmdStart, 0)
	tm.Tick()
	tm.Control(CmdStop, 0)
	if tm.State() != StateStopped || tm.Remaining() != 30*time.Second {
		t.Errorf("stop should reset: state=%s remaining=%v", tm.State(), tm.Remaining())
	}
}

func TestSetAddSubtract(t *testing.T) {
	rec := &writeRecorder{}
	tm := New("room-1", 30, rec.write)

	tm.Control(CmdSet, 120)
	if tm.Duration() != 2*time.Minute || tm.Remaining() != 2*time.Minute {
		t.Errorf("set: duration=%v remaining=%v", tm.Duration(), tm.Remaining())
	}

	tm.Control(CmdAdd, 30)
	if tm.Remaining() != 150*time.Second {
		t.Errorf("add: remaining=%v, want 150s", tm.Remaining())
	}

	tm.Control(CmdSubtract, 1000)
	if tm.Remaining() != 0 {
		t.Errorf("subtract clamps at zero, got %v", tm.Remaining())
	}

	if err := tm.Control(CmdSet, -5); err == nil {
		t.Error("negative set should error")
	}
}

func TestControlWithRoutesWrites(t *testing.T) {
	def := &writeRecorder{}
	alt := &writeRecorder{}
	tm := New("room-1", 60, def.write)

	if err := tm.ControlWith(CmdSet, 90, alt.write); err != nil {
		t.Fatal(err)
	}
	if tm.Remaining() != 90*time.Second {
		t.Errorf("remaining = %v, want 90s", tm.Remaining())
	}
	if name, _ := def.last(); name != "" {
		t.Errorf("default write path used: %s", name)
	}
	if name, value := alt.last(); name != VarRemaining || value != 90.0 {
		t.Errorf("last write = %s %v, want %s 90", name, value, VarRemaining)
	}
}

func TestExpiryStops(t *testing.T) {
	tm := New("room-1", 1, nil)
	tm.Control(CmdStart, 0)
	tm.Tick()
	if tm.State() != StateStopped || tm.Remaining() != 0 {
		t.Errorf("expired timer: state=%s remaining=%v", tm.State(), tm.Remaining())
	}
	tm.Tick() // further ticks are harmless
	if tm.Remaining() != 0 {
		t.Error("remaining went negative")
	}
}
