package history

import (
	"context"
	"log"

	"github.com/escaped-rooms/roomctl/pkg/events"
	"github.com/escaped-rooms/roomctl/pkg/timer"
)

// Recorder subscribes to the event bus and appends activity to the log
// without blocking the dispatcher: events are handed to a buffered channel
// and written by a single background goroutine. When the buffer is full the
// event is dropped rather than stalling a cascade.
type Recorder struct {
	hist   *History
	ch     chan events.Event
	done   chan struct{}
	closed chan struct{}
}

// NewRecorder starts the background writer.
func NewRecorder(hist *History) *Recorder {
	r := &Recorder{
		hist:   hist,
		ch:     make(chan events.Event, 256),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go r.run()
	return r
}

// Receive implements events.Subscriber.
func (r *Recorder) Receive(ev events.Event) {
	if !recordable(ev) {
		return
	}
	select {
	case r.ch <- ev:
	default:
		log.Printf("history: buffer full, dropping %s event for room %s", ev.Type, ev.RoomID)
	}
}

// Closed implements events.Subscriber.
func (r *Recorder) Closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Close stops the writer after draining buffered events.
func (r *Recorder) Close() {
	close(r.done)
	<-r.closed
}

func (r *Recorder) run() {
	defer close(r.closed)
	for {
		select {
		case ev := <-r.ch:
			r.write(ev)
		case <-r.done:
			for {
				select {
				case ev := <-r.ch:
					r.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(ev events.Event) {
	if err := r.hist.Record(context.Background(), ev.RoomID, ev.Type.String(), ev.Data); err != nil {
		log.Printf("history: %v", err)
	}
}

// recordable filters out per-second timer noise; everything else is kept.
func recordable(ev events.Event) bool {
	if ev.Type == events.EvTimer {
		return false
	}
	if ev.Type == events.EvVariableUpdate {
		if name, _ := ev.Data["variableName"].(string); name == timer.VarRemaining {
			return false
		}
	}
	return true
}
