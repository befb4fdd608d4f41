// Package engine wires a room's variable store, trigger registry and action
// executors into the dispatcher that reacts to variable changes. One Engine
// exists per active room; rooms share nothing and run independently.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/escaped-rooms/roomctl/pkg/events"
	"github.com/escaped-rooms/roomctl/pkg/timer"
	"github.com/escaped-rooms/roomctl/pkg/trigger"
	"github.com/escaped-rooms/roomctl/pkg/vars"
)

// MaxDepth bounds cascade recursion. An event whose depth exceeds MaxDepth
// is dropped with a CascadeLimitExceeded diagnostic. This is the sole loop
// prevention mechanism: two triggers that mutate each other's watched
// variables would otherwise recurse forever.
const MaxDepth = 8

// Config assembles an Engine.
type Config struct {
	RoomID    string
	Store     *vars.Store
	Registry  *trigger.Registry
	Executors *ExecutorRegistry
	Bus       *events.Bus
	Sink      Sink
}

// Engine is the per-room trigger dispatcher. All external writes enter
// through SetVariable or WriteSystem and are serialized, so a full dispatch
// pass (including its cascades) completes before the next write begins.
type Engine struct {
	roomID string
	store  *vars.Store
	reg    *trigger.Registry
	execs  *ExecutorRegistry
	bus    *events.Bus
	sink   Sink
	clock  *timer.Timer

	// writeMu serializes external dispatch passes. Cascaded writes happen
	// while it is held; they never re-acquire it.
	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an engine for a room. The context returned by Context is
// cancelled on Close, which aborts in-flight webhook calls.
func New(cfg Config) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	sink := cfg.Sink
	if sink == nil {
		sink = LogSink{}
	}
	return &Engine{
		roomID: cfg.RoomID,
		store:  cfg.Store,
		reg:    cfg.Registry,
		execs:  cfg.Executors,
		bus:    cfg.Bus,
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
	}
}

// RoomID returns the room this engine serves.
func (e *Engine) RoomID() string { return e.roomID }

// Store returns the room's variable store.
func (e *Engine) Store() *vars.Store { return e.store }

// Registry returns the room's trigger registry.
func (e *Engine) Registry() *trigger.Registry { return e.reg }

// Bus returns the event bus the engine emits on.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Context returns the engine's lifetime context.
func (e *Engine) Context() context.Context { return e.ctx }

// AttachTimer binds the room's countdown timer so timer_control actions and
// the REST timer endpoint can reach it.
func (e *Engine) AttachTimer(t *timer.Timer) { e.clock = t }

// Timer returns the attached countdown timer, or nil.
func (e *Engine) Timer() *timer.Timer { return e.clock }

// Close tears the engine down: in-flight webhook calls are cancelled and any
// pending cascade evaluation is discarded with the room.
func (e *Engine) Close() {
	e.cancel()
	if e.clock != nil {
		e.clock.Close()
	}
}

// SetVariable is the external write path for operator and API writes.
// A ValidationError is returned synchronously and the write is rejected
// outright. An accepted, value-changing write runs a full dispatch pass
// before returning.
func (e *Engine) SetVariable(name string, value any, origin vars.Origin) (*vars.ChangeEvent, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	ev, err := e.store.Set(name, value, origin, 0)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, nil
	}
	e.announce(*ev)
	e.dispatch(*ev)
	return ev, nil
}

// WriteSystem is the timer subsystem's external write path for system
// variables (ticks, REST timer commands). Failures are diagnosed rather than
// returned: the clock must keep ticking.
func (e *Engine) WriteSystem(name string, value any) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.systemSet(name, value, 0)
}

// TimerControl applies a timer command from inside a dispatch pass. The
// command's system-variable writes take the cascade path at the event's
// depth+1: the external write lock is already held by this goroutine and
// must not be taken again, later triggers in the pass see the clock change,
// and a trigger loop through the clock hits the depth guard like any other.
func (e *Engine) TimerControl(cmd timer.Command, seconds, depth int) error {
	if e.clock == nil {
		return fmt.Errorf("room has no timer attached")
	}
	return e.clock.ControlWith(cmd, seconds, func(name string, value any) {
		e.systemSet(name, value, depth+1)
	})
}

// systemSet writes a timer-owned variable and dispatches the change. Caller
// holds writeMu, or is already inside a dispatch pass that does.
func (e *Engine) systemSet(name string, value any, depth int) {
	ev, err := e.store.Set(name, value, vars.OriginTimer, depth)
	if err != nil {
		e.diagnose(Diagnostic{
			Kind:     DiagValidation,
			RoomID:   e.roomID,
			Variable: name,
			Message:  fmt.Sprintf("timer write: %v", err),
		})
		return
	}
	if ev == nil {
		return
	}
	e.announce(*ev)
	if e.bus != nil {
		e.bus.Emit(events.Event{
			Type:   events.EvTimer,
			RoomID: e.roomID,
			Data:   map[string]any{"variableName": name, "value": ev.NewValue},
		})
	}
	e.dispatch(*ev)
}

// CascadeSet re-enters the variable store from a set_variable action. The
// resulting event carries depth+1 and is dispatched synchronously,
// depth-first, before the caller's next action runs.
func (e *Engine) CascadeSet(name string, value any, depth int) error {
	ev, err := e.store.Set(name, value, vars.OriginTrigger, depth)
	if err != nil {
		return err
	}
	if ev == nil {
		return nil
	}
	e.announce(*ev)
	e.dispatch(*ev)
	return nil
}

// dispatch runs one dispatch pass: depth guard, trigger matching in
// definition order, sequential action execution per trigger.
func (e *Engine) dispatch(ev vars.ChangeEvent) {
	if ev.Depth > MaxDepth {
		e.diagnose(Diagnostic{
			Kind:     DiagCascadeLimit,
			RoomID:   e.roomID,
			Variable: ev.Name,
			Message:  fmt.Sprintf("cascade depth %d exceeds limit %d; event dropped", ev.Depth, MaxDepth),
		})
		return
	}

	v, err := e.store.Get(ev.Name)
	if err != nil {
		// Deleted mid-cascade; nothing left to match against.
		return
	}

	for _, trg := range e.reg.Matching(ev.Name) {
		ok, err := trigger.Evaluate(ev.NewValue, trg.Condition.Operator, trg.Condition.Comparand, v.Type)
		if err != nil {
			e.diagnose(Diagnostic{
				Kind:      DiagConfiguration,
				RoomID:    e.roomID,
				TriggerID: trg.ID,
				Variable:  ev.Name,
				Message:   err.Error(),
			})
		}
		if !ok {
			continue
		}
		e.runActions(trg, ev)
	}
}

// runActions executes a trigger's action list sequentially and to completion.
// A failing action is diagnosed and skipped; its siblings still run. There is
// no rollback: effects already produced stay produced.
func (e *Engine) runActions(trg trigger.Trigger, ev vars.ChangeEvent) {
	for i, act := range trg.Actions {
		exec, ok := e.execs.Get(act.Type)
		if !ok {
			e.diagnose(Diagnostic{
				Kind:       DiagConfiguration,
				RoomID:     e.roomID,
				TriggerID:  trg.ID,
				ActionType: act.Type,
				Message:    fmt.Sprintf("action %d: no executor registered", i),
			})
			continue
		}
		cfg, err := exec.Validate(act.Config)
		if err != nil {
			e.diagnose(Diagnostic{
				Kind:       DiagConfiguration,
				RoomID:     e.roomID,
				TriggerID:  trg.ID,
				ActionType: act.Type,
				Message:    fmt.Sprintf("action %d: %v", i, err),
			})
			continue
		}
		ec := &Context{RoomID: e.roomID, Trigger: trg, Event: ev, Engine: e}
		if err := exec.Execute(e.ctx, cfg, ec); err != nil {
			kind := DiagExecution
			var verr *vars.ValidationError
			if errors.As(err, &verr) {
				kind = DiagValidation
			}
			e.diagnose(Diagnostic{
				Kind:       kind,
				RoomID:     e.roomID,
				TriggerID:  trg.ID,
				ActionType: act.Type,
				Message:    fmt.Sprintf("action %d: %v", i, err),
			})
		}
	}
}

// announce publishes an accepted write to the event stream.
func (e *Engine) announce(ev vars.ChangeEvent) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(events.Event{
		Type:   events.EvVariableUpdate,
		RoomID: e.roomID,
		Data: map[string]any{
			"variableName": ev.Name,
			"oldValue":     ev.OldValue,
			"newValue":     ev.NewValue,
			"causedBy":     string(ev.CausedBy),
			"depth":        ev.Depth,
		},
	})
}

// diagnose forwards to the sink and mirrors the diagnostic onto the bus for
// connected observability consumers.
func (e *Engine) diagnose(d Diagnostic) {
	e.sink.Diagnose(d)
	if e.bus != nil {
		e.bus.Emit(events.Event{
			Type:   events.EvDiagnostic,
			RoomID: e.roomID,
			Data: map[string]any{
				"kind":         string(d.Kind),
				"triggerId":    d.TriggerID,
				"actionType":   d.ActionType,
				"variableName": d.Variable,
				"message":      d.Message,
			},
		})
	}
}
