package engine

import (
	"fmt"
	"log"
)

// DiagKind classifies engine diagnostics.
type DiagKind string

const (
	// DiagValidation: a value did not fit a variable's declared type.
	DiagValidation DiagKind = "validation_error"
	// DiagConfiguration: a malformed trigger or action definition.
	DiagConfiguration DiagKind = "configuration_error"
	// DiagExecution: an action's side effect failed after retries.
	DiagExecution DiagKind = "execution_error"
	// DiagCascadeLimit: the cascade depth guard tripped and dropped an event.
	DiagCascadeLimit DiagKind = "cascade_limit_exceeded"
)

// Diagnostic is one engine observability event. It signals an authoring or
// integration problem, never a fatal engine condition.
type Diagnostic struct {
	Kind       DiagKind `json:"kind"`
	RoomID     string   `json:"roomId"`
	TriggerID  string   `json:"triggerId,omitempty"`
	ActionType string   `json:"actionType,omitempty"`
	Variable   string   `json:"variableName,omitempty"`
	Message    string   `json:"message"`
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s room=%s", d.Kind, d.RoomID)
	if d.TriggerID != "" {
		s += " trigger=" + d.TriggerID
	}
	if d.ActionType != "" {
		s += " action=" + d.ActionType
	}
	return s + ": " + d.Message
}

// Sink receives diagnostics from the engine.
type Sink interface {
	Diagnose(d Diagnostic)
}

// LogSink writes diagnostics to the standard logger. Cascade limit hits are
// logged at warning severity: they signal a self-reinforcing trigger loop.
type LogSink struct{}

func (LogSink) Diagnose(d Diagnostic) {
	if d.Kind == DiagCascadeLimit {
		log.Printf("engine: WARNING: %s", d)
		return
	}
	log.Printf("engine: %s", d)
}

// MultiSink fans a diagnostic out to several sinks.
type MultiSink []Sink

func (m MultiSink) Diagnose(d Diagnostic) {
	for _, s := range m {
		if s != nil {
			s.Diagnose(d)
		}
	}
}
