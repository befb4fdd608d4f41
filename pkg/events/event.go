package events

// EventType classifies outbound events for transport-specific encoding.
type EventType int

const (
	EvVariableUpdate EventType = iota // A variable changed value
	EvPlaySound                       // Audio cue for display clients
	EvShowMedia                       // Timed media overlay
	EvShowMessage                     // Timed text message
	EvTimer                           // Timer state/tick update
	EvDiagnostic                      // Engine diagnostic (config/exec/cascade)
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvVariableUpdate:
		return "variable_update"
	case EvPlaySound:
		return "play_sound"
	case EvShowMedia:
		return "show_media"
	case EvShowMessage:
		return "show_message"
	case EvTimer:
		return "timer"
	case EvDiagnostic:
		return "diagnostic"
	default:
		return "unknown"
	}
}

// Event is a structured room event that flows through the bus to connected
// display clients and observability sinks. Transports decide how to encode
// it; the WebSocket layer sends the structured data as JSON.
type Event struct {
	Type   EventType
	RoomID string
	Data   map[string]any
}
