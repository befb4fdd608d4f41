package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/escaped-rooms/roomctl/pkg/engine"
	"github.com/escaped-rooms/roomctl/pkg/timer"
)

// TimerControl adjusts the room's countdown clock. Transitions that do not
// apply to the current timer state (pause while stopped, resume while
// running) are no-ops, not errors.
type TimerControl struct{}

// TimerControlConfig is the timer_control action config.
type TimerControlConfig struct {
	Command timer.Command `json:"command"`
	Seconds int           `json:"seconds,omitempty"`
}

func (*TimerControl) Type() string { return "timer_control" }

func (*TimerControl) Validate(cfg json.RawMessage) (any, error) {
	var c TimerControlConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	switch c.Command {
	case timer.CmdStart, timer.CmdPause, timer.CmdResume, timer.CmdStop:
	case timer.CmdSet, timer.CmdAdd, timer.CmdSubtract:
		if c.Seconds < 0 {
			return nil, fmt.Errorf("seconds must not be negative")
		}
	default:
		return nil, fmt.Errorf("unknown timer command %q", c.Command)
	}
	return c, nil
}

func (*TimerControl) Execute(ctx context.Context, cfg any, ec *engine.Context) error {
	c := cfg.(TimerControlConfig)
	// This runs inside a dispatch pass; the engine routes the resulting
	// clock writes through the cascade path rather than the external one.
	return ec.Engine.TimerControl(c.Command, c.Seconds, ec.Event.Depth)
}
