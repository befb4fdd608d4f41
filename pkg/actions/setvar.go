package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/escaped-rooms/roomctl/pkg/engine"
)

// SetVariable writes another variable through the store, re-entering the
// dispatcher synchronously with depth+1. The write goes through full store
// validation: a value that does not fit the target's type fails this action
// only, exactly as if no write had occurred, and system variables are never
// writable from here.
type SetVariable struct{}

// SetVariableConfig is the set_variable action config.
type SetVariableConfig struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

func (*SetVariable) Type() string { return "set_variable" }

func (*SetVariable) Validate(cfg json.RawMessage) (any, error) {
	var c SetVariableConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if c.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	return c, nil
}

func (*SetVariable) Execute(ctx context.Context, cfg any, ec *engine.Context) error {
	c := cfg.(SetVariableConfig)
	return ec.Engine.CascadeSet(c.Name, c.Value, ec.Event.Depth+1)
}
