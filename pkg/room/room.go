// Package room defines the static configuration of an escape room: its
// identity, countdown length, variable declarations, and trigger rules.
// A Config is what operators author (as JSON seed files or over the API);
// the runtime state lives in the engine once a room is activated.
package room

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/escaped-rooms/roomctl/pkg/timer"
	"github.com/escaped-rooms/roomctl/pkg/trigger"
	"github.com/escaped-rooms/roomctl/pkg/vars"
)

// VariableDef declares one custom variable and its initial value.
type VariableDef struct {
	Name  string    `json:"name"`
	Type  vars.Type `json:"type"`
	Value any       `json:"value,omitempty"`
}

// Config is the authored definition of a room.
type Config struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	TimerSeconds int               `json:"timerSeconds"`
	Variables    []VariableDef     `json:"variables"`
	Triggers     []trigger.Trigger `json:"triggers"`
}

// Validate checks the parts of a Config that must hold before a room can be
// stored or activated. Trigger-level problems are not checked here; those are
// quarantined individually at activation so one bad rule never blocks a room.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("room id must not be empty")
	}
	if strings.ContainsAny(c.ID, " /\\") {
		return fmt.Errorf("room id %q must not contain spaces or slashes", c.ID)
	}
	if c.TimerSeconds < 0 {
		return fmt.Errorf("room %s: timerSeconds must not be negative", c.ID)
	}
	seen := make(map[string]bool, len(c.Variables))
	for _, v := range c.Variables {
		if v.Name == "" {
			return fmt.Errorf("room %s: variable with empty name", c.ID)
		}
		if v.Name == timer.VarMain || v.Name == timer.VarRemaining {
			return fmt.Errorf("room %s: variable name %q is reserved", c.ID, v.Name)
		}
		if seen[v.Name] {
			return fmt.Errorf("room %s: duplicate variable %q", c.ID, v.Name)
		}
		seen[v.Name] = true
		if _, err := vars.ParseType(string(v.Type)); err != nil {
			return fmt.Errorf("room %s: variable %q: %w", c.ID, v.Name, err)
		}
	}
	return nil
}

// LoadFile reads and validates a room definition from a JSON file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading room file: %w", err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}
