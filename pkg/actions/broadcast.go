package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/escaped-rooms/roomctl/pkg/engine"
	"github.com/escaped-rooms/roomctl/pkg/events"
)

// The broadcast executors (play_sound, show_media, show_message) are
// fire-and-forget: they emit an event for connected display clients and
// succeed whether or not anyone is listening. Media and audio IDs are opaque
// references resolved by the external media registry, not by the engine.

// PlaySound plays an audio cue on the room's displays.
type PlaySound struct{}

// PlaySoundConfig is the play_sound action config.
type PlaySoundConfig struct {
	AudioID string  `json:"audioId"`
	Volume  float64 `json:"volume,omitempty"`
}

func (*PlaySound) Type() string { return "play_sound" }

func (*PlaySound) Validate(cfg json.RawMessage) (any, error) {
	var c PlaySoundConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if c.AudioID == "" {
		return nil, fmt.Errorf("audioId is required")
	}
	if c.Volume == 0 {
		c.Volume = 1
	}
	if c.Volume < 0 || c.Volume > 1 {
		return nil, fmt.Errorf("volume %v out of range [0,1]", c.Volume)
	}
	return c, nil
}

func (*PlaySound) Execute(ctx context.Context, cfg any, ec *engine.Context) error {
	c := cfg.(PlaySoundConfig)
	ec.Engine.Bus().Emit(events.Event{
		Type:   events.EvPlaySound,
		RoomID: ec.RoomID,
		Data:   map[string]any{"audioId": c.AudioID, "volume": c.Volume},
	})
	return nil
}

// ShowMedia shows a timed media overlay on the room's displays.
type ShowMedia struct{}

// ShowMediaConfig is the show_media action config.
type ShowMediaConfig struct {
	MediaID  string  `json:"mediaId"`
	Duration float64 `json:"duration,omitempty"` // seconds; 0 = until dismissed
}

func (*ShowMedia) Type() string { return "show_media" }

func (*ShowMedia) Validate(cfg json.RawMessage) (any, error) {
	var c ShowMediaConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if c.MediaID == "" {
		return nil, fmt.Errorf("mediaId is required")
	}
	if c.Duration < 0 {
		return nil, fmt.Errorf("duration must not be negative")
	}
	return c, nil
}

func (*ShowMedia) Execute(ctx context.Context, cfg any, ec *engine.Context) error {
	c := cfg.(ShowMediaConfig)
	ec.Engine.Bus().Emit(events.Event{
		Type:   events.EvShowMedia,
		RoomID: ec.RoomID,
		Data:   map[string]any{"mediaId": c.MediaID, "duration": c.Duration},
	})
	return nil
}

// ShowMessage shows a timed text message on the room's displays.
type ShowMessage struct{}

// ShowMessageConfig is the show_message action config.
type ShowMessageConfig struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration,omitempty"` // seconds
}

func (*ShowMessage) Type() string { return "show_message" }

func (*ShowMessage) Validate(cfg json.RawMessage) (any, error) {
	var c ShowMessageConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if c.Text == "" {
		return nil, fmt.Errorf("text is required")
	}
	if c.Duration <= 0 {
		c.Duration = 5
	}
	return c, nil
}

func (*ShowMessage) Execute(ctx context.Context, cfg any, ec *engine.Context) error {
	c := cfg.(ShowMessageConfig)
	ec.Engine.Bus().Emit(events.Event{
		Type:   events.EvShowMessage,
		RoomID: ec.RoomID,
		Data:   map[string]any{"text": c.Text, "duration": c.Duration},
	})
	return nil
}
