// Package actions provides the built-in action executors: the side effects a
// firing trigger can produce. Each action type is an independently registered
// executor; the dispatcher never branches on type tags.
package actions

import (
	"github.com/escaped-rooms/roomctl/pkg/engine"
)

// RegisterAll installs every built-in action executor into a registry.
func RegisterAll(reg *engine.ExecutorRegistry) {
	reg.Register(&PlaySound{})
	reg.Register(&ShowMedia{})
	reg.Register(&ShowMessage{})
	reg.Register(&SetVariable{})
	reg.Register(&TimerControl{})
	reg.Register(NewWebhook(nil))
}
