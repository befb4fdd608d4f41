package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/escaped-rooms/roomctl/pkg/trigger"
	"github.com/escaped-rooms/roomctl/pkg/vars"
)

// Executor implements one action type. Validate decodes and checks a raw
// action config; Execute performs the side effect. The dispatcher never
// branches on action type tags: adding an action type means registering a
// new executor here.
type Executor interface {
	Type() string
	Validate(cfg json.RawMessage) (any, error)
	Execute(ctx context.Context, cfg any, ec *Context) error
}

// Context carries per-execution state to executors.
type Context struct {
	RoomID  string
	Trigger trigger.Trigger
	Event   vars.ChangeEvent
	Engine  *Engine
}

// ExecutorRegistry maps action type tags to executors.
type ExecutorRegistry struct {
	mu sync.RWMutex
	m  map[string]Executor
}

// NewExecutorRegistry creates an empty executor registry.
func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{m: make(map[string]Executor)}
}

// Register installs an executor under its type tag, replacing any previous one.
func (r *ExecutorRegistry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[e.Type()] = e
}

// Get returns the executor for an action type.
func (r *ExecutorRegistry) Get(actionType string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.m[actionType]
	return e, ok
}

// Types returns the registered action type tags.
func (r *ExecutorRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for t := range r.m {
		out = append(out, t)
	}
	return out
}

// ValidateAction implements trigger.ActionValidator so the trigger registry
// can vet persisted action configs at load time.
func (r *ExecutorRegistry) ValidateAction(actionType string, cfg json.RawMessage) error {
	e, ok := r.Get(actionType)
	if !ok {
		return fmt.Errorf("unknown action type %q", actionType)
	}
	if _, err := e.Validate(cfg); err != nil {
		return err
	}
	return nil
}
