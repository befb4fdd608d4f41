package server

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/escaped-rooms/roomctl/pkg/boltstore"
	"github.com/escaped-rooms/roomctl/pkg/engine"
	"github.com/escaped-rooms/roomctl/pkg/events"
	"github.com/escaped-rooms/roomctl/pkg/room"
	"github.com/escaped-rooms/roomctl/pkg/timer"
	"github.com/escaped-rooms/roomctl/pkg/trigger"
	"github.com/escaped-rooms/roomctl/pkg/vars"
)

// ActiveRoom bundles the live runtime of one activated room.
type ActiveRoom struct {
	Config *room.Config
	Engine *engine.Engine
	Timer  *timer.Timer
}

// Manager owns room lifecycles: it loads definitions from the bolt store,
// builds the runtime (variable store, trigger registry, timer, engine) on
// activation, and tears it down on deactivation. All rooms share one event
// bus and one executor registry.
type Manager struct {
	mu        sync.Mutex
	store     *boltstore.Store
	bus       *events.Bus
	executors *engine.ExecutorRegistry
	sink      engine.Sink
	active    map[string]*ActiveRoom
}

// NewManager creates a manager. sink may be nil for log-only diagnostics.
func NewManager(store *boltstore.Store, bus *events.Bus, executors *engine.ExecutorRegistry, sink engine.Sink) *Manager {
	if sink == nil {
		sink = engine.LogSink{}
	}
	return &Manager{
		store:     store,
		bus:       bus,
		executors: executors,
		sink:      sink,
		active:    make(map[string]*ActiveRoom),
	}
}

// Bus returns the shared event bus.
func (m *Manager) Bus() *events.Bus { return m.bus }

// Store returns the underlying definition store.
func (m *Manager) Store() *boltstore.Store { return m.store }

// Activate builds and starts the runtime for a stored room. Activating an
// already-active room is an error; use Reload to pick up definition changes.
func (m *Manager) Activate(id string) (*ActiveRoom, error) {
	cfg, err := m.store.GetRoom(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[id]; ok {
		return nil, fmt.Errorf("room %s is already active", id)
	}

	ar, err := m.build(cfg)
	if err != nil {
		return nil, err
	}
	m.active[id] = ar
	log.Printf("room %s: activated (%d variables, %d triggers, timer %ds)",
		id, len(cfg.Variables), ar.Engine.Registry().Len(), cfg.TimerSeconds)
	return ar, nil
}

// build assembles the runtime for a validated config. Caller holds m.mu.
func (m *Manager) build(cfg *room.Config) (*ActiveRoom, error) {
	store := vars.NewStore(cfg.ID)

	// System variables first; the timer subsystem is their only writer.
	secs := float64(cfg.TimerSeconds)
	if err := store.Define(timer.VarMain, vars.TypeNumber, secs, true); err != nil {
		return nil, err
	}
	if err := store.Define(timer.VarRemaining, vars.TypeNumber, secs, true); err != nil {
		return nil, err
	}
	for _, v := range cfg.Variables {
		if err := store.Define(v.Name, v.Type, v.Value, false); err != nil {
			return nil, fmt.Errorf("room %s: %w", cfg.ID, err)
		}
	}

	reg := trigger.NewRegistry(cfg.ID)
	lookup := func(name string) (string, bool) {
		t, err := store.Type(name)
		if err != nil {
			return "", false
		}
		return string(t), true
	}
	for _, qerr := range reg.Load(cfg.Triggers, lookup, m.executors) {
		log.Printf("room %s: trigger quarantined: %v", cfg.ID, qerr)
	}

	e := engine.New(engine.Config{
		RoomID:    cfg.ID,
		Store:     store,
		Registry:  reg,
		Executors: m.executors,
		Bus:       m.bus,
		Sink:      m.sink,
	})

	tm := timer.New(cfg.ID, cfg.TimerSeconds, e.WriteSystem)
	e.AttachTimer(tm)
	go tm.Run()

	return &ActiveRoom{Config: cfg, Engine: e, Timer: tm}, nil
}

// Deactivate tears down an active room. The definition stays in the store.
func (m *Manager) Deactivate(id string) error {
	m.mu.Lock()
	ar, ok := m.active[id]
	delete(m.active, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("room %s is not active", id)
	}
	ar.Engine.Close()
	m.bus.Cleanup()
	log.Printf("room %s: deactivated", id)
	return nil
}

// Reload replaces a room's runtime with one built from the current stored
// definition. All runtime variable values reset to their initial values.
func (m *Manager) Reload(id string) (*ActiveRoom, error) {
	cfg, err := m.store.GetRoom(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.active[id]
	if !ok {
		return nil, fmt.Errorf("room %s is not active", id)
	}

	ar, err := m.build(cfg)
	if err != nil {
		return nil, err
	}
	old.Engine.Close()
	m.active[id] = ar
	log.Printf("room %s: reloaded", id)
	return ar, nil
}

// ReplaceTriggers persists a new trigger list for a room and, when the room
// is active, loads it into the live registry without resetting variable
// values. Returns the per-trigger quarantine errors from the live load.
func (m *Manager) ReplaceTriggers(id string, triggers []trigger.Trigger) ([]error, error) {
	cfg, err := m.store.GetRoom(id)
	if err != nil {
		return nil, err
	}
	cfg.Triggers = triggers
	if err := m.store.PutRoom(cfg); err != nil {
		return nil, err
	}

	m.mu.Lock()
	ar, active := m.active[id]
	if active {
		ar.Config.Triggers = triggers
	}
	m.mu.Unlock()
	if !active {
		return nil, nil
	}

	store := ar.Engine.Store()
	lookup := func(name string) (string, bool) {
		t, err := store.Type(name)
		if err != nil {
			return "", false
		}
		return string(t), true
	}
	qerrs := ar.Engine.Registry().Load(triggers, lookup, m.executors)
	for _, qerr := range qerrs {
		log.Printf("room %s: trigger quarantined: %v", id, qerr)
	}
	return qerrs, nil
}

// Get returns the active runtime for a room, if any.
func (m *Manager) Get(id string) (*ActiveRoom, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ar, ok := m.active[id]
	return ar, ok
}

// ActiveIDs returns the ids of all active rooms, sorted.
func (m *Manager) ActiveIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.active))
	for id := range m.active {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CloseAll deactivates every room. Called at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	rooms := make([]*ActiveRoom, 0, len(m.active))
	for _, ar := range m.active {
		rooms = append(rooms, ar)
	}
	m.active = make(map[string]*ActiveRoom)
	m.mu.Unlock()
	for _, ar := range rooms {
		ar.Engine.Close()
	}
}
