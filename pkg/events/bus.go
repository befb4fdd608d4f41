package events

import "sync"

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus is a per-room pub/sub event bus with support for global subscribers.
// The engine emits structured events; each subscriber (WebSocket display
// client, history writer, logger) encodes them per-transport. Delivery is
// fire-and-forget: a room with no connected displays is not an error.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Subscriber
	global      []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific room's events.
func (b *Bus) Subscribe(roomID string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[roomID] = append(b.subscribers[roomID], sub)
}

// Unsubscribe removes a subscriber for a specific room.
func (b *Bus) Unsubscribe(roomID string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[roomID]
	for i, s := range subs {
		if s == sub {
			b.subscribers[roomID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[roomID]) == 0 {
		delete(b.subscribers, roomID)
	}
}

// SubscribeGlobal registers a subscriber that receives all rooms' events.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

// Emit sends an event to the room named in ev.RoomID and all global subscribers.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	subs := b.subscribers[ev.RoomID]
	globals := b.global
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// RoomSubscribers returns the number of subscribers for a room.
func (b *Bus) RoomSubscribers(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[roomID])
}

// Cleanup removes closed subscribers from all lists.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for roomID, subs := range b.subscribers {
		var active []Subscriber
		for _, s := range subs {
			if !s.Closed() {
				active = append(active, s)
			}
		}
		if len(active) == 0 {
			delete(b.subscribers, roomID)
		} else {
			b.subscribers[roomID] = active
		}
	}

	var activeGlobal []Subscriber
	for _, s := range b.global {
		if !s.Closed() {
			activeGlobal = append(activeGlobal, s)
		}
	}
	b.global = activeGlobal
}
