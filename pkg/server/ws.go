package server

import (
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/escaped-rooms/roomctl/pkg/events"
)

// WSMessage is the JSON message format pushed to display clients.
type WSMessage struct {
	Type   string         `json:"type"`
	RoomID string         `json:"roomId"`
	Data   map[string]any `json:"data,omitempty"`
}

// wsClient is one connected display client. It implements events.Subscriber:
// bus events are handed to a buffered channel and written by a dedicated
// goroutine, so a slow display can never stall a trigger cascade. When the
// buffer is full the event is dropped for this client only.
type wsClient struct {
	conn   *websocket.Conn
	roomID string
	send   chan events.Event
	done   chan struct{}
	closed atomic.Bool
}

// Receive implements events.Subscriber.
func (c *wsClient) Receive(ev events.Event) {
	select {
	case c.send <- ev:
	default:
		log.Printf("ws: room %s: slow client, dropping %s event", c.roomID, ev.Type)
	}
}

// Closed implements events.Subscriber.
func (c *wsClient) Closed() bool {
	return c.closed.Load()
}

func (c *wsClient) close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
		c.conn.Close()
	}
}

// handleWebSocket upgrades a display client connection and streams the
// room's events to it. Display clients are read-mostly: the only accepted
// inbound traffic is the websocket control flow.
func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("roomID")
	ar, ok := ws.manager.Get(id)
	if !ok {
		http.Error(w, `{"error":"room not active"}`, http.StatusNotFound)
		return
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade error: %v", err)
		return
	}

	c := &wsClient{
		conn:   conn,
		roomID: id,
		send:   make(chan events.Event, 64),
		done:   make(chan struct{}),
	}
	ws.manager.Bus().Subscribe(id, c)
	log.Printf("ws: room %s: display client connected from %s", id, r.RemoteAddr)

	// Snapshot so a client joining mid-game starts from current state.
	hello := WSMessage{
		Type:   "snapshot",
		RoomID: id,
		Data: map[string]any{
			"variables":      ar.Engine.Store().List(),
			"timerState":     string(ar.Timer.State()),
			"timerRemaining": int(ar.Timer.Remaining().Seconds()),
		},
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(hello); err != nil {
		c.close()
		return
	}

	go c.writeLoop()
	go c.readLoop(ws)
}

func (c *wsClient) writeLoop() {
	defer c.close()
	for {
		select {
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			msg := WSMessage{Type: ev.Type.String(), RoomID: ev.RoomID, Data: ev.Data}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) readLoop(ws *WebServer) {
	defer func() {
		c.close()
		ws.manager.Bus().Unsubscribe(c.roomID, c)
		log.Printf("ws: room %s: display client disconnected", c.roomID)
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: room %s: read error: %v", c.roomID, err)
			}
			return
		}
	}
}
