package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/escaped-rooms/roomctl/pkg/boltstore"
	"github.com/escaped-rooms/roomctl/pkg/room"
	"github.com/escaped-rooms/roomctl/pkg/timer"
	"github.com/escaped-rooms/roomctl/pkg/trigger"
	"github.com/escaped-rooms/roomctl/pkg/vars"
)

// registerRESTRoutes registers the operator and room API endpoints.
// Definition management and control actions require auth; runtime reads and
// in-room variable writes (panel hardware, prop controllers) do not.
func (ws *WebServer) registerRESTRoutes() {
	required := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(ws.auth, true, h)
	}

	// Room definitions
	ws.mux.HandleFunc("GET /api/rooms", ws.handleListRooms)
	ws.mux.Handle("POST /api/rooms", required(ws.handleCreateRoom))
	ws.mux.HandleFunc("GET /api/rooms/{roomID}", ws.handleGetRoom)
	ws.mux.Handle("PUT /api/rooms/{roomID}", required(ws.handleUpdateRoom))
	ws.mux.Handle("DELETE /api/rooms/{roomID}", required(ws.handleDeleteRoom))

	// Lifecycle
	ws.mux.Handle("POST /api/rooms/{roomID}/activate", required(ws.handleActivate))
	ws.mux.Handle("POST /api/rooms/{roomID}/deactivate", required(ws.handleDeactivate))
	ws.mux.Handle("POST /api/rooms/{roomID}/reset", required(ws.handleReset))

	// Runtime variables
	ws.mux.HandleFunc("GET /api/rooms/{roomID}/variables", ws.handleListVariables)
	ws.mux.HandleFunc("POST /api/rooms/{roomID}/variables", ws.handleDefineVariable)
	ws.mux.HandleFunc("GET /api/rooms/{roomID}/variables/{name}", ws.handleGetVariable)
	// Writes work without auth (prop controllers); a JWT upgrades causedBy
	// from "api" to "operator".
	ws.mux.Handle("POST /api/rooms/{roomID}/variables/{name}",
		authMiddleware(ws.auth, false, http.HandlerFunc(ws.handleSetVariable)))
	ws.mux.Handle("DELETE /api/rooms/{roomID}/variables/{name}", required(ws.handleDeleteVariable))

	// Triggers (runtime view, including quarantined rules)
	ws.mux.HandleFunc("GET /api/rooms/{roomID}/triggers", ws.handleListTriggers)
	ws.mux.Handle("PUT /api/rooms/{roomID}/triggers", required(ws.handleReplaceTriggers))

	// Timer
	ws.mux.HandleFunc("GET /api/rooms/{roomID}/timer", ws.handleGetTimer)
	ws.mux.Handle("POST /api/rooms/{roomID}/timer", required(ws.handleTimerControl))

	// Activity log
	ws.mux.Handle("GET /api/rooms/{roomID}/history", required(ws.handleHistory))
}

// activeRoom resolves the path's roomID to an active runtime, writing the
// error response itself when the room is missing or inactive.
func (ws *WebServer) activeRoom(w http.ResponseWriter, r *http.Request) (*ActiveRoom, bool) {
	id := r.PathValue("roomID")
	ar, ok := ws.manager.Get(id)
	if !ok {
		if _, err := ws.manager.Store().GetRoom(id); err == nil {
			writeError(w, http.StatusConflict, "room %s is not active", id)
		} else {
			writeError(w, http.StatusNotFound, "room %s not found", id)
		}
		return nil, false
	}
	return ar, true
}

// --- Room definitions ---

func (ws *WebServer) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := ws.manager.Store().Rooms()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing rooms: %v", err)
		return
	}
	type roomSummary struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		TimerSeconds int    `json:"timerSeconds"`
		Active       bool   `json:"active"`
	}
	out := make([]roomSummary, 0, len(rooms))
	for _, cfg := range rooms {
		_, active := ws.manager.Get(cfg.ID)
		out = append(out, roomSummary{
			ID:           cfg.ID,
			Name:         cfg.Name,
			TimerSeconds: cfg.TimerSeconds,
			Active:       active,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": out})
}

func (ws *WebServer) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var cfg room.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if _, err := ws.manager.Store().GetRoom(cfg.ID); err == nil {
		writeError(w, http.StatusConflict, "room %s already exists", cfg.ID)
		return
	}
	if err := ws.manager.Store().PutRoom(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (ws *WebServer) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	cfg, err := ws.manager.Store().GetRoom(r.PathValue("roomID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (ws *WebServer) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("roomID")
	var cfg room.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if cfg.ID != id {
		writeError(w, http.StatusBadRequest, "body id %q does not match path %q", cfg.ID, id)
		return
	}
	if err := ws.manager.Store().PutRoom(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	// An active room picks the new definition up immediately.
	if _, active := ws.manager.Get(id); active {
		if _, err := ws.manager.Reload(id); err != nil {
			writeError(w, http.StatusInternalServerError, "stored but reload failed: %v", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (ws *WebServer) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("roomID")
	if _, active := ws.manager.Get(id); active {
		writeError(w, http.StatusConflict, "room %s is active; deactivate it first", id)
		return
	}
	if err := ws.manager.Store().DeleteRoom(id); err != nil {
		if errors.Is(err, boltstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "%v", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Lifecycle ---

func (ws *WebServer) handleActivate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("roomID")
	ar, err := ws.manager.Activate(id)
	if err != nil {
		if errors.Is(err, boltstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "%v", err)
			return
		}
		writeError(w, http.StatusConflict, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     id,
		"active": true,
		"timer":  string(ar.Timer.State()),
	})
}

func (ws *WebServer) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("roomID")
	if err := ws.manager.Deactivate(id); err != nil {
		writeError(w, http.StatusConflict, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": false})
}

func (ws *WebServer) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("roomID")
	if _, err := ws.manager.Reload(id); err != nil {
		writeError(w, http.StatusConflict, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": true})
}

// --- Runtime variables ---

func (ws *WebServer) handleListVariables(w http.ResponseWriter, r *http.Request) {
	ar, ok := ws.activeRoom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"roomId":    ar.Config.ID,
		"variables": ar.Engine.Store().List(),
	})
}

func (ws *WebServer) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	ar, ok := ws.activeRoom(w, r)
	if !ok {
		return
	}
	v, err := ar.Engine.Store().Get(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (ws *WebServer) handleDefineVariable(w http.ResponseWriter, r *http.Request) {
	ar, ok := ws.activeRoom(w, r)
	if !ok {
		return
	}
	var req struct {
		Name  string `json:"name"`
		Type  string `json:"type"`
		Value any    `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	t, err := vars.ParseType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Name == timer.VarMain || req.Name == timer.VarRemaining {
		writeError(w, http.StatusBadRequest, "variable name %q is reserved", req.Name)
		return
	}
	if err := ar.Engine.Store().Define(req.Name, t, req.Value, false); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "%v", err)
		return
	}
	v, _ := ar.Engine.Store().Get(req.Name)
	writeJSON(w, http.StatusCreated, v)
}

func (ws *WebServer) handleSetVariable(w http.ResponseWriter, r *http.Request) {
	ar, ok := ws.activeRoom(w, r)
	if !ok {
		return
	}
	var req struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	origin := vars.OriginAPI
	if ClaimsFromContext(r.Context()) != nil {
		origin = vars.OriginOperator
	}

	name := r.PathValue("name")
	ev, err := ar.Engine.SetVariable(name, req.Value, origin)
	if err != nil {
		var nf *vars.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, "%v", err)
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "%v", err)
		return
	}

	v, _ := ar.Engine.Store().Get(name)
	writeJSON(w, http.StatusOK, map[string]any{
		"variable": v,
		"changed":  ev != nil,
	})
}

func (ws *WebServer) handleDeleteVariable(w http.ResponseWriter, r *http.Request) {
	ar, ok := ws.activeRoom(w, r)
	if !ok {
		return
	}
	if err := ar.Engine.Store().Delete(r.PathValue("name")); err != nil {
		var nf *vars.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, "%v", err)
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "%v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Triggers ---

func (ws *WebServer) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	ar, ok := ws.activeRoom(w, r)
	if !ok {
		return
	}
	reg := ar.Engine.Registry()
	writeJSON(w, http.StatusOK, map[string]any{
		"roomId":      ar.Config.ID,
		"triggers":    reg.All(),
		"quarantined": reg.Quarantine(),
	})
}

func (ws *WebServer) handleReplaceTriggers(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("roomID")
	var req struct {
		Triggers []trigger.Trigger `json:"triggers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	qerrs, err := ws.manager.ReplaceTriggers(id, req.Triggers)
	if err != nil {
		if errors.Is(err, boltstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "%v", err)
			return
		}
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	quarantined := make([]string, 0, len(qerrs))
	for _, qe := range qerrs {
		quarantined = append(quarantined, qe.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"roomId":      id,
		"installed":   len(req.Triggers) - len(qerrs),
		"quarantined": quarantined,
	})
}

// --- Timer ---

func (ws *WebServer) handleGetTimer(w http.ResponseWriter, r *http.Request) {
	ar, ok := ws.activeRoom(w, r)
	if !ok {
		return
	}
	t := ar.Timer
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     string(t.State()),
		"duration":  int(t.Duration().Seconds()),
		"remaining": int(t.Remaining().Seconds()),
	})
}

func (ws *WebServer) handleTimerControl(w http.ResponseWriter, r *http.Request) {
	ar, ok := ws.activeRoom(w, r)
	if !ok {
		return
	}
	var req struct {
		Command string `json:"command"`
		Seconds int    `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if err := ar.Timer.Control(timer.Command(req.Command), req.Seconds); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	t := ar.Timer
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     string(t.State()),
		"remaining": int(t.Remaining().Seconds()),
	})
}

// --- Activity log ---

func (ws *WebServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if ws.hist == nil {
		writeError(w, http.StatusNotImplemented, "history is disabled")
		return
	}
	id := r.PathValue("roomID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := ws.hist.Recent(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roomId": id, "entries": entries})
}
