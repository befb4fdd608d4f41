package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/escaped-rooms/roomctl/pkg/actions"
	"github.com/escaped-rooms/roomctl/pkg/boltstore"
	"github.com/escaped-rooms/roomctl/pkg/engine"
	"github.com/escaped-rooms/roomctl/pkg/events"
	"github.com/escaped-rooms/roomctl/pkg/room"
	"github.com/escaped-rooms/roomctl/pkg/vars"
)

type testServer struct {
	ws      *WebServer
	manager *Manager
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := boltstore.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	if err := SetOperatorPassword(store, "gamemaster", "letmein-123"); err != nil {
		t.Fatal(err)
	}

	execs := engine.NewExecutorRegistry()
	actions.RegisterAll(execs)
	manager := NewManager(store, events.NewBus(), execs, nil)
	t.Cleanup(manager.CloseAll)

	cfg := DefaultConf()
	cfg.JWTSecret = "test-secret"
	ws := NewWebServer(manager, nil, cfg)

	token, err := ws.Auth().Login("gamemaster", "letmein-123")
	if err != nil {
		t.Fatal(err)
	}
	return &testServer{ws: ws, manager: manager, token: token}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if authed {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	w := httptest.NewRecorder()
	ts.ws.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

func vaultConfig() room.Config {
	return room.Config{
		ID:           "vault",
		Name:         "The Vault",
		TimerSeconds: 3600,
		Variables: []room.VariableDef{
			{Name: "door_open", Type: vars.TypeBoolean, Value: false},
			{Name: "puzzle_count", Type: vars.TypeNumber, Value: 0},
		},
	}
}

func (ts *testServer) createAndActivate(t *testing.T, cfg room.Config) {
	t.Helper()
	if w := ts.do(t, "POST", "/api/rooms", cfg, true); w.Code != http.StatusCreated {
		t.Fatalf("create room: %d %s", w.Code, w.Body.String())
	}
	if w := ts.do(t, "POST", "/api/rooms/"+cfg.ID+"/activate", nil, true); w.Code != http.StatusOK {
		t.Fatalf("activate: %d %s", w.Code, w.Body.String())
	}
}

func TestRoomLifecycle(t *testing.T) {
	ts := newTestServer(t)

	// Create requires auth.
	if w := ts.do(t, "POST", "/api/rooms", vaultConfig(), false); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated create should 401, got %d", w.Code)
	}

	ts.createAndActivate(t, vaultConfig())

	var list struct {
		Rooms []struct {
			ID     string `json:"id"`
			Active bool   `json:"active"`
		} `json:"rooms"`
	}
	w := ts.do(t, "GET", "/api/rooms", nil, false)
	ts.decode(t, w, &list)
	if len(list.Rooms) != 1 || list.Rooms[0].ID != "vault" || !list.Rooms[0].Active {
		t.Fatalf("bad room list: %+v", list)
	}

	// Deleting an active room is refused.
	if w := ts.do(t, "DELETE", "/api/rooms/vault", nil, true); w.Code != http.StatusConflict {
		t.Errorf("delete of active room should 409, got %d", w.Code)
	}

	if w := ts.do(t, "POST", "/api/rooms/vault/deactivate", nil, true); w.Code != http.StatusOK {
		t.Fatalf("deactivate: %d", w.Code)
	}
	if w := ts.do(t, "DELETE", "/api/rooms/vault", nil, true); w.Code != http.StatusNoContent {
		t.Errorf("delete: %d %s", w.Code, w.Body.String())
	}
	if w := ts.do(t, "GET", "/api/rooms/vault", nil, false); w.Code != http.StatusNotFound {
		t.Errorf("deleted room should 404, got %d", w.Code)
	}
}

func TestVariableReadAndWrite(t *testing.T) {
	ts := newTestServer(t)
	ts.createAndActivate(t, vaultConfig())

	var listing struct {
		Variables []vars.Variable `json:"variables"`
	}
	w := ts.do(t, "GET", "/api/rooms/vault/variables", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("list variables: %d", w.Code)
	}
	ts.decode(t, w, &listing)
	// door_open, puzzle_count plus the two timer system variables.
	if len(listing.Variables) != 4 {
		t.Fatalf("expected 4 variables, got %+v", listing.Variables)
	}

	w = ts.do(t, "POST", "/api/rooms/vault/variables/door_open", map[string]any{"value": true}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("set variable: %d %s", w.Code, w.Body.String())
	}
	var setResp struct {
		Variable vars.Variable `json:"variable"`
		Changed  bool          `json:"changed"`
	}
	ts.decode(t, w, &setResp)
	if setResp.Variable.Value != true || !setResp.Changed {
		t.Errorf("bad set response: %+v", setResp)
	}

	// Identical write reports changed=false.
	w = ts.do(t, "POST", "/api/rooms/vault/variables/door_open", map[string]any{"value": true}, false)
	ts.decode(t, w, &setResp)
	if setResp.Changed {
		t.Error("no-op write should report changed=false")
	}

	// Type violations are rejected and leave the value alone.
	w = ts.do(t, "POST", "/api/rooms/vault/variables/puzzle_count", map[string]any{"value": "banana"}, false)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("type violation should 422, got %d", w.Code)
	}

	// Unknown variable.
	w = ts.do(t, "POST", "/api/rooms/vault/variables/ghost", map[string]any{"value": 1}, false)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown variable should 404, got %d", w.Code)
	}

	// System variables reject API writes.
	w = ts.do(t, "POST", "/api/rooms/vault/variables/timer_main_remaining", map[string]any{"value": 1}, false)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("system variable write should 422, got %d", w.Code)
	}
}

func TestDefineVariableAtRuntime(t *testing.T) {
	ts := newTestServer(t)
	ts.createAndActivate(t, vaultConfig())

	w := ts.do(t, "POST", "/api/rooms/vault/variables",
		map[string]any{"name": "hint_count", "type": "number", "value": 0}, false)
	if w.Code != http.StatusCreated {
		t.Fatalf("define: %d %s", w.Code, w.Body.String())
	}

	// Duplicate definition is refused.
	w = ts.do(t, "POST", "/api/rooms/vault/variables",
		map[string]any{"name": "hint_count", "type": "number"}, false)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("duplicate define should 422, got %d", w.Code)
	}

	// Reserved names are refused.
	w = ts.do(t, "POST", "/api/rooms/vault/variables",
		map[string]any{"name": "timer_main", "type": "number"}, false)
	if w.Code != http.StatusBadRequest {
		t.Errorf("reserved name should 400, got %d", w.Code)
	}
}

func TestVariablesOnInactiveRoom(t *testing.T) {
	ts := newTestServer(t)
	if w := ts.do(t, "POST", "/api/rooms", vaultConfig(), true); w.Code != http.StatusCreated {
		t.Fatal("create failed")
	}

	if w := ts.do(t, "GET", "/api/rooms/vault/variables", nil, false); w.Code != http.StatusConflict {
		t.Errorf("inactive room should 409, got %d", w.Code)
	}
	if w := ts.do(t, "GET", "/api/rooms/ghost/variables", nil, false); w.Code != http.StatusNotFound {
		t.Errorf("unknown room should 404, got %d", w.Code)
	}
}

func TestTriggerListingIncludesQuarantine(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]any{
		"id": "vault", "name": "The Vault", "timerSeconds": 60,
		"variables": []map[string]any{
			{"name": "door_open", "type": "boolean", "value": false},
		},
		"triggers": []map[string]any{
			{
				"id": "good", "name": "good", "watchedVariable": "door_open",
				"condition": map[string]any{"operator": "equals", "comparand": true},
				"actions":   []map[string]any{{"type": "play_sound", "config": map[string]any{"audioId": "s"}}},
				"enabled":   true,
			},
			{
				"id": "bad", "name": "bad", "watchedVariable": "door_open",
				"condition": map[string]any{"operator": "greater_than", "comparand": 1},
				"actions":   []map[string]any{{"type": "play_sound", "config": map[string]any{"audioId": "s"}}},
				"enabled":   true,
			},
		},
	}
	if w := ts.do(t, "POST", "/api/rooms", body, true); w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	if w := ts.do(t, "POST", "/api/rooms/vault/activate", nil, true); w.Code != http.StatusOK {
		t.Fatal("activate failed")
	}

	var resp struct {
		Triggers    []map[string]any `json:"triggers"`
		Quarantined []map[string]any `json:"quarantined"`
	}
	w := ts.do(t, "GET", "/api/rooms/vault/triggers", nil, false)
	ts.decode(t, w, &resp)
	if len(resp.Triggers) != 1 {
		t.Errorf("expected 1 live trigger, got %+v", resp.Triggers)
	}
	// greater_than on a boolean variable is quarantined at activation.
	if len(resp.Quarantined) != 1 {
		t.Errorf("expected 1 quarantined trigger, got %+v", resp.Quarantined)
	}
}

func TestTimerEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.createAndActivate(t, vaultConfig())

	var state struct {
		State     string `json:"state"`
		Duration  int    `json:"duration"`
		Remaining int    `json:"remaining"`
	}
	w := ts.do(t, "GET", "/api/rooms/vault/timer", nil, false)
	ts.decode(t, w, &state)
	if state.State != "stopped" || state.Duration != 3600 {
		t.Fatalf("bad initial timer state: %+v", state)
	}

	// Control requires auth.
	if w := ts.do(t, "POST", "/api/rooms/vault/timer", map[string]any{"command": "start"}, false); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated timer control should 401, got %d", w.Code)
	}

	w = ts.do(t, "POST", "/api/rooms/vault/timer", map[string]any{"command": "start"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}
	ts.decode(t, w, &state)
	if state.State != "running" {
		t.Errorf("timer should be running: %+v", state)
	}

	w = ts.do(t, "POST", "/api/rooms/vault/timer", map[string]any{"command": "warp"}, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown command should 400, got %d", w.Code)
	}
}

func TestResetRestoresInitialState(t *testing.T) {
	ts := newTestServer(t)
	ts.createAndActivate(t, vaultConfig())

	ts.do(t, "POST", "/api/rooms/vault/variables/puzzle_count", map[string]any{"value": 3}, false)
	if w := ts.do(t, "POST", "/api/rooms/vault/reset", nil, true); w.Code != http.StatusOK {
		t.Fatalf("reset: %d", w.Code)
	}

	var resp struct {
		Variable vars.Variable `json:"variable"`
	}
	w := ts.do(t, "GET", "/api/rooms/vault/variables/puzzle_count", nil, false)
	ts.decode(t, w, &resp.Variable)
	if resp.Variable.Value != 0.0 {
		t.Errorf("reset should restore initial value, got %v", resp.Variable.Value)
	}
}

func TestReplaceTriggersKeepsRuntimeState(t *testing.T) {
	ts := newTestServer(t)
	ts.createAndActivate(t, vaultConfig())

	// Mutate runtime state, then swap the trigger list in place.
	ts.do(t, "POST", "/api/rooms/vault/variables/puzzle_count", map[string]any{"value": 2}, false)

	body := map[string]any{
		"triggers": []map[string]any{
			{
				"id": "t1", "name": "t1", "watchedVariable": "door_open",
				"condition": map[string]any{"operator": "changed"},
				"actions":   []map[string]any{{"type": "show_message", "config": map[string]any{"text": "hi"}}},
				"enabled":   true,
			},
			{
				"id": "", "name": "broken", "watchedVariable": "door_open",
				"condition": map[string]any{"operator": "changed"},
				"actions":   []map[string]any{},
				"enabled":   true,
			},
		},
	}
	w := ts.do(t, "PUT", "/api/rooms/vault/triggers", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("replace triggers: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Installed   int      `json:"installed"`
		Quarantined []string `json:"quarantined"`
	}
	ts.decode(t, w, &resp)
	if resp.Installed != 1 || len(resp.Quarantined) != 1 {
		t.Errorf("bad replace result: %+v", resp)
	}

	// The swap must not reset variable values.
	var v vars.Variable
	w = ts.do(t, "GET", "/api/rooms/vault/variables/puzzle_count", nil, false)
	ts.decode(t, w, &v)
	if v.Value != 2.0 {
		t.Errorf("trigger replacement reset runtime state: %v", v.Value)
	}
}

func TestAuthLoginAndRefresh(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "POST", "/api/auth/login", map[string]string{"name": "gamemaster", "password": "wrong"}, false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad password should 401, got %d", w.Code)
	}

	w = ts.do(t, "POST", "/api/auth/login", map[string]string{"name": "gamemaster", "password": "letmein-123"}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	ts.decode(t, w, &resp)
	if resp["token"] == "" {
		t.Fatal("no token in login response")
	}

	req := httptest.NewRequest("POST", "/api/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+resp["token"])
	rec := httptest.NewRecorder()
	ts.ws.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("refresh: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, "GET", "/health", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
	var resp map[string]any
	ts.decode(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("bad health payload: %+v", resp)
	}
}

func TestUpdateRoomReloadsActiveRuntime(t *testing.T) {
	ts := newTestServer(t)
	ts.createAndActivate(t, vaultConfig())

	cfg := vaultConfig()
	cfg.TimerSeconds = 900
	if w := ts.do(t, "PUT", "/api/rooms/vault", cfg, true); w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}

	var state struct {
		Duration int `json:"duration"`
	}
	w := ts.do(t, "GET", "/api/rooms/vault/timer", nil, false)
	ts.decode(t, w, &state)
	if state.Duration != 900 {
		t.Errorf("active room did not pick up new definition: %+v", state)
	}

	// Mismatched path and body id.
	if w := ts.do(t, "PUT", "/api/rooms/other", cfg, true); w.Code != http.StatusBadRequest {
		t.Errorf("id mismatch should 400, got %d", w.Code)
	}
}
