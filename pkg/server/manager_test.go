package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/escaped-rooms/roomctl/pkg/actions"
	"github.com/escaped-rooms/roomctl/pkg/boltstore"
	"github.com/escaped-rooms/roomctl/pkg/engine"
	"github.com/escaped-rooms/roomctl/pkg/events"
	"github.com/escaped-rooms/roomctl/pkg/timer"
	"github.com/escaped-rooms/roomctl/pkg/vars"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	execs := engine.NewExecutorRegistry()
	actions.RegisterAll(execs)
	m := NewManager(store, events.NewBus(), execs, nil)
	t.Cleanup(m.CloseAll)
	return m
}

func TestManagerActivateDeactivate(t *testing.T) {
	m := newTestManager(t)
	cfg := vaultConfig()
	if err := m.Store().PutRoom(&cfg); err != nil {
		t.Fatal(err)
	}

	ar, err := m.Activate("vault")
	if err != nil {
		t.Fatal(err)
	}

	// System variables exist alongside the authored ones.
	v, err := ar.Engine.Store().Get(timer.VarRemaining)
	if err != nil {
		t.Fatalf("system variable missing: %v", err)
	}
	if v.Value != 3600.0 || !v.System {
		t.Errorf("bad system variable: %+v", v)
	}

	if _, err := m.Activate("vault"); err == nil {
		t.Error("double activation should fail")
	}
	if got := m.ActiveIDs(); len(got) != 1 || got[0] != "vault" {
		t.Errorf("active ids = %v", got)
	}

	if err := m.Deactivate("vault"); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Get("vault"); ok {
		t.Error("room still active after deactivation")
	}
	if err := m.Deactivate("vault"); err == nil {
		t.Error("deactivating an inactive room should fail")
	}
}

func TestActivateReturnsPromptly(t *testing.T) {
	m := newTestManager(t)
	cfg := vaultConfig()
	if err := m.Store().PutRoom(&cfg); err != nil {
		t.Fatal(err)
	}

	// The ticker loop lives on its own goroutine; Activate must not block
	// behind it.
	done := make(chan error, 1)
	go func() {
		_, err := m.Activate("vault")
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Activate did not return")
	}
}

func TestManagerActivateUnknownRoom(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Activate("ghost"); err == nil {
		t.Error("activating an unknown room should fail")
	}
}

func TestManagerReloadResetsState(t *testing.T) {
	m := newTestManager(t)
	cfg := vaultConfig()
	m.Store().PutRoom(&cfg)

	ar, err := m.Activate("vault")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ar.Engine.SetVariable("puzzle_count", 3, vars.OriginAPI); err != nil {
		t.Fatal(err)
	}

	ar2, err := m.Reload("vault")
	if err != nil {
		t.Fatal(err)
	}
	v, _ := ar2.Engine.Store().Get("puzzle_count")
	if v.Value != 0.0 {
		t.Errorf("reload should reset values, got %v", v.Value)
	}
}

func TestImportSeedDir(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	good := `{"id":"vault","name":"The Vault","timerSeconds":60,
		"variables":[{"name":"door_open","type":"boolean","value":false}]}`
	if err := os.WriteFile(filepath.Join(dir, "vault.json"), []byte(good), 0644); err != nil {
		t.Fatal(err)
	}
	// A broken file must not block the rest of the directory.
	os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"id":`), 0644)

	if err := ImportSeedDir(m, dir); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Get("vault"); !ok {
		t.Error("seeded room should be active")
	}
	rooms, _ := m.Store().Rooms()
	if len(rooms) != 1 {
		t.Errorf("expected 1 stored room, got %d", len(rooms))
	}
}
