package boltstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/escaped-rooms/roomctl/pkg/room"
	"github.com/escaped-rooms/roomctl/pkg/vars"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRoom(id string) *room.Config {
	return &room.Config{
		ID:           id,
		Name:         "Room " + id,
		TimerSeconds: 3600,
		Variables: []room.VariableDef{
			{Name: "door_open", Type: vars.TypeBoolean, Value: false},
		},
	}
}

func TestRoomRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutRoom(sampleRoom("vault")); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRoom("vault")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Room vault" || got.TimerSeconds != 3600 {
		t.Errorf("bad round trip: %+v", got)
	}
	if len(got.Variables) != 1 || got.Variables[0].Name != "door_open" {
		t.Errorf("variables lost: %+v", got.Variables)
	}
}

func TestRoomOverwrite(t *testing.T) {
	s := openTestStore(t)

	s.PutRoom(sampleRoom("vault"))
	updated := sampleRoom("vault")
	updated.TimerSeconds = 900
	if err := s.PutRoom(updated); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetRoom("vault")
	if got.TimerSeconds != 900 {
		t.Errorf("overwrite did not take: %+v", got)
	}
}

func TestPutRoomRejectsInvalid(t *testing.T) {
	s := openTestStore(t)
	if err := s.PutRoom(&room.Config{ID: ""}); err == nil {
		t.Error("invalid room should not be stored")
	}
}

func TestRoomsSorted(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := s.PutRoom(sampleRoom(id)); err != nil {
			t.Fatal(err)
		}
	}

	rooms, err := s.Rooms()
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 3 || rooms[0].ID != "alpha" || rooms[2].ID != "zeta" {
		t.Errorf("rooms not sorted by id: %+v", rooms)
	}
}

func TestDeleteRoom(t *testing.T) {
	s := openTestStore(t)
	s.PutRoom(sampleRoom("vault"))

	if err := s.DeleteRoom("vault"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRoom("vault"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteRoom("vault"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete should be ErrNotFound, got %v", err)
	}
}

func TestOperatorRoundTrip(t *testing.T) {
	s := openTestStore(t)

	n, err := s.OperatorCount()
	if err != nil || n != 0 {
		t.Fatalf("fresh store should have 0 operators, got %d (%v)", n, err)
	}

	op := &Operator{Name: "gamemaster", Hash: []byte("$2a$10$fake"), Created: time.Now()}
	if err := s.PutOperator(op); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetOperator("gamemaster")
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Hash) != "$2a$10$fake" {
		t.Errorf("hash mangled: %q", got.Hash)
	}

	if _, err := s.GetOperator("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if n, _ := s.OperatorCount(); n != 1 {
		t.Errorf("operator count = %d, want 1", n)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	s.PutRoom(sampleRoom("vault"))
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if _, err := s2.GetRoom("vault"); err != nil {
		t.Errorf("room lost across reopen: %v", err)
	}
}
