package server

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/escaped-rooms/roomctl/pkg/room"
)

// ImportSeedDir loads every *.json room definition in dir into the store and
// activates it (or reloads it when already active). Files that fail to parse
// are logged and skipped so one bad file cannot block the rest.
func ImportSeedDir(m *Manager, dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("scanning seed dir: %w", err)
	}
	for _, path := range paths {
		if err := importSeedFile(m, path); err != nil {
			log.Printf("seed: %v", err)
		}
	}
	return nil
}

func importSeedFile(m *Manager, path string) error {
	cfg, err := room.LoadFile(path)
	if err != nil {
		return err
	}
	if err := m.Store().PutRoom(cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if _, active := m.Get(cfg.ID); active {
		_, err = m.Reload(cfg.ID)
	} else {
		_, err = m.Activate(cfg.ID)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	log.Printf("seed: imported %s as room %s", filepath.Base(path), cfg.ID)
	return nil
}

// WatchSeedDir re-imports seed files as they change on disk, letting
// operators edit room definitions with a text editor during setup. Events
// are debounced because editors produce bursts of writes per save.
func WatchSeedDir(ctx context.Context, m *Manager, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()

		pending := make(map[string]struct{})
		var flush <-chan time.Time

		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				if !strings.HasSuffix(ev.Name, ".json") {
					continue
				}
				pending[ev.Name] = struct{}{}
				flush = time.After(250 * time.Millisecond)

			case <-flush:
				for path := range pending {
					if err := importSeedFile(m, path); err != nil {
						log.Printf("seed: %v", err)
					}
				}
				pending = make(map[string]struct{})
				flush = nil

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("seed: watcher error: %v", err)

			case <-ctx.Done():
				return
			}
		}
	}()

	log.Printf("seed: watching %s for room definition changes", dir)
	return nil
}
