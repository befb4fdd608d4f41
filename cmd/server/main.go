package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/escaped-rooms/roomctl/pkg/actions"
	"github.com/escaped-rooms/roomctl/pkg/boltstore"
	"github.com/escaped-rooms/roomctl/pkg/engine"
	"github.com/escaped-rooms/roomctl/pkg/events"
	"github.com/escaped-rooms/roomctl/pkg/history"
	"github.com/escaped-rooms/roomctl/pkg/server"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

// pruneHistory drops activity-log entries older than the retention window,
// once at startup and then hourly.
func pruneHistory(ctx context.Context, hist *history.History, retentionDays int) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		if n, err := hist.Prune(ctx, cutoff); err != nil {
			log.Printf("history: prune: %v", err)
		} else if n > 0 {
			log.Printf("history: pruned %d entries older than %d days", n, retentionDays)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func main() {
	confPath := flag.String("conf", envDefault("ROOMCTL_CONF", ""), "Path to YAML config file (env: ROOMCTL_CONF)")
	port := flag.Int("port", 0, "HTTP port, overrides config (env: ROOMCTL_PORT)")
	boltPath := flag.String("bolt", envDefault("ROOMCTL_BOLT", ""), "Path to bbolt room database, overrides config (env: ROOMCTL_BOLT)")
	seedDir := flag.String("seed", envDefault("ROOMCTL_SEED", ""), "Directory of room definition JSON files, overrides config (env: ROOMCTL_SEED)")
	operatorName := flag.String("operator", envDefault("ROOMCTL_OPERATOR", "admin"), "Operator account for -operator-pass (env: ROOMCTL_OPERATOR)")
	operatorPass := flag.String("operator-pass", envDefault("ROOMCTL_OPERATOR_PASS", ""), "Set operator password and exit (env: ROOMCTL_OPERATOR_PASS)")
	noHistory := flag.Bool("no-history", os.Getenv("ROOMCTL_NO_HISTORY") == "true", "Disable the SQLite activity log (env: ROOMCTL_NO_HISTORY)")
	flag.Parse()

	cfg := server.DefaultConf()
	if *confPath != "" {
		var err error
		cfg, err = server.LoadConf(*confPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	if *port == 0 {
		if envPort := os.Getenv("ROOMCTL_PORT"); envPort != "" {
			if p, err := strconv.Atoi(envPort); err == nil {
				*port = p
			}
		}
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *boltPath != "" {
		cfg.BoltPath = *boltPath
	}
	if *seedDir != "" {
		cfg.SeedDir = *seedDir
	}

	if err := os.MkdirAll(filepath.Dir(cfg.BoltPath), 0755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	store, err := boltstore.Open(cfg.BoltPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer store.Close()

	// Bootstrap/rotate an operator account, then exit.
	if *operatorPass != "" {
		if err := server.SetOperatorPassword(store, *operatorName, *operatorPass); err != nil {
			log.Fatalf("setting operator password: %v", err)
		}
		log.Printf("operator %q password set", *operatorName)
		return
	}

	// First boot: create a default operator with a generated password so the
	// API is usable immediately. Rotate it with -operator-pass.
	if n, err := store.OperatorCount(); err == nil && n == 0 {
		pass := server.GenerateJWTSecret()[:16]
		if err := server.SetOperatorPassword(store, *operatorName, pass); err != nil {
			log.Fatalf("bootstrapping operator: %v", err)
		}
		log.Printf("created operator %q with password %s (rotate with -operator-pass)", *operatorName, pass)
	}

	bus := events.NewBus()
	execs := engine.NewExecutorRegistry()
	actions.RegisterAll(execs)
	manager := server.NewManager(store, bus, execs, nil)
	defer manager.CloseAll()

	var hist *history.History
	if !*noHistory {
		hist, err = history.Open(cfg.HistoryPath)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer hist.Close()
		recorder := history.NewRecorder(hist)
		defer recorder.Close()
		bus.SubscribeGlobal(recorder)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if hist != nil && cfg.HistoryRetentionDays > 0 {
		go pruneHistory(ctx, hist, cfg.HistoryRetentionDays)
	}

	if cfg.SeedDir != "" {
		if err := server.ImportSeedDir(manager, cfg.SeedDir); err != nil {
			log.Printf("seed: %v", err)
		}
		if err := server.WatchSeedDir(ctx, manager, cfg.SeedDir); err != nil {
			log.Printf("seed: %v", err)
		}
	}

	// Activate stored rooms: the configured list, or everything.
	if len(cfg.AutoActivate) > 0 {
		for _, id := range cfg.AutoActivate {
			if _, ok := manager.Get(id); ok {
				continue
			}
			if _, err := manager.Activate(id); err != nil {
				log.Printf("activate %s: %v", id, err)
			}
		}
	} else {
		rooms, err := store.Rooms()
		if err != nil {
			log.Fatalf("%v", err)
		}
		for _, rc := range rooms {
			if _, ok := manager.Get(rc.ID); ok {
				continue
			}
			if _, err := manager.Activate(rc.ID); err != nil {
				log.Printf("activate %s: %v", rc.ID, err)
			}
		}
	}

	ws := server.NewWebServer(manager, hist, cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- ws.Start(cfg) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := ws.Stop(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
