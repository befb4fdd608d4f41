package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/escaped-rooms/roomctl/pkg/history"
)

// WebServer provides the HTTP/WebSocket surface: operator REST API,
// display-client sockets, auth, health, and metrics.
type WebServer struct {
	manager   *Manager
	hist      *history.History
	httpSrv   *http.Server
	mux       *http.ServeMux
	auth      *AuthService
	rl        *rateLimiter
	upgrader  websocket.Upgrader
	metrics   *Metrics
	startTime time.Time
}

// NewWebServer creates a web server bound to the room manager. hist may be
// nil when the activity log is disabled.
func NewWebServer(manager *Manager, hist *history.History, cfg Conf) *WebServer {
	auth := NewAuthService(manager.Store(), cfg.JWTSecret, cfg.JWTExpiry)
	rl := newRateLimiter(cfg.RateLimit)

	ws := &WebServer{
		manager:   manager,
		hist:      hist,
		mux:       http.NewServeMux(),
		auth:      auth,
		rl:        rl,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(cfg.CORSOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range cfg.CORSOrigins {
					if strings.EqualFold(o, origin) {
						return true
					}
				}
				return false
			},
		},
	}

	ws.registerRoutes(cfg)
	return ws
}

// Auth returns the auth service for external use (e.g., bootstrap tooling).
func (ws *WebServer) Auth() *AuthService {
	return ws.auth
}

// Metrics returns the server's metric set so engine sinks can feed it.
func (ws *WebServer) Metrics() *Metrics {
	return ws.metrics
}

// registerRoutes sets up all HTTP routes.
func (ws *WebServer) registerRoutes(cfg Conf) {
	// Global middleware: CORS -> rate limit
	handler := http.Handler(ws.mux)
	handler = rateLimitMiddleware(ws.rl, handler)
	handler = corsMiddleware(cfg.CORSOrigins, handler)

	ws.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: handler,
	}

	// WebSocket endpoint for display clients
	ws.mux.HandleFunc("GET /ws/{roomID}", ws.handleWebSocket)

	// Auth endpoints
	ws.mux.HandleFunc("POST /api/auth/login", ws.handleAuthLogin)
	ws.mux.HandleFunc("POST /api/auth/refresh", ws.handleAuthRefresh)

	ws.registerRESTRoutes()

	ws.mux.HandleFunc("GET /health", ws.handleHealth)

	ws.metrics = NewMetrics(ws.manager, ws.startTime, nil)
	ws.manager.Bus().SubscribeGlobal(ws.metrics)
	ws.mux.Handle("GET /metrics", ws.metrics.Handler())
}

// Start begins listening. Uses HTTPS when TLS is configured, plain HTTP
// otherwise (development mode).
func (ws *WebServer) Start(cfg Conf) error {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			ws.rl.cleanup()
		}
	}()

	hasTLS := cfg.Domain != "" || (cfg.CertFile != "" && cfg.KeyFile != "") || cfg.CertDir != ""
	if hasTLS {
		result, err := SetupTLS(cfg.Domain, cfg.CertFile, cfg.KeyFile, cfg.CertDir)
		if err != nil {
			log.Printf("web: TLS setup failed (%v), falling back to HTTP", err)
		} else {
			ws.httpSrv.TLSConfig = result.Config

			// Let's Encrypt needs a port-80 listener for ACME challenges.
			if result.AutocertMgr != nil {
				go func() {
					httpSrv := &http.Server{
						Addr:    ":80",
						Handler: result.AutocertMgr.HTTPHandler(nil),
					}
					log.Printf("web: ACME HTTP challenge listener on :80")
					if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Printf("web: ACME HTTP listener error: %v", err)
					}
				}()
			}

			log.Printf("web: listening on %s (HTTPS)", ws.httpSrv.Addr)
			err = ws.httpSrv.ListenAndServeTLS("", "")
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		}
	}

	log.Printf("web: listening on %s (HTTP)", ws.httpSrv.Addr)
	err := ws.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the web server.
func (ws *WebServer) Stop(ctx context.Context) error {
	return ws.httpSrv.Shutdown(ctx)
}

// Handler exposes the full middleware-wrapped handler for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.httpSrv.Handler
}

func (ws *WebServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := ws.auth.Login(req.Name, req.Password)
	if err != nil {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (ws *WebServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
		return
	}
	newToken, err := ws.auth.RefreshToken(authHeader[7:])
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": newToken})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(ws.startTime).Seconds(),
		"rooms_active":   len(ws.manager.ActiveIDs()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
