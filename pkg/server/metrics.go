package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/escaped-rooms/roomctl/pkg/events"
)

// Metrics holds Prometheus metric descriptors. It feeds itself as a global
// bus subscriber: every emitted event is counted, and diagnostic events are
// additionally broken out by kind.
type Metrics struct {
	manager   *Manager
	startTime time.Time
	registry  *prometheus.Registry

	eventsTotal      *prometheus.CounterVec
	writesTotal      *prometheus.CounterVec
	diagnosticsTotal *prometheus.CounterVec
	roomsActive      prometheus.Gauge
	uptimeSeconds    prometheus.Gauge
	memoryHeapBytes  prometheus.Gauge
	goroutines       prometheus.Gauge
}

// NewMetrics creates Prometheus metrics on their own registry, so multiple
// server instances (tests, embedded use) never collide.
func NewMetrics(manager *Manager, startTime time.Time, reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		manager:   manager,
		startTime: startTime,
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomctl_events_total",
			Help: "Events emitted on the bus by room and type.",
		}, []string{"room", "type"}),
		writesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomctl_variable_writes_total",
			Help: "Accepted variable writes by room and origin.",
		}, []string{"room", "caused_by"}),
		diagnosticsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomctl_diagnostics_total",
			Help: "Engine diagnostics by room and kind.",
		}, []string{"room", "kind"}),
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomctl_rooms_active",
			Help: "Number of currently active rooms.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomctl_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomctl_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomctl_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m.registry = reg
	reg.MustRegister(
		m.eventsTotal,
		m.writesTotal,
		m.diagnosticsTotal,
		m.roomsActive,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)
	return m
}

// Receive implements events.Subscriber.
func (m *Metrics) Receive(ev events.Event) {
	m.eventsTotal.WithLabelValues(ev.RoomID, ev.Type.String()).Inc()
	switch ev.Type {
	case events.EvVariableUpdate:
		causedBy, _ := ev.Data["causedBy"].(string)
		m.writesTotal.WithLabelValues(ev.RoomID, causedBy).Inc()
	case events.EvDiagnostic:
		kind, _ := ev.Data["kind"].(string)
		m.diagnosticsTotal.WithLabelValues(ev.RoomID, kind).Inc()
	}
}

// Closed implements events.Subscriber; metrics live as long as the server.
func (m *Metrics) Closed() bool { return false }

// Handler returns the /metrics HTTP handler, refreshing gauges per scrape.
func (m *Metrics) Handler() http.Handler {
	promHandler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.refresh()
		promHandler.ServeHTTP(w, r)
	})
}

func (m *Metrics) refresh() {
	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())
	if m.manager != nil {
		m.roomsActive.Set(float64(len(m.manager.ActiveIDs())))
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.memoryHeapBytes.Set(float64(ms.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}
