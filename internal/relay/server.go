// Package relay re-broadcasts decoded events to downstream WebSocket
// clients. Each client may narrow its feed with ?event= and ?world= query
// parameters.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nextlevelbuilder/auraxis/internal/sink"
	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

type Config struct {
	ConnectionsPerMinute int
	Burst                int
	ClientBuffer         int
	// AllowedOrigins restricts browser clients. Empty allows any origin.
	AllowedOrigins []string
}

// Server is both an http.Handler accepting downstream clients and a sink
// fed by the event bus.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	limiter  *RateLimiter
	now      func() time.Time

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool

	connected prometheus.Gauge
	dropped   prometheus.Counter
}

// New builds a relay. reg may be nil.
func New(cfg Config, reg prometheus.Registerer) *Server {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 256
	}
	factory := promauto.With(reg)
	s := &Server{
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.ConnectionsPerMinute, cfg.Burst),
		now:     time.Now,
		clients: make(map[string]*client),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "auraxis", Subsystem: "relay", Name: "clients",
			Help: "Connected downstream relay clients.",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "auraxis", Subsystem: "relay", Name: "dropped_total",
			Help: "Messages dropped because a client's buffer was full.",
		}),
	}
	s.upgrader.CheckOrigin = originChecker(cfg.AllowedOrigins)
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client
		}
		return origins[origin]
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(remoteIP(r)) {
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("relay: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newClient(conn, f, s.cfg.ClientBuffer)
	if !s.register(c) {
		conn.Close()
		return
	}
	defer s.unregister(c)

	slog.Info("relay: client connected", "client", c.id, "remote", r.RemoteAddr)
	c.run()
	slog.Info("relay: client disconnected", "client", c.id)
}

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c.id] = c
	s.connected.Inc()
	return true
}

func (s *Server) unregister(c *client) {
	c.close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		s.connected.Dec()
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) Name() string { return "relay" }

// Write broadcasts ev to every client whose filter matches. It never blocks
// on a client.
func (s *Server) Write(_ context.Context, ev events.Event) error {
	rec, err := sink.NewRecord(ev, s.now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	var idx struct {
		WorldID *int64 `json:"world_id"`
	}
	if err := json.Unmarshal(rec.Data, &idx); err != nil {
		return fmt.Errorf("index %s: %w", ev.EventName(), err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if !c.filter.match(rec.Event, idx.WorldID) {
			continue
		}
		if !c.offer(data) {
			s.dropped.Inc()
			slog.Debug("relay: client buffer full, dropping", "client", c.id, "event", rec.Event)
		}
	}
	return nil
}

// Close disconnects every client and refuses new ones.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	for _, c := range s.clients {
		c.close()
	}
	s.mu.Unlock()
	s.limiter.Stop()
	return nil
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
