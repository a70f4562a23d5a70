// Package api exposes the navigation stack's service surface over HTTP:
// the three costmap services, costmap and planner introspection, and inbound
// message injection for drivers that integrate over the network.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/navstack/internal/bus"
	"github.com/banshee-data/navstack/internal/costmap"
	"github.com/banshee-data/navstack/internal/dwa"
	"github.com/banshee-data/navstack/internal/monitoring"
	"github.com/banshee-data/navstack/internal/msg"
)

// Server hosts the HTTP API. It keeps the last local costmap and obstacle
// cloud seen on the bus so GET handlers can serve them without touching the
// generator's loop.
type Server struct {
	gen     *costmap.Generator
	planner *dwa.Planner
	bus     *bus.Bus
	mux     *http.ServeMux

	mu            sync.Mutex
	lastLocal     *msg.GridStamped
	lastObstacles *msg.PointCloud
}

// NewServer wires the API against a generator, a planner and the bus.
func NewServer(gen *costmap.Generator, planner *dwa.Planner, b *bus.Bus) *Server {
	s := &Server{gen: gen, planner: planner, bus: b, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Watch subscribes to the local costmap topics, caching the latest samples
// for the GET handlers. It blocks until ctx is cancelled.
func (s *Server) Watch(ctx context.Context) {
	localCh, cancelLocal := s.bus.Subscribe(msg.TopicLocalCostmap, 4)
	obstCh, cancelObst := s.bus.Subscribe(msg.TopicLocalObstacles, 4)
	defer cancelLocal()
	defer cancelObst()

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-localCh:
			if g, ok := m.Payload.(msg.GridStamped); ok {
				s.mu.Lock()
				s.lastLocal = &g
				s.mu.Unlock()
			}
		case m := <-obstCh:
			if pc, ok := m.Payload.(msg.PointCloud); ok {
				s.mu.Lock()
				s.lastObstacles = &pc
				s.mu.Unlock()
			}
		}
	}
}

// ServeMux returns the router so callers can mount additional routes before
// starting the listener.
func (s *Server) ServeMux() *http.ServeMux { return s.mux }

// Start runs the HTTP listener until it fails.
func (s *Server) Start(addr string) error {
	monitoring.Logf("[api] listening on %s", addr)
	return http.ListenAndServe(addr, LoggingMiddleware(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/healthz", s.handleHealthz)
	s.mux.HandleFunc("/api/maps/switch", s.handleSwitchMap)
	s.mux.HandleFunc("/api/maps/clear", s.handleClearMap)
	s.mux.HandleFunc("/api/maps/absorb", s.handleAbsorb)
	s.mux.HandleFunc("/api/costmap/global", s.handleGlobalCostmap)
	s.mux.HandleFunc("/api/costmap/local", s.handleLocalCostmap)
	s.mux.HandleFunc("/api/obstacles", s.handleObstacles)
	s.mux.HandleFunc("/api/planner/status", s.handlePlannerStatus)
	s.mux.HandleFunc("/api/odom", s.handleOdom)
	s.mux.HandleFunc("/api/scan", s.handleScan)
	s.mux.HandleFunc("/api/path", s.handlePath)
}

// serviceResponse is the wire form of the three bool services.
type serviceResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSwitchMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		MapID int `json:"map_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("bad request: %v", err))
		return
	}
	if err := s.gen.SwitchMap(r.Context(), req.MapID); err != nil {
		writeJSON(w, http.StatusOK, serviceResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, serviceResponse{OK: true})
}

func (s *Server) handleClearMap(w http.ResponseWriter, r *http.Request) {
	s.commandService(w, r, s.gen.ClearMap)
}

func (s *Server) handleAbsorb(w http.ResponseWriter, r *http.Request) {
	s.commandService(w, r, s.gen.AddLocalMap)
}

// commandService decodes a {"command": ...} request and maps the service
// result onto the bool wire form. A command mismatch is a false response,
// not an HTTP error.
func (s *Server) commandService(w http.ResponseWriter, r *http.Request, svc func(ctx context.Context, command string) error) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("bad request: %v", err))
		return
	}
	if err := svc(r.Context(), req.Command); err != nil {
		resp := serviceResponse{OK: false, Error: err.Error()}
		if errors.Is(err, costmap.ErrBadCommand) {
			resp.Error = "unrecognised command"
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusOK, serviceResponse{OK: true})
}

func (s *Server) handleGlobalCostmap(w http.ResponseWriter, r *http.Request) {
	g := s.gen.Global()
	if g == nil {
		writeJSONError(w, http.StatusNotFound, "no global costmap loaded")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleLocalCostmap(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	g := s.lastLocal
	s.mu.Unlock()
	if g == nil {
		writeJSONError(w, http.StatusNotFound, "no local costmap published yet")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleObstacles(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	pc := s.lastObstacles
	s.mu.Unlock()
	if pc == nil {
		writeJSONError(w, http.StatusNotFound, "no obstacle cloud published yet")
		return
	}
	writeJSON(w, http.StatusOK, pc)
}

func (s *Server) handlePlannerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.planner.Status())
}

func (s *Server) handleOdom(w http.ResponseWriter, r *http.Request) {
	var o msg.Odometry
	if !decodePost(w, r, &o) {
		return
	}
	if o.Stamp.IsZero() {
		o.Stamp = time.Now()
	}
	s.bus.Publish(msg.TopicOdom, o.Stamp, o)
	writeJSON(w, http.StatusOK, serviceResponse{OK: true})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var sc msg.LaserScan
	if !decodePost(w, r, &sc) {
		return
	}
	if len(sc.Ranges) == 0 {
		writeJSONError(w, http.StatusBadRequest, "scan has no ranges")
		return
	}
	if sc.Stamp.IsZero() {
		sc.Stamp = time.Now()
	}
	s.bus.Publish(msg.TopicScan, sc.Stamp, sc)
	writeJSON(w, http.StatusOK, serviceResponse{OK: true})
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	var p msg.Path
	if !decodePost(w, r, &p) {
		return
	}
	if p.Stamp.IsZero() {
		p.Stamp = time.Now()
	}
	s.bus.Publish(msg.TopicGlobalPath, p.Stamp, p)
	writeJSON(w, http.StatusOK, serviceResponse{OK: true})
}

func decodePost(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("bad request: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("[api] encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs method, path, status and duration for every request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf("[api] %s %s %s %s", r.Method, r.URL.Path, strconv.Itoa(lrw.statusCode), time.Since(start))
	})
}
