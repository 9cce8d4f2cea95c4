// Package server exposes the console's HTTP surface: the mutation API used
// by the UI, the virtualized list window, health, and Prometheus metrics.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/userdeck/userdeck/pkg/api"
	"github.com/userdeck/userdeck/pkg/audit"
	"github.com/userdeck/userdeck/pkg/export"
	"github.com/userdeck/userdeck/pkg/mutate"
	"github.com/userdeck/userdeck/pkg/store"
	"github.com/userdeck/userdeck/pkg/user"
	"github.com/userdeck/userdeck/pkg/virtual"
)

// Server routes console HTTP traffic.
type Server struct {
	store *store.Store
	coord *mutate.Coordinator
	log   *slog.Logger

	trail    *audit.Trail
	exporter *export.Exporter
	gatherer prometheus.Gatherer

	itemHeight int
	overscan   int

	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithAuditTrail enables GET /api/audit.
func WithAuditTrail(t *audit.Trail) Option {
	return func(s *Server) { s.trail = t }
}

// WithExporter enables POST /api/users/{id}/export.
func WithExporter(e *export.Exporter) Option {
	return func(s *Server) { s.exporter = e }
}

// WithMetrics serves the gatherer on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithListGeometry sets the row height and overscan used by the window
// endpoint.
func WithListGeometry(itemHeight, overscan int) Option {
	return func(s *Server) {
		s.itemHeight = itemHeight
		s.overscan = overscan
	}
}

// New creates a Server over the given store and coordinator.
func New(st *store.Store, coord *mutate.Coordinator, opts ...Option) *Server {
	s := &Server{
		store:      st,
		coord:      coord,
		log:        slog.Default(),
		gatherer:   prometheus.DefaultGatherer,
		itemHeight: 80,
		overscan:   5,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/users/window", s.handleWindow)
		r.Post("/users", s.handleCreate)
		r.Post("/users/bulk-delete", s.handleBulkDelete)
		r.Route("/users/{id}", func(r chi.Router) {
			r.Patch("/", s.handleUpdate)
			r.Delete("/", s.handleDelete)
			r.Post("/toggle", s.handleToggle)
			r.Post("/export", s.handleExport)
		})
		r.Get("/audit", s.handleAudit)
	})
	r.Get("/ws/live", s.handleLive)
	return r
}

// logRequests logs one line per request with status and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"users":  s.store.Len(),
	})
}

// windowRow is one rendered row of the virtualized list.
type windowRow struct {
	Index      int         `json:"index"`
	Offset     int         `json:"offset"`
	Optimistic bool        `json:"optimistic"`
	User       user.Record `json:"user"`
}

type windowResponse struct {
	Rows        []windowRow `json:"rows"`
	TotalHeight int         `json:"totalHeight"`
	Start       int         `json:"start"`
	End         int         `json:"end"`
	Total       int         `json:"total"`
}

// handleWindow returns the rows visible for the given scroll position, with
// overscan on both sides. The UI re-requests on scroll and renders only
// these rows.
func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	scrollTop := queryInt(r, "scrollTop", 0)
	height := queryInt(r, "height", 600)

	records := s.store.Snapshot()
	win := virtual.Slice(records, scrollTop, height, s.itemHeight, s.overscan)

	resp := windowResponse{
		Rows:        make([]windowRow, 0, len(win.Rows)),
		TotalHeight: win.TotalHeight,
		Start:       win.Range.Start,
		End:         win.Range.End,
		Total:       len(records),
	}
	for _, row := range win.Rows {
		resp.Rows = append(resp.Rows, windowRow{
			Index:      row.Index,
			Offset:     row.Offset,
			Optimistic: s.store.IsOptimistic(row.Item.ID),
			User:       row.Item,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload user.CreatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := s.coord.CreateUser(r.Context(), payload)
	if err != nil {
		s.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch user.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := s.coord.UpdateUser(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeMutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := s.coord.ToggleStatus(r.Context(), chi.URLParam(r, "id"), body.Active)
	if err != nil {
		s.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids must not be empty")
		return
	}
	result, err := s.coord.BulkDelete(r.Context(), body.IDs)
	if err != nil {
		s.writeMutationError(w, err)
		return
	}
	// Partial failure is still a 200; the body carries per-id outcomes.
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.trail == nil {
		writeError(w, http.StatusNotFound, "audit trail not enabled")
		return
	}
	limit := queryInt(r, "limit", 50)
	writeJSON(w, http.StatusOK, s.trail.Recent(limit))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusNotFound, "export not enabled")
		return
	}
	res, err := s.exporter.Export(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

var liveUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// liveChange is one frame pushed to /ws/live subscribers.
type liveChange struct {
	Type  string `json:"type"`
	Total int    `json:"total"`
}

// handleLive pushes a frame to the client whenever the store changes, so the
// UI can re-request its window without polling. Coalesced: a burst of store
// changes between writes collapses into one frame.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := liveUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("live upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	notify := make(chan struct{}, 1)
	unsub := s.store.Subscribe(func() {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer unsub()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.writeChange(conn); err != nil {
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-notify:
			if err := s.writeChange(conn); err != nil {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) writeChange(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(liveChange{Type: "changed", Total: s.store.Len()})
}

// writeMutationError maps domain errors onto HTTP statuses.
func (s *Server) writeMutationError(w http.ResponseWriter, err error) {
	var conflict *store.ConflictError
	if errors.As(err, &conflict) {
		writeError(w, http.StatusConflict, conflict.Error())
		return
	}
	var notFound *store.NotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, notFound.Error())
		return
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		status := apiErr.Status
		if status == 0 {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]any{
			"error":  apiErr.Message,
			"kind":   string(apiErr.Kind),
			"fields": apiErr.Fields,
		})
		return
	}
	s.log.Error("unhandled mutation error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
