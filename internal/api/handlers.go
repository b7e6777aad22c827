// Package api provides the HTTP API for BatteryMaster.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/topabomb/BatteryMaster/internal/cache"
	"github.com/topabomb/BatteryMaster/internal/model"
	"github.com/topabomb/BatteryMaster/internal/stats"
	"github.com/topabomb/BatteryMaster/internal/store"
	"golang.org/x/sync/singleflight"

	_ "github.com/topabomb/BatteryMaster/docs/swagger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 255
)

// errBadParam marks a malformed query parameter.
var errBadParam = errors.New("invalid parameter")

// Server is the HTTP server for BatteryMaster.
type Server struct {
	cache  *cache.Cache
	store  *store.Store
	hub    *Hub
	mux    *http.ServeMux
	server *http.Server
	group  singleflight.Group
	now    func() time.Time

	// staleAfter is how long /healthz tolerates no new reading.
	staleAfter time.Duration
}

// NewServer creates a new HTTP server. hub may be nil, in which case /ws is
// not served.
func NewServer(addr string, c *cache.Cache, s *store.Store, hub *Hub) *Server {
	srv := &Server{
		cache:      c,
		store:      s,
		hub:        hub,
		mux:        http.NewServeMux(),
		now:        time.Now,
		staleAfter: 2 * time.Minute,
	}

	srv.registerRoutes()

	srv.server = &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return srv
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return SecurityHeadersMiddleware(RecoveryMiddleware(LoggingMiddleware(s.mux)))
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("HTTP server starting", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/series/realtime", s.handleRealtimeSeries)
	s.mux.HandleFunc("GET /api/series/one-minute", s.handleOneMinuteSeries)
	s.mux.HandleFunc("GET /api/summary", s.handleSummary)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)

	// Health check
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	if s.hub != nil {
		s.mux.HandleFunc("GET /ws", s.hub.ServeWS)
	}

	// Swagger UI
	s.mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}

// HandleMetrics serves h at /metrics.
func (s *Server) HandleMetrics(h http.Handler) {
	s.mux.Handle("GET /metrics", h)
}

// writeJSON marshals v to JSON into a buffer first, then writes it to the
// response. This ensures marshalling errors can be returned as a proper 500.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("encoding JSON response", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		slog.Debug("writing JSON response", "path", r.URL.Path, "error", err)
	}
}

// intParam parses an optional integer query parameter bounded by [lo, hi].
func intParam(r *http.Request, name string, def, lo, hi int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("%w: %s must be an integer between %d and %d", errBadParam, name, lo, hi)
	}
	return v, nil
}

// historyPage is the response body for GET /api/history.
type historyPage struct {
	Items []model.HistoryInfo `json:"items"`
	// NextCursor is set when the page is full; pass it back as cursor to
	// continue.
	NextCursor *int64 `json:"next_cursor,omitempty"`
}

// @Summary Battery state history
// @Description Returns state intervals newest first with deltas against the previous interval. Pages are keyed by the timestamp of the last item.
// @Produce json
// @Param cursor query int false "Only return intervals that started before this timestamp (defaults to end)"
// @Param size query int false "Page size (0-255)" default(20)
// @Param start query int false "Window start, unix seconds" default(0)
// @Param end query int false "Window end, unix seconds (defaults to now)"
// @Success 200 {object} historyPage
// @Failure 400 {string} string "Invalid parameter"
// @Failure 500 {string} string "Internal Server Error"
// @Router /api/history [get]
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	size, err := intParam(r, "size", defaultPageSize, 0, maxPageSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	start, err := intParam(r, "start", 0, 0, 1<<62)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	end, err := intParam(r, "end", s.now().Unix(), 0, 1<<62)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var cursor *int64
	if r.URL.Query().Get("cursor") != "" {
		c, err := intParam(r, "cursor", 0, 0, 1<<62)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cursor = &c
	}

	key := fmt.Sprintf("%v/%d/%d/%d", derefOr(cursor, -1), size, start, end)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.store.SelectHistoryPage(context.WithoutCancel(r.Context()), cursor, uint8(size), start, end)
	})
	if err != nil {
		slog.Error("querying history page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	items := v.([]model.HistoryInfo)
	page := historyPage{Items: items}
	if size > 0 && len(items) == int(size) {
		next := items[len(items)-1].Timestamp
		page.NextCursor = &next
	}
	writeJSON(w, r, page)
}

func derefOr(p *int64, def int64) int64 {
	if p == nil {
		return def
	}
	return *p
}

// @Summary Realtime tier series
// @Description Returns realtime tier rows for the last N minutes, oldest first
// @Produce json
// @Param minutes query int false "Minutes of history (1-1440)" default(10)
// @Success 200 {array} model.TierSample
// @Failure 400 {string} string "Invalid parameter"
// @Failure 500 {string} string "Internal Server Error"
// @Router /api/series/realtime [get]
func (s *Server) handleRealtimeSeries(w http.ResponseWriter, r *http.Request) {
	minutes, err := intParam(r, "minutes", 10, 1, 24*60)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := s.now().Unix()
	rows, err := s.store.SelectRealtime(r.Context(), now-minutes*60, now)
	if err != nil {
		slog.Error("querying realtime series", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []model.TierSample{}
	}
	writeJSON(w, r, rows)
}

// @Summary One-minute tier series
// @Description Returns one-minute tier rows for the last N hours, oldest first
// @Produce json
// @Param hours query int false "Hours of history (1-720)" default(24)
// @Success 200 {array} model.TierSample
// @Failure 400 {string} string "Invalid parameter"
// @Failure 500 {string} string "Internal Server Error"
// @Router /api/series/one-minute [get]
func (s *Server) handleOneMinuteSeries(w http.ResponseWriter, r *http.Request) {
	hours, err := intParam(r, "hours", 24, 1, 720)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := s.now().Unix()
	rows, err := s.store.SelectOneMinute(r.Context(), now-hours*3600, now)
	if err != nil {
		slog.Error("querying one-minute series", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []model.TierSample{}
	}
	writeJSON(w, r, rows)
}

// @Summary Percentile summary
// @Description Returns count, min, max, average and p50/p90/p99 per metric over the one-minute tier
// @Produce json
// @Param hours query int false "Hours of history (1-720)" default(24)
// @Success 200 {object} stats.Summary
// @Failure 400 {string} string "Invalid parameter"
// @Failure 500 {string} string "Internal Server Error"
// @Router /api/summary [get]
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	hours, err := intParam(r, "hours", 24, 1, 720)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := s.now().Unix()
	rows, err := s.store.SelectOneMinute(r.Context(), now-hours*3600, now)
	if err != nil {
		slog.Error("querying summary rows", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	sum, err := stats.Summarize(rows)
	if err != nil {
		slog.Error("summarizing rows", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, sum)
}

// statusResponse is the response body for GET /api/status.
type statusResponse struct {
	cache.CacheSnapshot
	Open *model.HistoryRecord `json:"open,omitempty"`
}

// @Summary Current status
// @Description Returns the latest reading, ingestion counters and the open state interval
// @Produce json
// @Success 200 {object} statusResponse
// @Failure 500 {string} string "Internal Server Error"
// @Router /api/status [get]
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	open, err := s.store.OpenHistory(r.Context())
	if err != nil {
		slog.Error("querying open history", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, statusResponse{CacheSnapshot: s.cache.Snapshot(), Open: open})
}

// @Summary Health check
// @Description Returns service health and the age of the last ingested reading
// @Produce json
// @Success 200 {object} map[string]interface{} "Health status"
// @Failure 503 {object} map[string]interface{} "Ingestion stale"
// @Router /healthz [get]
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snap := s.cache.Snapshot()

	status := "ok"
	switch {
	case snap.LastPoll.IsZero():
		status = "no_data"
	case s.cache.Stale(s.staleAfter):
		status = "stale"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	body := map[string]any{
		"status":    status,
		"timestamp": s.now().Unix(),
		"samples":   snap.Samples,
		"failures":  snap.Failures,
	}
	if !snap.LastPoll.IsZero() {
		body["last_poll"] = fmt.Sprintf("%ds ago", int(s.now().Sub(snap.LastPoll).Seconds()))
	}
	if snap.LastError != "" {
		body["last_error"] = snap.LastError
	}
	writeJSON(w, r, body)
}
