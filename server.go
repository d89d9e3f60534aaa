package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"coverchart-srv/internal/config"
	"coverchart-srv/internal/database"
	"coverchart-srv/internal/discovery"
	"coverchart-srv/internal/models"
)

/* =========================
   Middleware
   ========================= */

func recoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic in handler", "path", r.URL.Path, "panic", err, "stack", string(debug.Stack()))
					writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

/* =========================
   SSE Helpers
   ========================= */

func setupSSE(w http.ResponseWriter) (http.Flusher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return flusher, nil
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		slog.Error("sse marshal failed", "err", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
	flusher.Flush()
}

/* =========================
   Router
   ========================= */

type server struct {
	app *app
}

func newRouter(a *app) http.Handler {
	s := &server{app: a}

	r := chi.NewRouter()
	r.Use(recoveryMiddleware(a.logger))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/chart/latest", s.handleLatestChart)
		r.Post("/chart/collect", s.handleCollect)
		r.Post("/chart/match-video-ids", s.handleMatchVideoIDs)
		r.Get("/covers/{videoID}", s.handleCovers)
		r.Post("/covers/discover", s.handleDiscover)
	})
	return r
}

/* =========================
   Handlers
   ========================= */

func (s *server) handleLatestChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := clamp(queryInt(r, "limit", 100), 1, 100)

	snap, err := s.app.store.LatestSnapshot(ctx)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	entries, err := s.app.store.ChartEntries(ctx, snap.ID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []models.ChartEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"snapshot_id": snap.ID,
		"week_ending": snap.WeekEnding,
		"entries":     entries,
	})
}

func (s *server) handleCovers(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	limit := clamp(queryInt(r, "limit", 5), 1, 50)

	covers, err := s.app.store.TopCovers(r.Context(), videoID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if covers == nil {
		covers = []models.CuratedCover{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                true,
		"original_video_id": videoID,
		"covers":            covers,
	})
}

type discoverRequest struct {
	LimitSongs  int  `json:"limit_songs"`
	TopK        int  `json:"top_k"`
	Concurrency int  `json:"concurrency"`
	FailFast    bool `json:"fail_fast"`
}

func (s *server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req discoverRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	opts := s.app.discoveryOptions()
	if req.LimitSongs > 0 {
		opts.LimitSongs = min(req.LimitSongs, 100)
	}
	if req.TopK > 0 {
		opts.TopK = min(req.TopK, 20)
	}
	if req.Concurrency > 0 {
		opts.Concurrency = min(req.Concurrency, 8)
	}
	opts.FailFast = req.FailFast

	d, err := s.app.discoverer(opts)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	if r.URL.Query().Get("stream") != "1" {
		summary, err := d.Run(ctx)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "summary": summary})
		return
	}

	flusher, err := setupSSE(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// workers report concurrently
	var mu sync.Mutex
	send := func(v any) {
		mu.Lock()
		defer mu.Unlock()
		sendEvent(w, flusher, v)
	}

	send(map[string]string{"status": "info", "message": "discovery started"})

	var done int
	d.Progress = func(res discovery.SongResult) {
		mu.Lock()
		done++
		n := done
		mu.Unlock()
		send(map[string]any{"status": "processing", "index": n, "result": res})
	}

	summary, err := d.Run(ctx)
	if err != nil {
		send(map[string]any{"status": "error", "message": err.Error()})
		return
	}
	send(map[string]any{"status": "complete", "summary": summary})
}

func (s *server) handleCollect(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.collect(r.Context(), s.app.matchOpts.MaxItems)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": res})
}

type matchRequest struct {
	BatchSize int `json:"batch_size"`
	MaxItems  int `json:"max_items"`
}

func (s *server) handleMatchVideoIDs(w http.ResponseWriter, r *http.Request) {
	req := matchRequest{BatchSize: 10, MaxItems: 30}
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	opts := s.app.matchOpts
	opts.BatchSize = clamp(req.BatchSize, 1, 50)
	opts.MaxItems = clamp(req.MaxItems, 1, 100)

	res, err := s.app.matchLatest(r.Context(), opts)
	if err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": res})
}

/* =========================
   Helpers
   ========================= */

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"ok": false, "error": err.Error()})
}

// writeStoreError maps a missing chart to 404 and everything else to 500.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrNoChartsFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

// decodeOptionalJSON leaves v untouched for an empty body.
func decodeOptionalJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
