package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"hookfeed/internal"
	"hookfeed/pkg/storage"
)

// EventsHandler lists the most recent stored events, newest first.
type EventsHandler struct {
	Store  storage.EventStore
	Limit  int
	Logger *log.Logger
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if h.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage not configured"})
		return
	}

	records, err := h.Store.ListRecentEvents(r.Context(), h.limit(r))
	if err != nil {
		internal.IncStoreError("list")
		if h.Logger != nil {
			h.Logger.Printf("list events failed: %v", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if records == nil {
		records = []storage.EventRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// limit reads the optional limit query parameter. Values outside 1..max fall back to max.
func (h *EventsHandler) limit(r *http.Request) int {
	max := h.Limit
	if max <= 0 || max > storage.DefaultListLimit {
		max = storage.DefaultListLimit
	}
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 || n > max {
		return max
	}
	return n
}

// HealthHandler reports liveness.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// ReadyHandler reports whether the event store is reachable.
type ReadyHandler struct {
	Store   storage.EventStore
	Timeout time.Duration
	Logger  *log.Logger
}

func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage not configured"})
		return
	}
	ctx := r.Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	if err := h.Store.Ping(ctx); err != nil {
		if h.Logger != nil {
			h.Logger.Printf("readiness check failed: %v", err)
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
