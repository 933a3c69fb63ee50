package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"hookfeed/internal"
	"hookfeed/pkg/events"
	"hookfeed/pkg/storage"

	"github.com/google/uuid"
)

const (
	debugBodyLimit       = 2048
	defaultNotifyTimeout = 5 * time.Second
)

// Notifier receives every record that was stored.
type Notifier interface {
	Notify(ctx context.Context, record storage.EventRecord, payload map[string]interface{}, requestID string) error
}

// GitHubHandler accepts GitHub webhook deliveries, normalizes push and pull request
// events and stores the result.
type GitHubHandler struct {
	normalizer  *events.Normalizer
	store       storage.EventStore
	notifier    Notifier
	notifyWait  time.Duration
	logger      *log.Logger
	eventHeader string
	maxBody     int64
	debugEvents bool
}

// Options configures a GitHubHandler.
type Options struct {
	// EventHeader names the header carrying the event category. Defaults to X-GitHub-Event.
	EventHeader string
	MaxBody     int64
	DebugEvents bool
	Notifier    Notifier
	// NotifyTimeout bounds the publish that follows a stored event. Defaults to 5s.
	NotifyTimeout time.Duration
	Logger        *log.Logger
	Normalizer    *events.Normalizer
}

// NewGitHubHandler creates a new GitHubHandler.
func NewGitHubHandler(store storage.EventStore, opts Options) *GitHubHandler {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.EventHeader == "" {
		opts.EventHeader = "X-GitHub-Event"
	}
	if opts.Normalizer == nil {
		opts.Normalizer = events.NewNormalizer()
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	return &GitHubHandler{
		normalizer:  opts.Normalizer,
		store:       store,
		notifier:    opts.Notifier,
		notifyWait:  opts.NotifyTimeout,
		logger:      opts.Logger,
		eventHeader: opts.EventHeader,
		maxBody:     opts.MaxBody,
		debugEvents: opts.DebugEvents,
	}
}

// ServeHTTP handles an incoming HTTP request. Only an oversized, unreadable or
// non-JSON body is reported to the sender; every other outcome is acknowledged
// with success.
func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	reqID := requestID(r)
	w.Header().Set("X-Request-Id", reqID)
	logger := internal.WithRequestID(h.logger, reqID)

	category := r.Header.Get(h.eventHeader)
	internal.IncRequest(category)

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Printf("read body failed: %v", err)
		status := http.StatusInternalServerError
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	if h.debugEvents {
		logDebugEvent(logger, category, rawBody)
	}

	payload, err := events.DecodePayload(rawBody)
	if err != nil {
		logger.Printf("decode body failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.handle(r.Context(), logger, category, payload, reqID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *GitHubHandler) handle(ctx context.Context, logger *log.Logger, category string, payload events.Payload, reqID string) {
	if category == events.CategoryPing {
		logger.Printf("ping received")
		internal.IncDropped("ping")
		return
	}
	record, err := h.normalizer.Normalize(category, payload)
	var fieldErr *events.FieldError
	switch {
	case errors.As(err, &fieldErr):
		logger.Printf("event %s dropped: %v", category, err)
		internal.IncDropped("invalid")
		return
	case errors.Is(err, events.ErrUnsupportedCategory):
		logger.Printf("event dropped: %v", err)
		internal.IncDropped("unsupported")
		return
	case err != nil:
		logger.Printf("event %s dropped: %v", category, err)
		internal.IncDropped("invalid")
		return
	case record == nil:
		if h.debugEvents {
			logger.Printf("event %s ignored", category)
		}
		internal.IncDropped("ignored")
		return
	}

	id, err := h.store.InsertEvent(ctx, *record)
	if err != nil {
		logger.Printf("store %s event failed: %v", record.Action, err)
		internal.IncStoreError("insert")
		return
	}
	record.ID = id
	internal.IncStored(string(record.Action))
	logger.Printf("stored %s event id=%s author=%s", record.Action, id, record.Author)

	if h.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.notifyWait)
	defer cancel()
	if err := h.notifier.Notify(ctx, *record, payload, reqID); err != nil {
		logger.Printf("notify %s failed: %v", id, err)
	}
}

func requestID(r *http.Request) string {
	for _, header := range []string{"X-GitHub-Delivery", "X-Request-Id"} {
		if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
			return value
		}
	}
	return uuid.NewString()
}

func logDebugEvent(logger *log.Logger, category string, body []byte) {
	truncated := false
	if len(body) > debugBodyLimit {
		body = body[:debugBodyLimit]
		truncated = true
	}
	logger.Printf("debug event=%s bytes=%d truncated=%t body=%s", category, len(body), truncated, body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
