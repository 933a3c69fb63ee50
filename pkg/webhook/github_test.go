package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"hookfeed/pkg/events"
	"hookfeed/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	records   []storage.EventRecord
	insertErr error
}

func (s *fakeStore) InsertEvent(ctx context.Context, record storage.EventRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return "", storage.Unavailable("insert event", s.insertErr)
	}
	record.ID = "id-" + string(rune('a'+len(s.records)))
	s.records = append(s.records, record)
	return record.ID, nil
}

func (s *fakeStore) ListRecentEvents(ctx context.Context, limit int) ([]storage.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.EventRecord(nil), s.records...), nil
}

func (s *fakeStore) Ping(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                   { return nil }

type fakeNotifier struct {
	records   []storage.EventRecord
	requestID string
	err       error
}

func (n *fakeNotifier) Notify(ctx context.Context, record storage.EventRecord, payload map[string]interface{}, requestID string) error {
	n.records = append(n.records, record)
	n.requestID = requestID
	return n.err
}

func newTestHandler(store storage.EventStore, notifier Notifier) *GitHubHandler {
	return NewGitHubHandler(store, Options{
		Notifier:   notifier,
		Logger:     log.New(io.Discard, "", 0),
		Normalizer: &events.Normalizer{Now: func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }},
	})
}

func deliver(t *testing.T, h http.Handler, category, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if category != "" {
		req.Header.Set("X-GitHub-Event", category)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const pushBody = `{"pusher":{"name":"alice"},"ref":"refs/heads/main","head_commit":{"timestamp":"2024-01-15T10:30:00Z"}}`

func TestPushIsStored(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	rec := deliver(t, newTestHandler(store, notifier), "push", pushBody, map[string]string{"X-GitHub-Delivery": "delivery-1"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "success"}, decodeBody(t, rec))
	assert.Equal(t, "delivery-1", rec.Header().Get("X-Request-Id"))

	require.Len(t, store.records, 1)
	assert.Equal(t, `"alice" pushed to "main" on 15 January 2024 - 10:30 AM UTC`, store.records[0].FormattedMessage)
	assert.Equal(t, storage.ActionPush, store.records[0].Action)

	require.Len(t, notifier.records, 1)
	assert.Equal(t, "id-a", notifier.records[0].ID)
	assert.Equal(t, "delivery-1", notifier.requestID)
}

func TestMergedPullRequestIsStored(t *testing.T) {
	store := &fakeStore{}
	body := `{"action":"closed","pull_request":{"head":{"ref":"feature-x"},"base":{"ref":"main"},"merged":true,"merged_at":"2024-01-17T09:00:00Z","merged_by":{"login":"carol"}}}`
	rec := deliver(t, newTestHandler(store, nil), "pull_request", body, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.records, 1)
	assert.Equal(t, storage.ActionMerge, store.records[0].Action)
	assert.Equal(t, `"carol" merged branch "feature-x" to "main" on 17 January 2024 - 09:00 AM UTC`, store.records[0].FormattedMessage)
}

func TestDroppedEventsStillSucceed(t *testing.T) {
	cases := map[string]struct {
		category string
		body     string
	}{
		"unsupported category": {category: "issues", body: `{"action":"opened"}`},
		"missing category":     {category: "", body: pushBody},
		"ignored action":       {category: "pull_request", body: `{"action":"synchronize"}`},
		"closed unmerged":      {category: "pull_request", body: `{"action":"closed","pull_request":{"merged":false}}`},
		"missing field":        {category: "push", body: `{"ref":"refs/heads/main"}`},
		"non-object body":      {category: "push", body: `[1,2,3]`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := &fakeStore{}
			notifier := &fakeNotifier{}
			rec := deliver(t, newTestHandler(store, notifier), tc.category, tc.body, nil)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, map[string]string{"status": "success"}, decodeBody(t, rec))
			assert.Empty(t, store.records)
			assert.Empty(t, notifier.records)
		})
	}
}

func TestMalformedBodyIsError(t *testing.T) {
	store := &fakeStore{}
	rec := deliver(t, newTestHandler(store, nil), "push", `{"pusher":`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["error"])
	assert.Empty(t, store.records)
}

func TestStoreFailureStillSucceeds(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("connection refused")}
	notifier := &fakeNotifier{}
	rec := deliver(t, newTestHandler(store, notifier), "push", pushBody, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "success"}, decodeBody(t, rec))
	assert.Empty(t, notifier.records)
}

func TestNotifyFailureStillSucceeds(t *testing.T) {
	store := &fakeStore{}
	rec := deliver(t, newTestHandler(store, &fakeNotifier{err: errors.New("broker down")}), "push", pushBody, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, store.records, 1)
}

func TestRequestIDIsGenerated(t *testing.T) {
	rec := deliver(t, newTestHandler(&fakeStore{}, nil), "push", pushBody, nil)
	assert.Len(t, rec.Header().Get("X-Request-Id"), 36)

	rec = deliver(t, newTestHandler(&fakeStore{}, nil), "push", pushBody, map[string]string{"X-Request-Id": "caller-id"})
	assert.Equal(t, "caller-id", rec.Header().Get("X-Request-Id"))
}

func TestOnlyPostIsAccepted(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	newTestHandler(&fakeStore{}, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCustomEventHeader(t *testing.T) {
	store := &fakeStore{}
	h := NewGitHubHandler(store, Options{EventHeader: "X-Event-Key", Logger: log.New(io.Discard, "", 0)})
	rec := deliver(t, h, "", pushBody, map[string]string{"X-Event-Key": "push"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, store.records, 1)
}

func TestBodyLimit(t *testing.T) {
	store := &fakeStore{}
	h := NewGitHubHandler(store, Options{MaxBody: 16, Logger: log.New(io.Discard, "", 0)})
	rec := deliver(t, h, "push", pushBody, nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["error"])
	assert.Empty(t, store.records)
}

type failingBody struct{}

func (failingBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestUnreadableBodyIsError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhook", failingBody{})
	req.Header.Set("X-GitHub-Event", "push")
	rec := httptest.NewRecorder()
	newTestHandler(&fakeStore{}, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// blockingNotifier waits for its context to end, like a publish to an unreachable broker.
type blockingNotifier struct {
	deadline bool
}

func (n *blockingNotifier) Notify(ctx context.Context, record storage.EventRecord, payload map[string]interface{}, requestID string) error {
	_, n.deadline = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

func TestNotifyIsBounded(t *testing.T) {
	store := &fakeStore{}
	notifier := &blockingNotifier{}
	h := NewGitHubHandler(store, Options{
		Notifier:      notifier,
		NotifyTimeout: 20 * time.Millisecond,
		Logger:        log.New(io.Discard, "", 0),
	})

	start := time.Now()
	rec := deliver(t, h, "push", pushBody, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, notifier.deadline)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, store.records, 1)
}

func TestPingIsAcknowledged(t *testing.T) {
	store := &fakeStore{}
	rec := deliver(t, newTestHandler(store, nil), "ping", `{"zen":"Keep it logically awesome."}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "success"}, decodeBody(t, rec))
	assert.Empty(t, store.records)
}
