package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"hookfeed/pkg/storage"

	"github.com/go-playground/webhooks/v6/github"
)

// ErrUnsupportedCategory is returned for event categories without a handler.
var ErrUnsupportedCategory = errors.New("unsupported event category")

// Categories handled by the normalizer, as sent in the X-GitHub-Event header.
const (
	CategoryPush        = string(github.PushEvent)
	CategoryPullRequest = string(github.PullRequestEvent)
	// CategoryPing is sent once when a webhook is created. It carries no activity.
	CategoryPing = string(github.PingEvent)
)

// Normalizer turns raw webhook payloads into canonical event records.
type Normalizer struct {
	Now func() time.Time
}

// NewNormalizer returns a Normalizer stamping records with the current UTC time.
func NewNormalizer() *Normalizer {
	return &Normalizer{Now: func() time.Time { return time.Now().UTC() }}
}

// Normalize routes payload to the handler for category.
// A nil record with a nil error means the event was recognized and intentionally ignored.
func (n *Normalizer) Normalize(category string, payload Payload) (*storage.EventRecord, error) {
	switch category {
	case CategoryPush:
		return n.Push(payload)
	case CategoryPullRequest:
		return n.PullRequest(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCategory, category)
	}
}

type pushFields struct {
	Author    string
	Ref       string
	Timestamp string
}

// Push normalizes a push event.
func (n *Normalizer) Push(payload Payload) (*storage.EventRecord, error) {
	r := fieldReader{payload: payload}
	fields := pushFields{
		Author:    r.str("pusher.name"),
		Ref:       r.str("ref"),
		Timestamp: r.str("head_commit.timestamp"),
	}
	if r.err != nil {
		return nil, r.err
	}

	branch := BranchFromRef(fields.Ref)
	return &storage.EventRecord{
		Action:    storage.ActionPush,
		Author:    fields.Author,
		ToBranch:  branch,
		Timestamp: fields.Timestamp,
		FormattedMessage: fmt.Sprintf(`"%s" pushed to "%s" on %s`,
			fields.Author, branch, FormatTimestamp(fields.Timestamp)),
		CreatedAt: n.now(),
	}, nil
}

type pullRequestFields struct {
	Author     string
	FromBranch string
	ToBranch   string
	Timestamp  string
}

// PullRequest normalizes a pull_request event. Only "opened" and merged "closed"
// actions produce a record.
func (n *Normalizer) PullRequest(payload Payload) (*storage.EventRecord, error) {
	action, err := payload.String("action")
	if err != nil {
		return nil, err
	}

	r := fieldReader{payload: payload}
	switch action {
	case "opened":
		fields := pullRequestFields{
			Author:     r.str("pull_request.user.login"),
			FromBranch: r.str("pull_request.head.ref"),
			ToBranch:   r.str("pull_request.base.ref"),
			Timestamp:  r.str("pull_request.created_at"),
		}
		if r.err != nil {
			return nil, r.err
		}
		return n.pullRequestRecord(storage.ActionPullRequest, fields,
			`"%s" submitted a pull request from "%s" to "%s" on %s`), nil
	case "closed":
		if merged := r.boolean("pull_request.merged"); r.err != nil || !merged {
			return nil, r.err
		}
		fields := pullRequestFields{
			Author:     r.str("pull_request.merged_by.login"),
			FromBranch: r.str("pull_request.head.ref"),
			ToBranch:   r.str("pull_request.base.ref"),
			Timestamp:  r.str("pull_request.merged_at"),
		}
		if r.err != nil {
			return nil, r.err
		}
		return n.pullRequestRecord(storage.ActionMerge, fields,
			`"%s" merged branch "%s" to "%s" on %s`), nil
	default:
		return nil, nil
	}
}

func (n *Normalizer) pullRequestRecord(action storage.Action, fields pullRequestFields, template string) *storage.EventRecord {
	return &storage.EventRecord{
		Action:     action,
		Author:     fields.Author,
		FromBranch: fields.FromBranch,
		ToBranch:   fields.ToBranch,
		Timestamp:  fields.Timestamp,
		FormattedMessage: fmt.Sprintf(template,
			fields.Author, fields.FromBranch, fields.ToBranch, FormatTimestamp(fields.Timestamp)),
		CreatedAt: n.now(),
	}
}

// BranchFromRef keeps the last path segment of a git ref, so "refs/heads/feature/login"
// becomes "login".
func BranchFromRef(ref string) string {
	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}

func (n *Normalizer) now() time.Time {
	if n == nil || n.Now == nil {
		return time.Now().UTC()
	}
	return n.Now()
}
