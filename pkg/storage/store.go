package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultListLimit is the number of events returned when no limit is given.
const DefaultListLimit = 50

// ErrUnavailable wraps every failure of the underlying storage engine.
var ErrUnavailable = errors.New("storage unavailable")

// Action discriminates canonical event records.
type Action string

const (
	ActionPush        Action = "push"
	ActionPullRequest Action = "pull_request"
	ActionMerge       Action = "merge"
)

// EventRecord is the canonical, normalized representation of one repository activity.
// Records are written once and never updated.
type EventRecord struct {
	ID               string    `json:"_id"`
	Action           Action    `json:"action"`
	Author           string    `json:"author"`
	FromBranch       string    `json:"from_branch,omitempty"`
	ToBranch         string    `json:"to_branch"`
	Timestamp        string    `json:"timestamp"`
	FormattedMessage string    `json:"formatted_message"`
	CreatedAt        time.Time `json:"created_at"`
}

// EventStore defines the append-only persistence of event records.
type EventStore interface {
	// InsertEvent appends a record and returns the identifier assigned to it.
	InsertEvent(ctx context.Context, record EventRecord) (string, error)
	// ListRecentEvents returns up to limit records, newest timestamp first.
	ListRecentEvents(ctx context.Context, limit int) ([]EventRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

// Unavailable wraps err with ErrUnavailable, keeping the original error in the chain.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrUnavailable, err))
}

// NormalizeLimit maps non-positive limits to DefaultListLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
