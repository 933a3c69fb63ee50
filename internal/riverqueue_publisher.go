package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// riverQueuePublisher enqueues stored events as jobs in a River job table.
type riverQueuePublisher struct {
	db    *sql.DB
	cfg   RiverQueueConfig
	query string
}

func newRiverQueuePublisher(cfg RiverQueueConfig) (*riverQueuePublisher, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("riverqueue dsn is required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = "river_job"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("riverqueue table name is invalid: %q", table)
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &riverQueuePublisher{db: db, cfg: cfg, query: riverInsertQuery(table)}, nil
}

func riverInsertQuery(table string) string {
	return fmt.Sprintf(
		`INSERT INTO %s (args, kind, max_attempts, metadata, priority, queue, scheduled_at, tags)
VALUES ($1, $2, $3, $4, $5, $6, now(), $7)`,
		table,
	)
}

// Publish inserts one job whose args are the stored record.
func (p *riverQueuePublisher) Publish(ctx context.Context, topic string, n Notification) error {
	args, err := json.Marshal(n.Record)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(map[string]string{
		"action":     string(n.Record.Action),
		"topic":      topic,
		"request_id": n.RequestID,
	})
	if err != nil {
		return err
	}

	priority := p.cfg.Priority
	if priority <= 0 {
		priority = 1
	}
	_, err = p.db.ExecContext(
		ctx,
		p.query,
		string(args),
		p.cfg.Kind,
		p.cfg.MaxAttempts,
		string(metadata),
		priority,
		p.cfg.Queue,
		pq.Array(p.cfg.Tags),
	)
	return err
}

func (p *riverQueuePublisher) PublishForDrivers(ctx context.Context, topic string, n Notification, drivers []string) error {
	return p.Publish(ctx, topic, n)
}

func (p *riverQueuePublisher) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
