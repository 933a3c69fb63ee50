package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hookfeed/pkg/storage"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Config selects the SQL backend for the events table.
type Config struct {
	Driver      string
	DSN         string
	Table       string
	AutoMigrate bool
}

// Store implements storage.EventStore on top of GORM.
type Store struct {
	db    *gorm.DB
	table string
}

type row struct {
	ID               uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Action           string    `gorm:"column:action;size:32;not null"`
	Author           string    `gorm:"column:author;size:255;not null"`
	FromBranch       string    `gorm:"column:from_branch;size:255"`
	ToBranch         string    `gorm:"column:to_branch;size:255;not null"`
	Timestamp        string    `gorm:"column:timestamp;size:64;not null;index"`
	FormattedMessage string    `gorm:"column:formatted_message;type:text;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`
}

// Open creates a GORM-backed event store.
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := NormalizeDriver(cfg.Driver)
	if driver == "" {
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}

	gormDB, err := openGorm(driver, cfg.DSN)
	if err != nil {
		return nil, storage.Unavailable("open", err)
	}

	table := cfg.Table
	if table == "" {
		table = "github_events"
	}
	store := &Store{db: gormDB, table: table}
	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			_ = store.Close()
			return nil, storage.Unavailable("migrate", err)
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return storage.Unavailable("ping", errors.New("store is not initialized"))
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return storage.Unavailable("ping", err)
	}
	return storage.Unavailable("ping", sqlDB.PingContext(ctx))
}

// InsertEvent appends a record and returns its row id.
func (s *Store) InsertEvent(ctx context.Context, record storage.EventRecord) (string, error) {
	if s == nil || s.db == nil {
		return "", storage.Unavailable("insert event", errors.New("store is not initialized"))
	}
	data := toRow(record)
	if err := s.tableDB().WithContext(ctx).Create(&data).Error; err != nil {
		return "", storage.Unavailable("insert event", err)
	}
	return strconv.FormatUint(data.ID, 10), nil
}

// ListRecentEvents returns up to limit records ordered by timestamp, newest first.
// Equal timestamps come back in reverse insertion order.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]storage.EventRecord, error) {
	if s == nil || s.db == nil {
		return nil, storage.Unavailable("list events", errors.New("store is not initialized"))
	}
	var data []row
	err := s.tableDB().
		WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Limit(storage.NormalizeLimit(limit)).
		Find(&data).Error
	if err != nil {
		return nil, storage.Unavailable("list events", err)
	}
	records := make([]storage.EventRecord, 0, len(data))
	for _, item := range data {
		records = append(records, fromRow(item))
	}
	return records, nil
}

func (s *Store) migrate() error {
	return s.tableDB().AutoMigrate(&row{})
}

func (s *Store) tableDB() *gorm.DB {
	return s.db.Table(s.table)
}

func toRow(record storage.EventRecord) row {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return row{
		Action:           string(record.Action),
		Author:           record.Author,
		FromBranch:       record.FromBranch,
		ToBranch:         record.ToBranch,
		Timestamp:        record.Timestamp,
		FormattedMessage: record.FormattedMessage,
		CreatedAt:        createdAt,
	}
}

func fromRow(data row) storage.EventRecord {
	return storage.EventRecord{
		ID:               strconv.FormatUint(data.ID, 10),
		Action:           storage.Action(data.Action),
		Author:           data.Author,
		FromBranch:       data.FromBranch,
		ToBranch:         data.ToBranch,
		Timestamp:        data.Timestamp,
		FormattedMessage: data.FormattedMessage,
		CreatedAt:        data.CreatedAt.UTC(),
	}
}

// NormalizeDriver maps driver aliases to the names understood by openGorm.
// It returns "" for anything GORM cannot serve.
func NormalizeDriver(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
