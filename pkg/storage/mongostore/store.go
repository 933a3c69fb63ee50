package mongostore

import (
	"context"
	"errors"
	"time"

	"hookfeed/pkg/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config describes the MongoDB collection holding event records.
type Config struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
	AutoMigrate    bool
}

// Store implements storage.EventStore on a MongoDB collection.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type document struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Action           string             `bson:"action"`
	Author           string             `bson:"author"`
	FromBranch       string             `bson:"from_branch,omitempty"`
	ToBranch         string             `bson:"to_branch"`
	Timestamp        string             `bson:"timestamp"`
	FormattedMessage string             `bson:"formatted_message"`
	CreatedAt        time.Time          `bson:"created_at"`
}

// Open connects to MongoDB. The returned client is shared by all requests.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongodb uri is required")
	}
	database := cfg.Database
	if database == "" {
		database = "webhook_db"
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "github_events"
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
		opts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, storage.Unavailable("connect", err)
	}

	store := &Store{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}
	if cfg.AutoMigrate {
		if err := store.migrate(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, storage.Unavailable("create index", err)
		}
	}
	return store, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks that the primary answers.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return storage.Unavailable("ping", errors.New("store is not initialized"))
	}
	return storage.Unavailable("ping", s.client.Ping(ctx, nil))
}

// InsertEvent appends a record and returns its ObjectID as hex.
func (s *Store) InsertEvent(ctx context.Context, record storage.EventRecord) (string, error) {
	if s == nil || s.collection == nil {
		return "", storage.Unavailable("insert event", errors.New("store is not initialized"))
	}
	doc := toDocument(record)
	doc.ID = primitive.NewObjectID()
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return "", storage.Unavailable("insert event", err)
	}
	return doc.ID.Hex(), nil
}

// ListRecentEvents returns up to limit records ordered by timestamp, newest first.
// ObjectIDs grow with insertion, so sorting on _id second keeps ties in reverse
// insertion order.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]storage.EventRecord, error) {
	if s == nil || s.collection == nil {
		return nil, storage.Unavailable("list events", errors.New("store is not initialized"))
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(storage.NormalizeLimit(limit)))
	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, storage.Unavailable("list events", err)
	}
	defer cursor.Close(ctx)

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storage.Unavailable("list events", err)
	}
	records := make([]storage.EventRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, fromDocument(doc))
	}
	return records, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}},
		Options: options.Index().SetName("timestamp_desc"),
	})
	return err
}

func toDocument(record storage.EventRecord) document {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	doc := document{
		Action:           string(record.Action),
		Author:           record.Author,
		FromBranch:       record.FromBranch,
		ToBranch:         record.ToBranch,
		Timestamp:        record.Timestamp,
		FormattedMessage: record.FormattedMessage,
		CreatedAt:        createdAt,
	}
	if id, err := primitive.ObjectIDFromHex(record.ID); err == nil {
		doc.ID = id
	}
	return doc
}

func fromDocument(doc document) storage.EventRecord {
	record := storage.EventRecord{
		Action:           storage.Action(doc.Action),
		Author:           doc.Author,
		FromBranch:       doc.FromBranch,
		ToBranch:         doc.ToBranch,
		Timestamp:        doc.Timestamp,
		FormattedMessage: doc.FormattedMessage,
		CreatedAt:        doc.CreatedAt.UTC(),
	}
	if !doc.ID.IsZero() {
		record.ID = doc.ID.Hex()
	}
	return record
}
