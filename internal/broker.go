package internal

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	wmamqp "github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/pkg/kafka"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	wmsql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	stan "github.com/nats-io/stan.go"
)

// SubscriberFactory builds a Watermill subscriber for workers reading notifications.
type SubscriberFactory func(cfg WatermillConfig, consumer ConsumerConfig, logger watermill.LoggerAdapter) (message.Subscriber, func() error, error)

// brokerDriver holds both ends of one notify.watermill driver. A nil subscriber
// means records sent over the driver are consumed outside hookfeed workers.
type brokerDriver struct {
	publisher  PublisherFactory
	subscriber SubscriberFactory
}

var brokerDrivers = map[string]brokerDriver{
	"gochannel": {publisher: goChannelPublisher, subscriber: goChannelSubscriber},
	"kafka":     {publisher: kafkaPublisher, subscriber: kafkaSubscriber},
	"nats":      {publisher: natsPublisher, subscriber: natsSubscriber},
	"amqp":      {publisher: amqpPublisher, subscriber: amqpSubscriber},
	"sql":       {publisher: sqlPublisher, subscriber: sqlSubscriber},
	"http":      {publisher: httpPublisher},
}

// watermillDrivers resolves the configured driver list: lower-cased, deduplicated,
// falling back to Driver and then to gochannel.
func watermillDrivers(cfg WatermillConfig) []string {
	names := cfg.Drivers
	if len(names) == 0 {
		names = []string{cfg.Driver}
	}
	seen := make(map[string]struct{}, len(names))
	drivers := make([]string, 0, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		drivers = append(drivers, key)
	}
	if len(drivers) == 0 {
		drivers = []string{"gochannel"}
	}
	return drivers
}

func newGoChannel(cfg GoChannelConfig, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            cfg.OutputChannelBuffer,
		Persistent:                     cfg.Persistent,
		BlockPublishUntilSubscriberAck: cfg.BlockPublishUntilSubscriberAck,
	}, logger)
}

func goChannelPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	return newGoChannel(cfg.GoChannel, logger), nil, nil
}

// goChannelSubscriber only sees records published in the same process.
func goChannelSubscriber(cfg WatermillConfig, _ ConsumerConfig, logger watermill.LoggerAdapter) (message.Subscriber, func() error, error) {
	return newGoChannel(cfg.GoChannel, logger), nil, nil
}

func kafkaPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil, errors.New("kafka brokers are required")
	}
	pub, err := wmkafka.NewPublisher(cfg.Kafka.Brokers, wmkafka.DefaultMarshaler{}, nil, logger)
	if err != nil {
		return nil, nil, err
	}
	return pub, nil, nil
}

func kafkaSubscriber(cfg WatermillConfig, consumer ConsumerConfig, logger watermill.LoggerAdapter) (message.Subscriber, func() error, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil, errors.New("kafka brokers are required")
	}
	sub, err := wmkafka.NewSubscriber(wmkafka.SubscriberConfig{
		Brokers:       cfg.Kafka.Brokers,
		ConsumerGroup: consumer.Group,
	}, nil, wmkafka.DefaultMarshaler{}, logger)
	if err != nil {
		return nil, nil, err
	}
	return sub, nil, nil
}

func natsOptions(cfg NATSConfig) ([]stan.Option, error) {
	if cfg.ClusterID == "" || cfg.ClientID == "" {
		return nil, errors.New("nats cluster_id and client_id are required")
	}
	if cfg.URL == "" {
		return nil, nil
	}
	return []stan.Option{stan.NatsURL(cfg.URL)}, nil
}

func natsPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	opts, err := natsOptions(cfg.NATS)
	if err != nil {
		return nil, nil, err
	}
	pub, err := wmnats.NewStreamingPublisher(wmnats.StreamingPublisherConfig{
		ClusterID:   cfg.NATS.ClusterID,
		ClientID:    cfg.NATS.ClientID,
		StanOptions: opts,
		Marshaler:   wmnats.GobMarshaler{},
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return pub, nil, nil
}

// natsSubscriber connects as ClientID+ClientIDSuffix since NATS streaming rejects
// a second connection under the publishing server's client id.
func natsSubscriber(cfg WatermillConfig, consumer ConsumerConfig, logger watermill.LoggerAdapter) (message.Subscriber, func() error, error) {
	opts, err := natsOptions(cfg.NATS)
	if err != nil {
		return nil, nil, err
	}
	sub, err := wmnats.NewStreamingSubscriber(wmnats.StreamingSubscriberConfig{
		ClusterID:   cfg.NATS.ClusterID,
		ClientID:    cfg.NATS.ClientID + consumer.ClientIDSuffix,
		DurableName: consumer.Durable,
		StanOptions: opts,
		Unmarshaler: wmnats.GobMarshaler{},
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return sub, nil, nil
}

func amqpConfig(cfg AMQPConfig) (wmamqp.Config, error) {
	if cfg.URL == "" {
		return wmamqp.Config{}, errors.New("amqp url is required")
	}
	switch strings.ToLower(cfg.Mode) {
	case "", "durable_queue":
		return wmamqp.NewDurableQueueConfig(cfg.URL), nil
	case "nondurable_queue":
		return wmamqp.NewNonDurableQueueConfig(cfg.URL), nil
	case "durable_pubsub":
		return wmamqp.NewDurablePubSubConfig(cfg.URL, nil), nil
	case "nondurable_pubsub":
		return wmamqp.NewNonDurablePubSubConfig(cfg.URL, nil), nil
	default:
		return wmamqp.Config{}, fmt.Errorf("unsupported amqp mode: %s", cfg.Mode)
	}
}

func amqpPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	amqpCfg, err := amqpConfig(cfg.AMQP)
	if err != nil {
		return nil, nil, err
	}
	pub, err := wmamqp.NewPublisher(amqpCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return pub, nil, nil
}

func amqpSubscriber(cfg WatermillConfig, _ ConsumerConfig, logger watermill.LoggerAdapter) (message.Subscriber, func() error, error) {
	amqpCfg, err := amqpConfig(cfg.AMQP)
	if err != nil {
		return nil, nil, err
	}
	sub, err := wmamqp.NewSubscriber(amqpCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return sub, nil, nil
}

// sqlDialect pairs the Watermill schema and offsets adapters of one SQL dialect.
type sqlDialect struct {
	schema  wmsql.SchemaAdapter
	offsets wmsql.OffsetsAdapter
}

var sqlDialects = map[string]sqlDialect{
	"postgres":   {schema: wmsql.DefaultPostgreSQLSchema{}, offsets: wmsql.DefaultPostgreSQLOffsetsAdapter{}},
	"postgresql": {schema: wmsql.DefaultPostgreSQLSchema{}, offsets: wmsql.DefaultPostgreSQLOffsetsAdapter{}},
	"mysql":      {schema: wmsql.DefaultMySQLSchema{}, offsets: wmsql.DefaultMySQLOffsetsAdapter{}},
}

// openSQL validates cfg and opens the database/sql handle the messages table lives in.
func openSQL(cfg SQLConfig) (*sql.DB, sqlDialect, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, sqlDialect{}, errors.New("sql driver and dsn are required")
	}
	dialect, ok := sqlDialects[strings.ToLower(cfg.Dialect)]
	if !ok {
		return nil, sqlDialect{}, fmt.Errorf("unsupported sql dialect: %s", cfg.Dialect)
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, sqlDialect{}, err
	}
	return db, dialect, nil
}

func sqlPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	db, dialect, err := openSQL(cfg.SQL)
	if err != nil {
		return nil, nil, err
	}
	pub, err := wmsql.NewPublisher(db, wmsql.PublisherConfig{
		SchemaAdapter:        dialect.schema,
		AutoInitializeSchema: cfg.SQL.AutoInitializeSchema,
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return pub, db.Close, nil
}

func sqlSubscriber(cfg WatermillConfig, consumer ConsumerConfig, logger watermill.LoggerAdapter) (message.Subscriber, func() error, error) {
	db, dialect, err := openSQL(cfg.SQL)
	if err != nil {
		return nil, nil, err
	}
	sub, err := wmsql.NewSubscriber(db, wmsql.SubscriberConfig{
		ConsumerGroup:    consumer.Group,
		SchemaAdapter:    dialect.schema,
		OffsetsAdapter:   dialect.offsets,
		InitializeSchema: cfg.SQL.AutoInitializeSchema,
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return sub, db.Close, nil
}

func httpPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	switch strings.ToLower(cfg.HTTP.Mode) {
	case "topic_url":
	case "base_url":
		if cfg.HTTP.BaseURL == "" {
			return nil, nil, errors.New("http base_url is required for base_url mode")
		}
	default:
		return nil, nil, fmt.Errorf("unsupported http mode: %s", cfg.HTTP.Mode)
	}
	pub, err := wmhttp.NewPublisher(wmhttp.PublisherConfig{
		MarshalMessageFunc: func(topic string, msg *message.Message) (*http.Request, error) {
			target, err := httpTargetURL(cfg.HTTP, topic)
			if err != nil {
				return nil, err
			}
			return wmhttp.DefaultMarshalMessageFunc(target, msg)
		},
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return pub, nil, nil
}

// httpTargetURL maps a topic to the URL a record is POSTed to: the topic itself in
// topic_url mode, or a path under BaseURL in base_url mode.
func httpTargetURL(cfg HTTPConfig, topic string) (string, error) {
	switch strings.ToLower(cfg.Mode) {
	case "topic_url":
		if topic == "" {
			return "", errors.New("http topic url is empty")
		}
		return topic, nil
	case "base_url":
		if cfg.BaseURL == "" {
			return "", errors.New("http base_url is empty")
		}
		base := strings.TrimRight(cfg.BaseURL, "/")
		if topic == "" {
			return base, nil
		}
		return base + "/" + strings.TrimLeft(topic, "/"), nil
	default:
		return "", fmt.Errorf("unsupported http mode: %s", cfg.Mode)
	}
}
