package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hookfeed/pkg/storage"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Notification is a stored event record handed to publishers.
type Notification struct {
	Record    storage.EventRecord
	RequestID string
}

// Publisher sends notifications to one or more message brokers.
type Publisher interface {
	Publish(ctx context.Context, topic string, n Notification) error
	PublishForDrivers(ctx context.Context, topic string, n Notification, drivers []string) error
	Close() error
}

type watermillPublisher struct {
	publisher message.Publisher
	closeFn   func() error
}

// PublisherFactory builds a Watermill publisher for a custom driver name.
type PublisherFactory func(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error)

var publisherFactories = map[string]PublisherFactory{}

// RegisterPublisherDriver makes a custom driver name available to notify.watermill.
func RegisterPublisherDriver(name string, factory PublisherFactory) {
	if name == "" || factory == nil {
		return
	}
	publisherFactories[strings.ToLower(name)] = factory
}

// NewPublisher builds one publisher per configured driver. Drivers that fail to
// initialize are logged and skipped; it is an error only when none succeed.
func NewPublisher(cfg WatermillConfig) (Publisher, error) {
	logger := watermill.NewStdLogger(false, false)

	drivers := watermillDrivers(cfg)
	pubs := make(map[string]Publisher, len(drivers))
	builtDrivers := make([]string, 0, len(drivers))
	var buildErr error
	for _, key := range drivers {
		pub, err := newSinglePublisher(cfg, key, logger)
		if err != nil {
			logger.Error("publisher init failed, skipping driver", err, watermill.LogFields{
				"driver": key,
			})
			buildErr = errors.Join(buildErr, fmt.Errorf("%s: %w", key, err))
			continue
		}
		pubs[key] = pub
		builtDrivers = append(builtDrivers, key)
	}
	if len(pubs) == 0 {
		return nil, errors.Join(errors.New("no publishers available"), buildErr)
	}
	return &publisherMux{publishers: pubs, defaultDrivers: builtDrivers}, nil
}

// newSinglePublisher prefers a registered factory over the built-in driver of the
// same name, so tests and embedders can swap a broker out.
func newSinglePublisher(cfg WatermillConfig, driver string, logger watermill.LoggerAdapter) (Publisher, error) {
	if driver == "riverqueue" {
		return newRiverQueuePublisher(cfg.RiverQueue)
	}
	build, ok := publisherFactories[driver]
	if !ok {
		build = brokerDrivers[driver].publisher
	}
	if build == nil {
		return nil, fmt.Errorf("unsupported watermill driver: %s", driver)
	}
	pub, closeFn, err := build(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &watermillPublisher{publisher: pub, closeFn: closeFn}, nil
}

// newMessage encodes the record as the message body; routing fields go to metadata.
func newMessage(n Notification) (*message.Message, error) {
	payload, err := json.Marshal(n.Record)
	if err != nil {
		return nil, err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("action", string(n.Record.Action))
	msg.Metadata.Set("author", n.Record.Author)
	if n.Record.ID != "" {
		msg.Metadata.Set("event_id", n.Record.ID)
	}
	if n.RequestID != "" {
		msg.Metadata.Set("request_id", n.RequestID)
	}
	return msg, nil
}

func (w *watermillPublisher) Publish(ctx context.Context, topic string, n Notification) error {
	msg, err := newMessage(n)
	if err != nil {
		return err
	}
	msg.SetContext(ctx)
	return w.publisher.Publish(topic, msg)
}

func (w *watermillPublisher) PublishForDrivers(ctx context.Context, topic string, n Notification, drivers []string) error {
	return w.Publish(ctx, topic, n)
}

func (w *watermillPublisher) Close() error {
	if w.publisher == nil {
		return nil
	}
	err := w.publisher.Close()
	if w.closeFn != nil {
		return errors.Join(err, w.closeFn())
	}
	return err
}

type publisherMux struct {
	publishers     map[string]Publisher
	defaultDrivers []string
}

func (m *publisherMux) Publish(ctx context.Context, topic string, n Notification) error {
	return m.PublishForDrivers(ctx, topic, n, nil)
}

func (m *publisherMux) PublishForDrivers(ctx context.Context, topic string, n Notification, drivers []string) error {
	targets := drivers
	if len(targets) == 0 {
		targets = m.defaultDrivers
	}

	var err error
	for _, driver := range targets {
		key := strings.ToLower(driver)
		pub, ok := m.publishers[key]
		if !ok {
			err = errors.Join(err, fmt.Errorf("unknown driver %s", driver))
			continue
		}
		if publishErr := pub.Publish(ctx, topic, n); publishErr != nil {
			IncPublishError(key)
			err = errors.Join(err, fmt.Errorf("%s: %w", key, publishErr))
		}
	}
	return err
}

func (m *publisherMux) Close() error {
	var err error
	for _, pub := range m.publishers {
		err = errors.Join(err, pub.Close())
	}
	return err
}
