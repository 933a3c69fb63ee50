package internal

import (
	"context"
	"errors"
	"fmt"
	"log"

	"hookfeed/pkg/storage"
)

// Notifier publishes stored event records to the topics selected by its rules,
// or to a single default topic when no rules are configured.
type Notifier struct {
	rules     *RuleEngine
	publisher Publisher
	topic     string
	logger    *log.Logger
}

// NewNotifier builds the rule engine and publishers described by cfg.
func NewNotifier(cfg NotifyConfig, logger *log.Logger) (*Notifier, error) {
	if logger == nil {
		logger = log.Default()
	}
	rules, err := NewRuleEngine(RulesConfig{Rules: cfg.Rules, Strict: cfg.RulesStrict, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("compile rules: %w", err)
	}
	publisher, err := NewPublisher(cfg.Watermill)
	if err != nil {
		return nil, fmt.Errorf("publisher: %w", err)
	}
	return NewNotifierWith(rules, publisher, cfg.Topic, logger), nil
}

// NewNotifierWith assembles a Notifier from already built parts.
func NewNotifierWith(rules *RuleEngine, publisher Publisher, topic string, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{rules: rules, publisher: publisher, topic: topic, logger: logger}
}

// Notify publishes record. payload is the raw webhook body the record came from.
func (n *Notifier) Notify(ctx context.Context, record storage.EventRecord, payload map[string]interface{}, requestID string) error {
	if n == nil || n.publisher == nil {
		return nil
	}
	notification := Notification{Record: record, RequestID: requestID}

	if n.rules.Len() == 0 {
		if n.topic == "" {
			return nil
		}
		return n.publisher.Publish(ctx, n.topic, notification)
	}

	var err error
	for _, match := range n.rules.Evaluate(recordParams(record, payload)) {
		if publishErr := n.publisher.PublishForDrivers(ctx, match.Topic, notification, match.Drivers); publishErr != nil {
			err = errors.Join(err, fmt.Errorf("publish %s: %w", match.Topic, publishErr))
		}
	}
	return err
}

// Close releases the publishers.
func (n *Notifier) Close() error {
	if n == nil || n.publisher == nil {
		return nil
	}
	return n.publisher.Close()
}

// recordParams exposes record fields at the top level and the flattened payload
// under "payload.".
func recordParams(record storage.EventRecord, payload map[string]interface{}) map[string]interface{} {
	params := Flatten("payload", payload)
	params["id"] = record.ID
	params["action"] = string(record.Action)
	params["author"] = record.Author
	params["to_branch"] = record.ToBranch
	params["timestamp"] = record.Timestamp
	if record.FromBranch != "" {
		params["from_branch"] = record.FromBranch
	}
	return params
}
