package worker

import (
	"strings"

	"hookfeed/internal"
)

// NewFromConfig builds a worker that consumes every topic the server publishes to
// under cfg, over the brokers in cfg.Watermill. opts are applied after the
// configured subscriber, topics and concurrency.
func NewFromConfig(cfg internal.NotifyConfig, opts ...Option) (*Worker, error) {
	sub, err := internal.NewSubscriber(cfg)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithSubscriber(sub),
		WithTopics(Topics(cfg)...),
		WithConcurrency(cfg.Consumer.Concurrency),
	}
	return New(append(base, opts...)...), nil
}

// Topics lists the topics records are published to: the emit topic of each rule,
// or cfg.Topic when there are no rules.
func Topics(cfg internal.NotifyConfig) []string {
	topics := make([]string, 0, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		if topic := strings.TrimSpace(rule.Emit); topic != "" {
			topics = append(topics, topic)
		}
	}
	if len(topics) == 0 && strings.TrimSpace(cfg.Topic) != "" {
		topics = append(topics, strings.TrimSpace(cfg.Topic))
	}
	return unique(topics)
}
