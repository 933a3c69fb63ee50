package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// NewSubscriber connects to every notify.watermill driver a worker can read from.
// Drivers without a subscriber (http, riverqueue) are skipped, as are drivers that
// still fail after cfg.Consumer.BuildAttempts tries; it is an error only when none
// remain. Messages from all drivers share one channel per topic and carry the
// driver name in their "driver" metadata.
func NewSubscriber(cfg NotifyConfig) (message.Subscriber, error) {
	logger := watermill.NewStdLogger(false, false)
	consumer := cfg.Consumer

	fan := &fanInSubscriber{buffer: cfg.Watermill.GoChannel.OutputChannelBuffer}
	var buildErr error
	for _, driver := range watermillDrivers(cfg.Watermill) {
		build := brokerDrivers[driver].subscriber
		if build == nil {
			logger.Info("driver has no subscriber, skipping", watermill.LogFields{"driver": driver})
			continue
		}
		sub, closeFn, err := connectSubscriber(consumer, func() (message.Subscriber, func() error, error) {
			return build(cfg.Watermill, consumer, logger)
		})
		if err != nil {
			logger.Error("subscriber init failed, skipping driver", err, watermill.LogFields{"driver": driver})
			buildErr = errors.Join(buildErr, fmt.Errorf("%s: %w", driver, err))
			continue
		}
		fan.subscribers = append(fan.subscribers, driverSubscriber{driver: driver, sub: sub, closeFn: closeFn})
	}
	if len(fan.subscribers) == 0 {
		return nil, errors.Join(errors.New("no subscribers available"), buildErr)
	}
	return fan, nil
}

func connectSubscriber(consumer ConsumerConfig, build func() (message.Subscriber, func() error, error)) (message.Subscriber, func() error, error) {
	attempts := consumer.BuildAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(consumer.BuildRetryDelay())
		}
		sub, closeFn, buildErr := build()
		if buildErr == nil {
			return sub, closeFn, nil
		}
		err = buildErr
	}
	return nil, nil, err
}

type driverSubscriber struct {
	driver  string
	sub     message.Subscriber
	closeFn func() error
}

// fanInSubscriber merges the streams of several drivers.
type fanInSubscriber struct {
	subscribers []driverSubscriber
	buffer      int64
}

func (f *fanInSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	buffer := f.buffer
	if buffer <= 0 {
		buffer = 64
	}
	out := make(chan *message.Message, buffer)

	var wg sync.WaitGroup
	for _, entry := range f.subscribers {
		in, err := entry.sub.Subscribe(ctx, topic)
		if err != nil {
			return nil, fmt.Errorf("subscribe %s on %s: %w", topic, entry.driver, err)
		}
		wg.Add(1)
		go func(driver string, in <-chan *message.Message) {
			defer wg.Done()
			for msg := range in {
				if msg.Metadata == nil {
					msg.Metadata = message.Metadata{}
				}
				msg.Metadata.Set("driver", driver)
				select {
				case out <- msg:
				case <-ctx.Done():
					msg.Nack()
					return
				}
			}
		}(entry.driver, in)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func (f *fanInSubscriber) Close() error {
	var err error
	for _, entry := range f.subscribers {
		err = errors.Join(err, entry.sub.Close())
		if entry.closeFn != nil {
			err = errors.Join(err, entry.closeFn())
		}
	}
	return err
}
