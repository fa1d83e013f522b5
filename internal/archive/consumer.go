package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"

	"github.com/aaronwang/collectible-market/internal/events"
)

// Consumer pulls marketplace events from JetStream and persists them.
// Acks happen only after the database write succeeds, so a crashed
// worker replays instead of losing events.
type Consumer struct {
	consumer jetstream.Consumer
	store    *Store
	handle   jetstream.ConsumeContext
}

// NewConsumer attaches a durable consumer to the market events stream.
func NewConsumer(natsConn *nats.Conn, store *Store) (*Consumer, error) {
	js, err := jetstream.New(natsConn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	consumer, err := js.CreateOrUpdateConsumer(ctx, events.StreamName, jetstream.ConsumerConfig{
		Durable:       "archiver",
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    5,
		FilterSubject: events.SubjectPrefix + ".*",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return &Consumer{consumer: consumer, store: store}, nil
}

// Start begins consuming. It returns immediately; processing happens
// on JetStream's delivery goroutines until Stop is called.
func (c *Consumer) Start() error {
	handle, err := c.consumer.Consume(func(msg jetstream.Msg) {
		if err := c.process(msg.Data()); err != nil {
			logrus.Errorf("archive: failed to process event: %v", err)
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	c.handle = handle
	logrus.Infof("archive: consuming from stream %s", events.StreamName)
	return nil
}

func (c *Consumer) process(data []byte) error {
	var event events.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.store.InsertEvent(ctx, &event); err != nil {
		return err
	}
	// Mint events carry no asset id until the chain assigns one.
	if event.AssetID != "" {
		if err := c.store.TouchAsset(ctx, &event); err != nil {
			return err
		}
	}

	logrus.Debugf("archive: stored %s event %s for nft %s", event.Type, event.EventID, event.AssetID)
	return nil
}

// Stop halts consumption.
func (c *Consumer) Stop() {
	if c.handle != nil {
		c.handle.Stop()
	}
}
