package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const eventChannelPrefix = "market_events:"

// Message is one market event received over pub/sub, tagged with the
// asset it concerns.
type Message struct {
	AssetID string
	Payload string
}

// Subscriber listens on the market event channels and forwards raw
// payloads to the broadcast layer.
type Subscriber struct {
	client *redis.Client
	pubsub *redis.PubSub
}

// NewSubscriber connects to Redis for pub/sub consumption.
func NewSubscriber(addr, password string, db int) (*Subscriber, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Subscriber{client: rdb}, nil
}

// SubscribeAll subscribes to events for every asset.
func (s *Subscriber) SubscribeAll(ctx context.Context) {
	s.pubsub = s.client.PSubscribe(ctx, eventChannelPrefix+"*")
}

// Listen forwards incoming events to messageChan until ctx ends.
func (s *Subscriber) Listen(ctx context.Context, messageChan chan<- *Message) error {
	if s.pubsub == nil {
		return fmt.Errorf("not subscribed to any channel")
	}

	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			assetID := strings.TrimPrefix(msg.Channel, eventChannelPrefix)
			if assetID == msg.Channel {
				logrus.Warnf("cache: message on unexpected channel %s", msg.Channel)
				continue
			}
			messageChan <- &Message{AssetID: assetID, Payload: msg.Payload}
		}
	}
}

// Close closes the subscription and the underlying connection.
func (s *Subscriber) Close() error {
	if s.pubsub != nil {
		s.pubsub.Close()
	}
	return s.client.Close()
}
