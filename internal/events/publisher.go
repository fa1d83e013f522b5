package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
)

const (
	// StreamName holds every marketplace event awaiting archival.
	StreamName = "MARKET_EVENTS"
	// SubjectPrefix namespaces per-asset subjects under the stream.
	SubjectPrefix = "market.events"
)

// Publisher writes marketplace events to NATS JetStream with
// at-least-once delivery for the archival worker.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates the JetStream context and ensures the stream
// exists.
func NewPublisher(natsConn *nats.Conn) (*Publisher, error) {
	js, err := jetstream.New(natsConn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Stream for marketplace event archival",
		Subjects:    []string{SubjectPrefix + ".*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}
	logrus.Infof("events: stream %s ready", StreamName)

	return &Publisher{js: js}, nil
}

// subjectFor routes an event onto its per-asset subject. Mint events
// carry no asset id until the chain assigns one; they travel on a
// fixed token because a trailing empty token is not a valid subject.
func subjectFor(event *Event) string {
	if event.AssetID == "" {
		return SubjectPrefix + ".mint"
	}
	return SubjectPrefix + "." + event.AssetID
}

// Publish persists one event to the stream, waiting for the server
// acknowledgment.
func (p *Publisher) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := subjectFor(event)
	ack, err := p.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}

	logrus.Debugf("events: published %s to %s, seq=%d", event.Type, subject, ack.Sequence)
	return nil
}
