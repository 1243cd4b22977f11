// Package kafka publishes registry events and listens for snapshot uploads
// over segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/rid-registry/internal/application/ingest"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/pkg/errors"
)

const (
	TopicSnapshotProcessed = "catalogue.snapshot.processed"
	TopicSnapshotUploaded  = "catalogue.snapshot.uploaded"

	EventTypeSnapshotProcessed = "catalogue.snapshot.processed"
	EventTypeSnapshotUploaded  = "catalogue.snapshot.uploaded"

	eventSource   = "ridsync"
	schemaVersion = "1.0"
)

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEventEnvelope wraps payload with a fresh event id.
func NewEventEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal event payload")
	}
	return &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        eventSource,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload:       raw,
	}, nil
}

// DecodeEnvelope parses an envelope and checks its type.
func DecodeEnvelope(data []byte, eventType string) (*EventEnvelope, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "malformed event envelope")
	}
	if env.EventType != eventType {
		return nil, errors.Newf(errors.ErrCodeValidation, "unexpected event type %q", env.EventType)
	}
	return &env, nil
}

// SnapshotUploadedPayload announces a new catalogue export.
type SnapshotUploadedPayload struct {
	Category   string    `json:"category"`
	SourceURI  string    `json:"source_uri"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ─────────────────────────────────────────────────────────────────────────────
// SnapshotPublisher
// ─────────────────────────────────────────────────────────────────────────────

type messagePublisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// SnapshotPublisher emits processed-snapshot events keyed by category.
type SnapshotPublisher struct {
	producer messagePublisher
	topic    string
	logger   logging.Logger
}

// NewSnapshotPublisher builds a publisher writing to topic.
func NewSnapshotPublisher(producer messagePublisher, topic string, logger logging.Logger) *SnapshotPublisher {
	if topic == "" {
		topic = TopicSnapshotProcessed
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SnapshotPublisher{producer: producer, topic: topic, logger: logger}
}

var _ ingest.EventPublisher = (*SnapshotPublisher)(nil)

func (p *SnapshotPublisher) PublishSnapshotProcessed(ctx context.Context, event ingest.SnapshotProcessedEvent) error {
	env, err := NewEventEnvelope(EventTypeSnapshotProcessed, event)
	if err != nil {
		return err
	}
	env.Metadata = map[string]string{"run_id": event.RunID}
	value, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal event envelope")
	}
	msg := &Message{
		Topic: p.topic,
		Key:   []byte(event.Category),
		Value: value,
		Headers: map[string]string{
			"event_type":  EventTypeSnapshotProcessed,
			"snapshot_id": strconv.FormatInt(event.SnapshotID, 10),
		},
		Timestamp: event.ProcessedAt,
	}
	if err := p.producer.Publish(ctx, msg); err != nil {
		return err
	}
	p.logger.Debug("snapshot event published",
		logging.String("event_id", env.EventID),
		logging.Int64("snapshot_id", event.SnapshotID))
	return nil
}
