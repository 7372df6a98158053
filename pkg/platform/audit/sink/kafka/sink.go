// Package kafka fans sealed audit records out to a Kafka topic for
// downstream compliance consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"medfayda/internal/platform/kafka/producer"
	audit "medfayda/pkg/platform/audit"
)

// DefaultTopic receives audit records when no topic is configured.
const DefaultTopic = "medfayda.audit"

// Producer is the subset of the Kafka producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Sink publishes each record as JSON keyed by the subject patient, so one
// patient's trail stays ordered within a partition.
type Sink struct {
	producer Producer
	topic    string
}

func New(p Producer, topic string) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Sink{producer: p, topic: topic}
}

func (s *Sink) Publish(ctx context.Context, r audit.Record) error {
	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	key := r.SubjectPatientID
	if key == "" {
		key = r.ActorID
	}
	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(key),
		Value: value,
		Headers: map[string]string{
			"record_id": r.ID,
			"action":    r.Action.String(),
			"hash":      r.Hash,
		},
	})
}
