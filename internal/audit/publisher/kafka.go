// Package publisher fans audit entries out to Kafka so downstream compliance
// consumers can build their own materialized views. The postgres store stays
// the system of record; this sink is best-effort.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"civreg/internal/audit"
)

// Kafka publishes audit entries to a single topic, keyed by entity id so one
// entity's trail stays ordered within a partition.
type Kafka struct {
	client *kgo.Client
	topic  string
}

// NewKafka connects to the given brokers. Returns nil (no publisher) when the
// broker list is empty, so wiring can stay unconditional.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProduceRequestTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Kafka{client: client, topic: topic}, nil
}

// wireEntry is the JSON shape published to Kafka.
type wireEntry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	ActorKind  string         `json:"actor_kind"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	Metadata   audit.Metadata `json:"metadata"`
	RecordedAt string         `json:"recorded_at"`
}

func (k *Kafka) Publish(ctx context.Context, entry audit.Entry) error {
	payload, err := json.Marshal(wireEntry{
		ID:         entry.ID.String(),
		Action:     string(entry.Action),
		EntityType: string(entry.EntityType),
		EntityID:   entry.EntityID,
		ActorID:    entry.ActorID.String(),
		ActorKind:  string(entry.ActorKind),
		Before:     entry.Before,
		After:      entry.After,
		Metadata:   entry.Metadata,
		RecordedAt: entry.RecordedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(entry.EntityID),
		Value: payload,
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit entry: %w", err)
	}
	return nil
}

// Close flushes and shuts down the underlying client.
func (k *Kafka) Close() {
	k.client.Close()
}
