// Package emitters publishes pipeline outcomes to Kafka for downstream
// consumers (SIEMs, case-management, analytics).
package emitters

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/chainguardian-io/chainguardian/internal/pipeline"
)

// Event types carried on the alert topic.
const (
	EventTransactionProcessed = "transaction.processed"
	EventAlertRaised          = "alert.raised"
)

// Event is the Kafka message envelope. Messages are keyed by txHash so
// all events for one transaction land on the same partition.
type Event struct {
	Type        string                      `json:"type"`
	TxHash      string                      `json:"txHash"`
	Transaction *pipeline.TransactionRecord `json:"transaction,omitempty"`
	Alert       *pipeline.AlertRecord       `json:"alert,omitempty"`
}

// KafkaEmitter writes pipeline events to a Kafka topic. Satisfies
// pipeline.Events; emission failures are logged, never propagated, since
// fan-out is best effort relative to the durable store write.
type KafkaEmitter struct {
	writer *kafka.Writer
	logger *slog.Logger
	mu     sync.Mutex
}

// NewKafkaEmitter creates an emitter for the given brokers and topic.
// The writer runs in async mode: WriteMessages enqueues and returns, so
// intake latency never depends on broker health. Delivery failures
// surface through the completion callback.
func NewKafkaEmitter(brokers []string, topic string, logger *slog.Logger) *KafkaEmitter {
	return &KafkaEmitter{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
			Async:    true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					logger.Error("kafka delivery failed", "count", len(messages), "error", err)
				}
			},
		},
		logger: logger,
	}
}

// TransactionProcessed publishes a transaction.processed event.
func (k *KafkaEmitter) TransactionProcessed(rec *pipeline.TransactionRecord) {
	k.emit(Event{
		Type:        EventTransactionProcessed,
		TxHash:      rec.TxHash,
		Transaction: rec,
	})
}

// AlertRaised publishes an alert.raised event.
func (k *KafkaEmitter) AlertRaised(rec *pipeline.AlertRecord) {
	k.emit(Event{
		Type:   EventAlertRaised,
		TxHash: rec.TxHash,
		Alert:  rec,
	})
}

func (k *KafkaEmitter) emit(event Event) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer == nil {
		return
	}

	value, err := json.Marshal(event)
	if err != nil {
		k.logger.Error("marshal kafka event", "type", event.Type, "error", err)
		return
	}

	// Async writer: this enqueues without waiting for broker acks.
	err = k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(event.TxHash),
		Value: value,
	})
	if err != nil {
		k.logger.Error("enqueue kafka event", "type", event.Type, "tx_hash", event.TxHash, "error", err)
		return
	}

	k.logger.Debug("kafka event emitted", "type", event.Type, "tx_hash", event.TxHash)
}

// Close flushes any queued messages and closes the writer.
func (k *KafkaEmitter) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer == nil {
		return nil
	}
	err := k.writer.Close()
	k.writer = nil
	if err != nil {
		return fmt.Errorf("emitters: close kafka writer: %w", err)
	}
	return nil
}
