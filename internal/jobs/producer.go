// Package jobs moves CSV ingestion work through Kafka: the API enqueues
// one job per accepted upload and the worker drains the topic.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// IngestJob is the wire payload for one queued CSV batch.
type IngestJob struct {
	BatchID string `json:"batch_id"`
	OwnerID string `json:"owner_id"`
}

// Producer publishes ingest jobs to a single topic. Keys are batch ids
// so redeliveries of the same batch land on the same partition.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a Producer for the given brokers and topic.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			Async:        false,
		},
	}
}

// Enqueue publishes one job.
func (p *Producer) Enqueue(ctx context.Context, job IngestJob) error {
	value, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal ingest job: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.BatchID),
		Value: value,
	})
}

// Close releases the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
