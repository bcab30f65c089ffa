package auditstream

import (
	"context"
	"encoding/json"
	"log"

	"aidledger/internal/audit"
	"aidledger/internal/kafka"
)

// Consumer decodes audit entries from Kafka and hands them to a recorder.
type Consumer struct {
	consumer *kafka.Consumer
}

// NewConsumer wires the recorder through the low-level consumer. Entries
// that fail to decode are logged and skipped, never retried.
func NewConsumer(brokers []string, groupID, topic string, recorder audit.Recorder) (*Consumer, error) {
	llHandler := kafka.HandlerFunc(func(ctx context.Context, value []byte) error {
		var entry audit.Entry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.Printf("audit consumer decode error: %v", err)
			return nil
		}
		return recorder.Record(ctx, entry)
	})
	cons, err := kafka.NewConsumer(brokers, groupID, topic, llHandler)
	if err != nil {
		return nil, err
	}
	return &Consumer{consumer: cons}, nil
}

// Start begins consuming entries.
func (c *Consumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// Close cleans up resources.
func (c *Consumer) Close() error {
	return c.consumer.Close()
}
