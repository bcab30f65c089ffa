// Package auditstream moves audit entries over Kafka: the API publishes
// fire-and-forget, the worker consumes and persists.
package auditstream

import (
	"context"
	"encoding/json"
	"time"

	"aidledger/internal/audit"
	"aidledger/internal/kafka"
)

// Publisher converts audit entries into Kafka messages. It implements
// audit.Recorder so the domain services stay unaware of the transport.
type Publisher struct {
	producer *kafka.Producer
}

// NewPublisher constructs a Publisher.
func NewPublisher(producer *kafka.Producer) *Publisher {
	return &Publisher{producer: producer}
}

// Record pushes an audit entry onto Kafka, keyed by entity id so entries for
// one entity keep their order.
func (p *Publisher) Record(ctx context.Context, e audit.Entry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.producer.Send(ctx, e.EntityID, payload)
}
