package notify

import (
	"context"
	"encoding/json"
	"log"

	"aidledger/internal/queue"
)

// Processor delivers notification jobs. Delivery is mocked: real provider
// integration (SendGrid, Twilio) sits behind the same job contract.
type Processor struct{}

// NewProcessor builds the worker-side deliverer.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process handles one notification job.
func (p *Processor) Process(_ context.Context, job *queue.Job) error {
	var msg Message
	if err := json.Unmarshal(job.Payload, &msg); err != nil {
		return err
	}
	log.Printf("notify: delivering %s to %s (job %s, attempt %d of %d)",
		msg.Type, msg.Recipient, job.ID, job.Attempt+1, job.MaxAttempts)
	return nil
}
