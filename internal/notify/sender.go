// Package notify decouples notification delivery from request handling:
// senders enqueue durable jobs, the worker's processor delivers them.
package notify

import (
	"context"
	"time"

	"aidledger/internal/queue"
)

// QueueName is the durable queue carrying notification jobs.
const QueueName = "notifications"

// Queue job types.
const (
	JobSendEmail = "send-email"
	JobSendSms   = "send-sms"
)

// Message is the payload of a notification job.
type Message struct {
	Type      string `json:"type"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

var enqueueOptions = queue.Options{
	Attempts: 3,
	Backoff:  queue.BackoffExponential,
	Delay:    5 * time.Second,
}

// Sender enqueues notification jobs. Callers get a job handle back, not a
// delivery confirmation.
type Sender struct {
	queue *queue.Queue
}

// NewSender wires the producer over the shared queue.
func NewSender(q *queue.Queue) *Sender {
	return &Sender{queue: q}
}

// SendEmail enqueues an email notification.
func (s *Sender) SendEmail(ctx context.Context, to, subject, body string) (*queue.Job, error) {
	return s.queue.Enqueue(ctx, QueueName, JobSendEmail, Message{
		Type:      "email",
		Recipient: to,
		Subject:   subject,
		Body:      body,
		Timestamp: time.Now().UnixMilli(),
	}, enqueueOptions)
}

// SendSms enqueues an SMS notification.
func (s *Sender) SendSms(ctx context.Context, to, body string) (*queue.Job, error) {
	return s.queue.Enqueue(ctx, QueueName, JobSendSms, Message{
		Type:      "sms",
		Recipient: to,
		Body:      body,
		Timestamp: time.Now().UnixMilli(),
	}, enqueueOptions)
}
