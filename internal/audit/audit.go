// Package audit defines the append-only audit trail contract. Recording is
// best effort: call sites log failures and never let them block the primary
// operation.
package audit

import (
	"context"
	"time"

	"aidledger/internal/db"
)

// Entry is one audit trail record.
type Entry struct {
	ActorID  string            `json:"actor_id"`
	Entity   string            `json:"entity"`
	EntityID string            `json:"entity_id"`
	Action   string            `json:"action"`
	Metadata map[string]string `json:"metadata,omitempty"`
	At       time.Time         `json:"at"`
}

// Recorder accepts audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// RecorderFunc allows plain functions as recorders.
type RecorderFunc func(ctx context.Context, e Entry) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, e Entry) error {
	return f(ctx, e)
}

// StoreRecorder writes entries straight into the audit_log table. The worker
// service uses it behind the Kafka consumer.
type StoreRecorder struct {
	store *db.Store
}

// NewStoreRecorder builds a store-backed recorder.
func NewStoreRecorder(store *db.Store) *StoreRecorder {
	return &StoreRecorder{store: store}
}

// Record inserts the entry.
func (r *StoreRecorder) Record(ctx context.Context, e Entry) error {
	return r.store.InsertAuditEntry(ctx, db.AuditEntry{
		ActorID:   e.ActorID,
		Entity:    e.Entity,
		EntityID:  e.EntityID,
		Action:    e.Action,
		Metadata:  e.Metadata,
		CreatedAt: e.At,
	})
}
