package db

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"aidledger/internal/observability/metrics"
)

// AuditEntry is a row in the append-only audit_log table.
type AuditEntry struct {
	ID        int64
	ActorID   string
	Entity    string
	EntityID  string
	Action    string
	Metadata  map[string]string
	CreatedAt time.Time
}

// AuditFilter narrows audit queries. Zero-valued fields are ignored.
type AuditFilter struct {
	Entity   string
	EntityID string
	ActorID  string
	Start    time.Time
	End      time.Time
}

// InsertAuditEntry appends a row to the audit log.
func (s *Store) InsertAuditEntry(ctx context.Context, e AuditEntry) error {
	start := time.Now()
	defer metrics.ObserveDBOperation("insert_audit_entry", time.Since(start))
	meta, err := json.Marshal(orEmpty(e.Metadata))
	if err != nil {
		return err
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO audit_log (actor_id, entity, entity_id, action, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, e.ActorID, e.Entity, e.EntityID, e.Action, meta, createdAt)
	return err
}

// ListAuditEntries returns audit rows matching the filter, newest first.
func (s *Store) ListAuditEntries(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	start := time.Now()
	defer metrics.ObserveDBOperation("list_audit_entries", time.Since(start))

	query := `SELECT id, actor_id, entity, entity_id, action, metadata, created_at FROM audit_log`
	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, clause+" $"+strconv.Itoa(len(args)))
	}
	if f.Entity != "" {
		add("entity =", f.Entity)
	}
	if f.EntityID != "" {
		add("entity_id =", f.EntityID)
	}
	if f.ActorID != "" {
		add("actor_id =", f.ActorID)
	}
	if !f.Start.IsZero() {
		add("created_at >=", f.Start)
	}
	if !f.End.IsZero() {
		add("created_at <=", f.End)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at DESC LIMIT 500"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AuditEntry
	for rows.Next() {
		var (
			e         AuditEntry
			metaBytes []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Entity, &e.EntityID, &e.Action, &metaBytes, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(metaBytes) > 0 {
			if err := json.Unmarshal(metaBytes, &e.Metadata); err != nil {
				return nil, err
			}
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
