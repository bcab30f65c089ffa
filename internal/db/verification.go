package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"aidledger/internal/observability/metrics"
)

// VerificationSession is a row in the verification_session table.
type VerificationSession struct {
	ID          string
	Channel     string
	Identifier  string
	Code        string
	Attempts    int
	ResendCount int
	Status      string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const sessionColumns = `id, channel, identifier, code, attempts, resend_count, status, expires_at, created_at, updated_at`

func scanSession(row pgx.Row) (VerificationSession, error) {
	var v VerificationSession
	if err := row.Scan(&v.ID, &v.Channel, &v.Identifier, &v.Code, &v.Attempts, &v.ResendCount, &v.Status, &v.ExpiresAt, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VerificationSession{}, ErrNotFound
		}
		return VerificationSession{}, err
	}
	return v, nil
}

// InsertVerificationSession persists a new session row.
func (s *Store) InsertVerificationSession(ctx context.Context, v VerificationSession) error {
	start := time.Now()
	defer metrics.ObserveDBOperation("insert_verification_session", time.Since(start))
	_, err := s.pool.Exec(ctx, `
        INSERT INTO verification_session (id, channel, identifier, code, status, expires_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
    `, v.ID, v.Channel, v.Identifier, v.Code, v.Status, v.ExpiresAt)
	return err
}

// GetVerificationSession loads a session by id.
func (s *Store) GetVerificationSession(ctx context.Context, id string) (VerificationSession, error) {
	start := time.Now()
	defer metrics.ObserveDBOperation("get_verification_session", time.Since(start))
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM verification_session WHERE id = $1`, id)
	return scanSession(row)
}

// CountVerificationSessionsSince counts sessions created for an identifier
// after the given instant. Used for the start rate limit.
func (s *Store) CountVerificationSessionsSince(ctx context.Context, identifier string, since time.Time) (int, error) {
	start := time.Now()
	defer metrics.ObserveDBOperation("count_verification_sessions", time.Since(start))
	var count int
	err := s.pool.QueryRow(ctx, `
        SELECT COUNT(*) FROM verification_session
        WHERE identifier = $1 AND created_at >= $2
    `, identifier, since).Scan(&count)
	return count, err
}

// SetVerificationStatus updates the session status.
func (s *Store) SetVerificationStatus(ctx context.Context, id, status string) error {
	start := time.Now()
	defer metrics.ObserveDBOperation("set_verification_status", time.Since(start))
	tag, err := s.pool.Exec(ctx, `
        UPDATE verification_session SET status = $2, updated_at = NOW() WHERE id = $1
    `, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateVerificationCode replaces the code, extends the expiry and bumps the
// resend counter.
func (s *Store) RotateVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	start := time.Now()
	defer metrics.ObserveDBOperation("rotate_verification_code", time.Since(start))
	tag, err := s.pool.Exec(ctx, `
        UPDATE verification_session
        SET code = $2, expires_at = $3, resend_count = resend_count + 1, updated_at = NOW()
        WHERE id = $1
    `, id, code, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementVerificationAttempts bumps the failed attempt counter.
func (s *Store) IncrementVerificationAttempts(ctx context.Context, id string) error {
	start := time.Now()
	defer metrics.ObserveDBOperation("increment_verification_attempts", time.Since(start))
	tag, err := s.pool.Exec(ctx, `
        UPDATE verification_session SET attempts = attempts + 1, updated_at = NOW() WHERE id = $1
    `, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
