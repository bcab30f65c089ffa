package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"aidledger/internal/observability/metrics"
)

// Claim is a row in the claim table.
type Claim struct {
	ID           string
	CampaignID   string
	Amount       decimal.Decimal
	Status       string
	RecipientRef string
	EvidenceRef  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const claimColumns = `id, campaign_id, amount::text, status, recipient_ref, evidence_ref, created_at, updated_at`

func scanClaim(row pgx.Row) (Claim, error) {
	var (
		c      Claim
		amount string
	)
	if err := row.Scan(&c.ID, &c.CampaignID, &amount, &c.Status, &c.RecipientRef, &c.EvidenceRef, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Claim{}, ErrNotFound
		}
		return Claim{}, err
	}
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return Claim{}, err
	}
	c.Amount = dec
	return c, nil
}

// InsertClaim persists a new claim row.
func (s *Store) InsertClaim(ctx context.Context, c Claim) error {
	start := time.Now()
	defer metrics.ObserveDBOperation("insert_claim", time.Since(start))
	_, err := s.pool.Exec(ctx, `
        INSERT INTO claim (id, campaign_id, amount, status, recipient_ref, evidence_ref, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
    `, c.ID, c.CampaignID, c.Amount.StringFixed(2), c.Status, c.RecipientRef, c.EvidenceRef)
	return err
}

// GetClaim loads a single claim by id.
func (s *Store) GetClaim(ctx context.Context, id string) (Claim, error) {
	start := time.Now()
	defer metrics.ObserveDBOperation("get_claim", time.Since(start))
	row := s.pool.QueryRow(ctx, `SELECT `+claimColumns+` FROM claim WHERE id = $1`, id)
	return scanClaim(row)
}

// ListClaims fetches all claims, newest first.
func (s *Store) ListClaims(ctx context.Context) ([]Claim, error) {
	start := time.Now()
	defer metrics.ObserveDBOperation("list_claims", time.Since(start))
	rows, err := s.pool.Query(ctx, `SELECT `+claimColumns+` FROM claim ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// SwapClaimStatus atomically moves a claim from one status to another. The
// single-statement compare-and-swap guarantees at most one concurrent caller
// observes the prior status. On a lost race the current row is returned
// alongside ErrStatusConflict so callers can report the actual status.
func (s *Store) SwapClaimStatus(ctx context.Context, id, from, to string) (Claim, error) {
	start := time.Now()
	defer metrics.ObserveDBOperation("swap_claim_status", time.Since(start))
	row := s.pool.QueryRow(ctx, `
        UPDATE claim
        SET status = $3, updated_at = NOW()
        WHERE id = $1 AND status = $2
        RETURNING `+claimColumns+`
    `, id, from, to)
	claim, err := scanClaim(row)
	if err == nil {
		return claim, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Claim{}, err
	}
	// Either the claim is missing or it is not in the expected status.
	current, getErr := s.GetClaim(ctx, id)
	if getErr != nil {
		return Claim{}, getErr
	}
	return current, ErrStatusConflict
}
