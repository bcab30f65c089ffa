package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"aidledger/internal/observability/metrics"
)

// Campaign is a row in the campaign table.
type Campaign struct {
	ID         string
	Name       string
	Budget     decimal.Decimal
	Status     string
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ArchivedAt *time.Time
}

const campaignColumns = `id, name, budget::text, status, metadata, created_at, updated_at, archived_at`

func scanCampaign(row pgx.Row) (Campaign, error) {
	var (
		c         Campaign
		budget    string
		metaBytes []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &budget, &c.Status, &metaBytes, &c.CreatedAt, &c.UpdatedAt, &c.ArchivedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, err
	}
	dec, err := decimal.NewFromString(budget)
	if err != nil {
		return Campaign{}, err
	}
	c.Budget = dec
	if len(metaBytes) > 0 {
		if err := json.Unmarshal(metaBytes, &c.Metadata); err != nil {
			return Campaign{}, err
		}
	}
	return c, nil
}

// InsertCampaign persists a new campaign row.
func (s *Store) InsertCampaign(ctx context.Context, c Campaign) error {
	start := time.Now()
	defer metrics.ObserveDBOperation("insert_campaign", time.Since(start))
	meta, err := json.Marshal(orEmpty(c.Metadata))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO campaign (id, name, budget, status, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
    `, c.ID, c.Name, c.Budget.StringFixed(2), c.Status, meta)
	return err
}

// GetCampaign loads a single campaign by id.
func (s *Store) GetCampaign(ctx context.Context, id string) (Campaign, error) {
	start := time.Now()
	defer metrics.ObserveDBOperation("get_campaign", time.Since(start))
	row := s.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaign WHERE id = $1`, id)
	return scanCampaign(row)
}

// CampaignExists reports whether a campaign row exists.
func (s *Store) CampaignExists(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	defer metrics.ObserveDBOperation("campaign_exists", time.Since(start))
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM campaign WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// ListCampaigns fetches campaigns, optionally including archived ones.
func (s *Store) ListCampaigns(ctx context.Context, includeArchived bool) ([]Campaign, error) {
	start := time.Now()
	defer metrics.ObserveDBOperation("list_campaigns", time.Since(start))
	query := `SELECT ` + campaignColumns + ` FROM campaign`
	if !includeArchived {
		query += ` WHERE archived_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// UpdateCampaign overwrites the mutable fields of a campaign row.
func (s *Store) UpdateCampaign(ctx context.Context, c Campaign) error {
	start := time.Now()
	defer metrics.ObserveDBOperation("update_campaign", time.Since(start))
	meta, err := json.Marshal(orEmpty(c.Metadata))
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
        UPDATE campaign
        SET name = $2, budget = $3, status = $4, metadata = $5, archived_at = $6, updated_at = NOW()
        WHERE id = $1
    `, c.ID, c.Name, c.Budget.StringFixed(2), c.Status, meta, c.ArchivedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
