// Package campaign manages the funding pools that claims draw against.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"aidledger/internal/audit"
	"aidledger/internal/db"
)

// Campaign statuses.
const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusClosed   = "closed"
	StatusArchived = "archived"
)

// ErrNotFound indicates the campaign is missing.
var ErrNotFound = errors.New("campaign not found")

// Store is the persistence contract the service needs. *db.Store satisfies it.
type Store interface {
	InsertCampaign(ctx context.Context, c db.Campaign) error
	GetCampaign(ctx context.Context, id string) (db.Campaign, error)
	ListCampaigns(ctx context.Context, includeArchived bool) ([]db.Campaign, error)
	UpdateCampaign(ctx context.Context, c db.Campaign) error
}

// Service coordinates campaign CRUD and archival.
type Service struct {
	store    Store
	recorder audit.Recorder
}

// NewService wires dependencies.
func NewService(store Store, recorder audit.Recorder) *Service {
	return &Service{store: store, recorder: recorder}
}

// CreateInput captures campaign creation payload.
type CreateInput struct {
	Name     string
	Budget   decimal.Decimal
	Status   string
	Metadata map[string]string
}

// Create persists a new campaign. Status defaults to draft.
func (s *Service) Create(ctx context.Context, in CreateInput) (db.Campaign, error) {
	if in.Name == "" {
		return db.Campaign{}, errors.New("name is required")
	}
	if in.Budget.IsNegative() {
		return db.Campaign{}, errors.New("budget must be non-negative")
	}
	status := in.Status
	if status == "" {
		status = StatusDraft
	}
	if err := validStatus(status); err != nil {
		return db.Campaign{}, err
	}

	c := db.Campaign{
		ID:       uuid.NewString(),
		Name:     in.Name,
		Budget:   in.Budget,
		Status:   status,
		Metadata: in.Metadata,
	}
	if err := s.store.InsertCampaign(ctx, c); err != nil {
		return db.Campaign{}, err
	}
	s.recordAudit(ctx, c.ID, "created", map[string]string{"status": status})
	return s.store.GetCampaign(ctx, c.ID)
}

// FindAll lists campaigns, optionally including archived ones.
func (s *Service) FindAll(ctx context.Context, includeArchived bool) ([]db.Campaign, error) {
	return s.store.ListCampaigns(ctx, includeArchived)
}

// FindOne returns a campaign by id.
func (s *Service) FindOne(ctx context.Context, id string) (db.Campaign, error) {
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return db.Campaign{}, ErrNotFound
		}
		return db.Campaign{}, err
	}
	return c, nil
}

// UpdateInput captures a partial campaign update. Nil fields are untouched.
type UpdateInput struct {
	Name     *string
	Budget   *decimal.Decimal
	Status   *string
	Metadata map[string]string
}

// Update applies a partial update to a campaign.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (db.Campaign, error) {
	c, err := s.FindOne(ctx, id)
	if err != nil {
		return db.Campaign{}, err
	}
	if in.Name != nil {
		if *in.Name == "" {
			return db.Campaign{}, errors.New("name cannot be empty")
		}
		c.Name = *in.Name
	}
	if in.Budget != nil {
		if in.Budget.IsNegative() {
			return db.Campaign{}, errors.New("budget must be non-negative")
		}
		c.Budget = *in.Budget
	}
	if in.Status != nil {
		if err := validStatus(*in.Status); err != nil {
			return db.Campaign{}, err
		}
		c.Status = *in.Status
	}
	if in.Metadata != nil {
		c.Metadata = in.Metadata
	}
	if err := s.store.UpdateCampaign(ctx, c); err != nil {
		return db.Campaign{}, err
	}
	s.recordAudit(ctx, id, "updated", map[string]string{"status": c.Status})
	return s.store.GetCampaign(ctx, id)
}

// Archive soft-archives a campaign. Archiving an already-archived campaign
// is a no-op reported through the second return value.
func (s *Service) Archive(ctx context.Context, id string) (db.Campaign, bool, error) {
	c, err := s.FindOne(ctx, id)
	if err != nil {
		return db.Campaign{}, false, err
	}
	if c.ArchivedAt != nil {
		return c, true, nil
	}
	now := time.Now().UTC()
	c.Status = StatusArchived
	c.ArchivedAt = &now
	if err := s.store.UpdateCampaign(ctx, c); err != nil {
		return db.Campaign{}, false, err
	}
	s.recordAudit(ctx, id, "archived", nil)
	return c, false, nil
}

func validStatus(status string) error {
	switch status {
	case StatusDraft, StatusActive, StatusClosed, StatusArchived:
		return nil
	default:
		return fmt.Errorf("invalid campaign status %q", status)
	}
}

func (s *Service) recordAudit(ctx context.Context, id, action string, meta map[string]string) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.Record(ctx, audit.Entry{
		ActorID:  "system",
		Entity:   "campaign",
		EntityID: id,
		Action:   action,
		Metadata: meta,
		At:       time.Now().UTC(),
	})
	if err != nil {
		log.Printf("audit record failed for campaign.%s: %v", action, err)
	}
}
