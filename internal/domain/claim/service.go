// Package claim owns the claim state machine and disbursement orchestration.
//
// Claims advance through a fixed linear lifecycle:
//
//	requested -> verified -> approved -> disbursed -> archived
//
// Every transition is a compare-and-swap against the store, so two
// concurrent callers can never both succeed from the same prior state.
package claim

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
	"aidledger/internal/onchain"
	"aidledger/internal/queue"
)

// Claim lifecycle statuses.
const (
	StatusRequested = "requested"
	StatusVerified  = "verified"
	StatusApproved  = "approved"
	StatusDisbursed = "disbursed"
	StatusArchived  = "archived"
)

// ErrNotFound indicates the claim is missing.
var ErrNotFound = errors.New("claim not found")

// ErrCampaignNotFound indicates the referenced campaign is missing.
var ErrCampaignNotFound = errors.New("campaign not found")

// ErrInvalidAmount indicates the amount is negative or has more than two
// decimal places.
var ErrInvalidAmount = errors.New("amount must be non-negative with at most 2 decimal places")

// ErrMissingRecipient indicates the recipient reference was absent.
var ErrMissingRecipient = errors.New("recipient ref is required")

// InvalidTransitionError reports a guarded transition attempted from the
// wrong current status.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

// Store is the persistence contract the service needs. *db.Store satisfies it.
type Store interface {
	CampaignExists(ctx context.Context, id string) (bool, error)
	InsertClaim(ctx context.Context, c db.Claim) error
	GetClaim(ctx context.Context, id string) (db.Claim, error)
	ListClaims(ctx context.Context) ([]db.Claim, error)
	SwapClaimStatus(ctx context.Context, id, from, to string) (db.Claim, error)
}

// Metrics is the on-chain observability contract.
type Metrics interface {
	IncrementOnchainOperation(operation, adapter, outcome string)
	ObserveOnchainDuration(operation, adapter string, d time.Duration)
}

// JobEnqueuer schedules background on-chain work. *onchain.Service
// satisfies it.
type JobEnqueuer interface {
	EnqueueCreateClaim(ctx context.Context, params onchain.CreateClaimParams) (*queue.Job, error)
}

// Config carries the disbursement knobs.
type Config struct {
	OnchainEnabled bool
	AdapterTimeout time.Duration
}

// Service coordinates the claim lifecycle, the on-chain adapter and the
// audit trail.
type Service struct {
	store    Store
	adapter  onchain.Adapter
	recorder audit.Recorder
	metrics  Metrics
	jobs     JobEnqueuer
	cfg      Config
}

// NewService wires dependencies. jobs may be nil when background on-chain
// registration is not wanted.
func NewService(store Store, adapter onchain.Adapter, recorder audit.Recorder, metrics Metrics, jobs JobEnqueuer, cfg Config) *Service {
	return &Service{store: store, adapter: adapter, recorder: recorder, metrics: metrics, jobs: jobs, cfg: cfg}
}

// CreateInput captures claim creation payload.
type CreateInput struct {
	CampaignID   string
	Amount       decimal.Decimal
	RecipientRef string
	EvidenceRef  string
}

// Create validates the campaign reference and persists a new claim in the
// requested status.
func (s *Service) Create(ctx context.Context, in CreateInput) (db.Claim, error) {
	if in.CampaignID == "" {
		return db.Claim{}, ErrCampaignNotFound
	}
	if in.RecipientRef == "" {
		return db.Claim{}, ErrMissingRecipient
	}
	if in.Amount.IsNegative() || in.Amount.Exponent() < -2 {
		return db.Claim{}, ErrInvalidAmount
	}
	exists, err := s.store.CampaignExists(ctx, in.CampaignID)
	if err != nil {
		return db.Claim{}, err
	}
	if !exists {
		return db.Claim{}, ErrCampaignNotFound
	}

	c := db.Claim{
		ID:           uuid.NewString(),
		CampaignID:   in.CampaignID,
		Amount:       in.Amount,
		Status:       StatusRequested,
		RecipientRef: in.RecipientRef,
	}
	if in.EvidenceRef != "" {
		c.EvidenceRef = &in.EvidenceRef
	}
	if err := s.store.InsertClaim(ctx, c); err != nil {
		return db.Claim{}, err
	}
	s.recordAudit(ctx, audit.Entry{
		ActorID:  "system",
		Entity:   "claim",
		EntityID: c.ID,
		Action:   "created",
		Metadata: map[string]string{"status": c.Status, "campaign_id": c.CampaignID},
	})
	return s.store.GetClaim(ctx, c.ID)
}

// FindAll returns every claim.
func (s *Service) FindAll(ctx context.Context) ([]db.Claim, error) {
	return s.store.ListClaims(ctx)
}

// FindOne returns a claim by id.
func (s *Service) FindOne(ctx context.Context, id string) (db.Claim, error) {
	c, err := s.store.GetClaim(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return db.Claim{}, ErrNotFound
		}
		return db.Claim{}, err
	}
	return c, nil
}

// Verify moves a claim from requested to verified.
func (s *Service) Verify(ctx context.Context, id string) (db.Claim, error) {
	return s.transition(ctx, id, StatusRequested, StatusVerified, nil)
}

// Approve moves a claim from verified to approved. When on-chain settlement
// is enabled the claim package is registered on-chain in the background; the
// enqueue is best effort and never blocks the approval.
func (s *Service) Approve(ctx context.Context, id string) (db.Claim, error) {
	updated, err := s.transition(ctx, id, StatusVerified, StatusApproved, nil)
	if err != nil {
		return updated, err
	}
	if s.cfg.OnchainEnabled && s.jobs != nil {
		job, jobErr := s.jobs.EnqueueCreateClaim(ctx, onchain.CreateClaimParams{
			ClaimID:          updated.ID,
			RecipientAddress: updated.RecipientRef,
			Amount:           updated.Amount.StringFixed(2),
		})
		if jobErr != nil {
			log.Printf("failed to enqueue on-chain claim registration for %s: %v", updated.ID, jobErr)
		} else {
			log.Printf("on-chain claim registration enqueued for %s (job %s)", updated.ID, job.ID)
		}
	}
	return updated, nil
}

// Archive moves a claim from disbursed to archived.
func (s *Service) Archive(ctx context.Context, id string) (db.Claim, error) {
	return s.transition(ctx, id, StatusDisbursed, StatusArchived, nil)
}

// Disburse moves an approved claim to disbursed, attempting the on-chain
// payment first when enabled. Adapter failures are absorbed: the payout
// guarantee takes precedence over best-effort chain confirmation, so the
// status transition always proceeds.
func (s *Service) Disburse(ctx context.Context, id string) (db.Claim, error) {
	current, err := s.store.GetClaim(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return db.Claim{}, ErrNotFound
		}
		return db.Claim{}, err
	}
	if current.Status != StatusApproved {
		return db.Claim{}, &InvalidTransitionError{From: current.Status, To: StatusDisbursed}
	}

	var result *onchain.DisburseResult
	if s.cfg.OnchainEnabled && s.adapter != nil {
		result = s.disburseOnchain(ctx, current)
	}
	return s.transition(ctx, id, StatusApproved, StatusDisbursed, result)
}

// disburseOnchain runs the adapter call and its audit/metric side effects.
// It never returns an error: a failed call yields a nil result.
func (s *Service) disburseOnchain(ctx context.Context, c db.Claim) *onchain.DisburseResult {
	adapterName := s.adapter.Name()
	callCtx, cancel := context.WithTimeout(ctx, s.adapterTimeout())
	defer cancel()

	start := time.Now()
	res, err := s.adapter.Disburse(callCtx, onchain.DisburseParams{
		ClaimID:          c.ID,
		PackageID:        onchain.DerivePackageID(c.ID),
		RecipientAddress: c.RecipientRef,
		Amount:           c.Amount.StringFixed(2),
	})
	s.metrics.ObserveOnchainDuration("disburse", adapterName, time.Since(start))

	if err != nil || res == nil || res.Status != onchain.StatusSuccess {
		msg := "adapter reported failed status"
		if err != nil {
			msg = err.Error()
		}
		s.metrics.IncrementOnchainOperation("disburse", adapterName, string(onchain.StatusFailed))
		s.recordAudit(ctx, audit.Entry{
			ActorID:  "system",
			Entity:   "onchain",
			EntityID: c.ID,
			Action:   "disburse_failed",
			Metadata: map[string]string{"error": msg, "adapter": adapterName},
		})
		log.Printf("onchain disbursement failed for claim %s: %s (proceeding with status transition)", c.ID, msg)
		return nil
	}

	s.metrics.IncrementOnchainOperation("disburse", adapterName, string(res.Status))
	meta := map[string]string{
		"transaction_hash": res.TransactionHash,
		"status":           string(res.Status),
		"amount_disbursed": res.AmountDisbursed,
		"adapter":          adapterName,
	}
	for k, v := range res.Metadata {
		meta[k] = v
	}
	s.recordAudit(ctx, audit.Entry{
		ActorID:  "system",
		Entity:   "onchain",
		EntityID: c.ID,
		Action:   "disburse",
		Metadata: meta,
	})
	log.Printf("onchain disbursement completed for claim %s: tx=%s", c.ID, res.TransactionHash)
	return res
}

// transition performs a guarded status change. The store update is a single
// atomic compare-and-swap: the second of two concurrent callers loses and
// gets an InvalidTransitionError carrying the actual current status.
func (s *Service) transition(ctx context.Context, id, from, to string, onchainResult *onchain.DisburseResult) (db.Claim, error) {
	updated, err := s.store.SwapClaimStatus(ctx, id, from, to)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return db.Claim{}, ErrNotFound
		}
		if errors.Is(err, db.ErrStatusConflict) {
			return db.Claim{}, &InvalidTransitionError{From: updated.Status, To: to}
		}
		return db.Claim{}, err
	}

	meta := map[string]string{"from": from, "to": to}
	if onchainResult != nil {
		meta["transaction_hash"] = onchainResult.TransactionHash
		meta["onchain_status"] = string(onchainResult.Status)
	}
	s.recordAudit(ctx, audit.Entry{
		ActorID:  "system",
		Entity:   "claim",
		EntityID: id,
		Action:   "status_changed_to_" + to,
		Metadata: meta,
	})
	return updated, nil
}

func (s *Service) adapterTimeout() time.Duration {
	if s.cfg.AdapterTimeout > 0 {
		return s.cfg.AdapterTimeout
	}
	return 10 * time.Second
}

// recordAudit is best effort: failures are logged and never surfaced.
func (s *Service) recordAudit(ctx context.Context, e audit.Entry) {
	if s.recorder == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := s.recorder.Record(ctx, e); err != nil {
		log.Printf("audit record failed for %s.%s: %v", e.Entity, e.Action, err)
	}
}
