package campaign_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidledger/internal/audit"
	"aidledger/internal/db"
	"aidledger/internal/domain/campaign"
)

type fakeCampaignStore struct {
	mu        sync.Mutex
	campaigns map[string]db.Campaign
}

func newFakeCampaignStore() *fakeCampaignStore {
	return &fakeCampaignStore{campaigns: make(map[string]db.Campaign)}
}

func (f *fakeCampaignStore) InsertCampaign(_ context.Context, c db.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaigns[c.ID] = c
	return nil
}

func (f *fakeCampaignStore) GetCampaign(_ context.Context, id string) (db.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return db.Campaign{}, db.ErrNotFound
	}
	return c, nil
}

func (f *fakeCampaignStore) ListCampaigns(_ context.Context, includeArchived bool) ([]db.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]db.Campaign, 0, len(f.campaigns))
	for _, c := range f.campaigns {
		if !includeArchived && c.ArchivedAt != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCampaignStore) UpdateCampaign(_ context.Context, c db.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.campaigns[c.ID]; !ok {
		return db.ErrNotFound
	}
	f.campaigns[c.ID] = c
	return nil
}

type captureRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (r *captureRecorder) Record(_ context.Context, e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, e.Entity+"."+e.Action)
	return nil
}

func TestCreateDefaultsToDraft(t *testing.T) {
	recorder := &captureRecorder{}
	svc := campaign.NewService(newFakeCampaignStore(), recorder)

	created, err := svc.Create(context.Background(), campaign.CreateInput{
		Name:   "Flood Relief",
		Budget: decimal.RequireFromString("5000.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusDraft, created.Status)
	assert.Contains(t, recorder.actions, "campaign.created")
}

func TestCreateValidation(t *testing.T) {
	svc := campaign.NewService(newFakeCampaignStore(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, campaign.CreateInput{Budget: decimal.New(1, 0)})
	assert.EqualError(t, err, "name is required")

	_, err = svc.Create(ctx, campaign.CreateInput{Name: "x", Budget: decimal.New(-1, 0)})
	assert.EqualError(t, err, "budget must be non-negative")

	_, err = svc.Create(ctx, campaign.CreateInput{Name: "x", Status: "paused"})
	assert.ErrorContains(t, err, "invalid campaign status")
}

func TestUpdatePatchesOnlyProvidedFields(t *testing.T) {
	store := newFakeCampaignStore()
	svc := campaign.NewService(store, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, campaign.CreateInput{
		Name:   "Flood Relief",
		Budget: decimal.RequireFromString("5000.00"),
	})
	require.NoError(t, err)

	status := campaign.StatusActive
	updated, err := svc.Update(ctx, created.ID, campaign.UpdateInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusActive, updated.Status)
	assert.Equal(t, "Flood Relief", updated.Name)
	assert.True(t, updated.Budget.Equal(created.Budget))
}

func TestArchiveIsIdempotent(t *testing.T) {
	store := newFakeCampaignStore()
	svc := campaign.NewService(store, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, campaign.CreateInput{Name: "Flood Relief"})
	require.NoError(t, err)

	first, already, err := svc.Archive(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, campaign.StatusArchived, first.Status)
	require.NotNil(t, first.ArchivedAt)

	second, already, err := svc.Archive(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, first.ArchivedAt.Unix(), second.ArchivedAt.Unix())

	visible, err := svc.FindAll(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := svc.FindAll(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFindOneMissing(t *testing.T) {
	svc := campaign.NewService(newFakeCampaignStore(), nil)
	_, err := svc.FindOne(context.Background(), "missing")
	assert.ErrorIs(t, err, campaign.ErrNotFound)

	_, err = svc.Update(context.Background(), "missing", campaign.UpdateInput{})
	assert.ErrorIs(t, err, campaign.ErrNotFound)

	_, _, err = svc.Archive(context.Background(), "missing")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}
