package verification_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidledger/internal/db"
	"aidledger/internal/domain/verification"
	"aidledger/internal/queue"
)

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]db.VerificationSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]db.VerificationSession)}
}

func (f *fakeSessionStore) InsertVerificationSession(_ context.Context, v db.VerificationSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v.CreatedAt = time.Now()
	f.sessions[v.ID] = v
	return nil
}

func (f *fakeSessionStore) GetVerificationSession(_ context.Context, id string) (db.VerificationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.sessions[id]
	if !ok {
		return db.VerificationSession{}, db.ErrNotFound
	}
	return v, nil
}

func (f *fakeSessionStore) CountVerificationSessionsSince(_ context.Context, identifier string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, v := range f.sessions {
		if v.Identifier == identifier && !v.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionStore) SetVerificationStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.sessions[id]
	if !ok {
		return db.ErrNotFound
	}
	v.Status = status
	f.sessions[id] = v
	return nil
}

func (f *fakeSessionStore) RotateVerificationCode(_ context.Context, id, code string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.sessions[id]
	if !ok {
		return db.ErrNotFound
	}
	v.Code = code
	v.ExpiresAt = expiresAt
	v.ResendCount++
	f.sessions[id] = v
	return nil
}

func (f *fakeSessionStore) IncrementVerificationAttempts(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.sessions[id]
	if !ok {
		return db.ErrNotFound
	}
	v.Attempts++
	f.sessions[id] = v
	return nil
}

func (f *fakeSessionStore) get(id string) db.VerificationSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id]
}

func (f *fakeSessionStore) backdateAll(age time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, v := range f.sessions {
		v.CreatedAt = time.Now().Add(-age)
		f.sessions[id] = v
	}
}

type sentMessage struct {
	channel string
	to      string
	body    string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) SendEmail(_ context.Context, to, _, body string) (*queue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channel: "email", to: to, body: body})
	return &queue.Job{ID: "job"}, nil
}

func (f *fakeSender) SendSms(_ context.Context, to, body string) (*queue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channel: "phone", to: to, body: body})
	return &queue.Job{ID: "job"}, nil
}

func (f *fakeSender) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func newTestService(store *fakeSessionStore, sender *fakeSender) *verification.Service {
	return verification.NewService(store, sender, verification.DefaultConfig())
}

func emailStart() verification.StartInput {
	return verification.StartInput{Channel: verification.ChannelEmail, Email: "User@Example.org "}
}

func TestStartRequiresMatchingIdentifier(t *testing.T) {
	svc := newTestService(newFakeSessionStore(), &fakeSender{})
	ctx := context.Background()

	for _, in := range []verification.StartInput{
		{Channel: verification.ChannelEmail},
		{Channel: verification.ChannelPhone},
		{Channel: verification.ChannelEmail, Email: "   "},
		{Channel: verification.ChannelPhone, Phone: " \t "},
		{Channel: "carrier-pigeon", Email: "a@b.c"},
	} {
		_, err := svc.Start(ctx, in)
		assert.ErrorIs(t, err, verification.ErrMissingIdentifier)
	}
}

func TestStartSendsCodeAndNormalizesIdentifier(t *testing.T) {
	store := newFakeSessionStore()
	sender := &fakeSender{}
	svc := newTestService(store, sender)

	res, err := svc.Start(context.Background(), emailStart())
	require.NoError(t, err)

	session := store.get(res.SessionID)
	assert.Equal(t, "user@example.org", session.Identifier)
	assert.Equal(t, verification.StatusPending, session.Status)
	assert.Regexp(t, `^\d{6}$`, session.Code)

	msg := sender.last()
	assert.Equal(t, "email", msg.channel)
	assert.Equal(t, "user@example.org", msg.to)
	assert.Contains(t, msg.body, session.Code)
}

func TestStartRateLimitsPerIdentifier(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestService(store, &fakeSender{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Start(ctx, emailStart())
		require.NoError(t, err)
	}
	_, err := svc.Start(ctx, emailStart())
	assert.ErrorIs(t, err, verification.ErrRateLimited)

	// Once the earlier starts fall outside the window, new starts succeed.
	store.backdateAll(2 * time.Hour)
	_, err = svc.Start(ctx, emailStart())
	assert.NoError(t, err)
}

func TestResendRotatesCode(t *testing.T) {
	store := newFakeSessionStore()
	sender := &fakeSender{}
	svc := newTestService(store, sender)
	ctx := context.Background()

	started, err := svc.Start(ctx, emailStart())
	require.NoError(t, err)
	oldCode := store.get(started.SessionID).Code

	_, err = svc.Resend(ctx, started.SessionID)
	require.NoError(t, err)

	session := store.get(started.SessionID)
	assert.NotEqual(t, oldCode, session.Code)
	assert.Equal(t, 1, session.ResendCount)
	assert.Contains(t, sender.last().body, session.Code)
}

func TestResendLimit(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestService(store, &fakeSender{})
	ctx := context.Background()

	started, err := svc.Start(ctx, emailStart())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = svc.Resend(ctx, started.SessionID)
		require.NoError(t, err)
	}
	_, err = svc.Resend(ctx, started.SessionID)
	var invalid *verification.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "resend limit")
}

func TestExpiryIsDetectedLazily(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestService(store, &fakeSender{})
	ctx := context.Background()

	started, err := svc.Start(ctx, emailStart())
	require.NoError(t, err)

	session := store.get(started.SessionID)
	session.ExpiresAt = time.Now().Add(-time.Minute)
	store.sessions[session.ID] = session

	var invalid *verification.InvalidStateError
	_, err = svc.Complete(ctx, session.ID, session.Code)
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "expired")
	assert.Equal(t, verification.StatusExpired, store.get(session.ID).Status)

	_, err = svc.Resend(ctx, session.ID)
	assert.ErrorAs(t, err, &invalid)
}

func TestCompleteWrongCodeBurnsAttempt(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestService(store, &fakeSender{})
	ctx := context.Background()

	started, err := svc.Start(ctx, emailStart())
	require.NoError(t, err)

	_, err = svc.Complete(ctx, started.SessionID, "000000x")
	assert.ErrorIs(t, err, verification.ErrInvalidCode)
	assert.Equal(t, 1, store.get(started.SessionID).Attempts)
}

func TestCompleteBlocksAfterMaxAttempts(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestService(store, &fakeSender{})
	ctx := context.Background()

	started, err := svc.Start(ctx, emailStart())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = svc.Complete(ctx, started.SessionID, "wrong")
		assert.ErrorIs(t, err, verification.ErrInvalidCode)
	}

	// Even the correct code is rejected once attempts are exhausted.
	var invalid *verification.InvalidStateError
	_, err = svc.Complete(ctx, started.SessionID, store.get(started.SessionID).Code)
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "too many failed attempts")
}

func TestCompleteSuccessIsTerminal(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestService(store, &fakeSender{})
	ctx := context.Background()

	started, err := svc.Start(ctx, emailStart())
	require.NoError(t, err)

	res, err := svc.Complete(ctx, started.SessionID, store.get(started.SessionID).Code)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, verification.StatusCompleted, store.get(started.SessionID).Status)

	var invalid *verification.InvalidStateError
	_, err = svc.Complete(ctx, started.SessionID, store.get(started.SessionID).Code)
	assert.ErrorAs(t, err, &invalid)
}

func TestOperationsOnMissingSession(t *testing.T) {
	svc := newTestService(newFakeSessionStore(), &fakeSender{})
	ctx := context.Background()

	_, err := svc.Resend(ctx, "missing")
	assert.ErrorIs(t, err, verification.ErrNotFound)
	_, err = svc.Complete(ctx, "missing", "123456")
	assert.ErrorIs(t, err, verification.ErrNotFound)
}
