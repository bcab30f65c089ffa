// Package verification implements the OTP identity-confirmation flow: a
// time-boxed, attempt-limited code match over email or phone.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"aidledger/internal/db"
	"aidledger/internal/queue"
)

// Channels.
const (
	ChannelEmail = "email"
	ChannelPhone = "phone"
)

// Session statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
)

// ErrNotFound indicates the session is missing.
var ErrNotFound = errors.New("verification session not found")

// ErrRateLimited indicates too many starts for one identifier inside the
// rate window.
var ErrRateLimited = errors.New("too many verification requests, try again later")

// ErrInvalidCode indicates a code mismatch.
var ErrInvalidCode = errors.New("invalid verification code")

// ErrMissingIdentifier indicates the field matching the channel was absent.
var ErrMissingIdentifier = errors.New("email is required when channel is email, phone is required when channel is phone")

// InvalidStateError reports an operation against a session that is expired,
// exhausted or no longer pending.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string { return e.Reason }

// Config carries the flow limits.
type Config struct {
	CodeLength       int
	TTL              time.Duration
	MaxStartsPerHour int
	MaxResends       int
	MaxAttempts      int
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		CodeLength:       6,
		TTL:              10 * time.Minute,
		MaxStartsPerHour: 5,
		MaxResends:       3,
		MaxAttempts:      5,
	}
}

// Store is the persistence contract the service needs. *db.Store satisfies it.
type Store interface {
	InsertVerificationSession(ctx context.Context, v db.VerificationSession) error
	GetVerificationSession(ctx context.Context, id string) (db.VerificationSession, error)
	CountVerificationSessionsSince(ctx context.Context, identifier string, since time.Time) (int, error)
	SetVerificationStatus(ctx context.Context, id, status string) error
	RotateVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error
	IncrementVerificationAttempts(ctx context.Context, id string) error
}

// Sender dispatches notification jobs carrying the code. The service never
// waits for delivery.
type Sender interface {
	SendEmail(ctx context.Context, to, subject, body string) (*queue.Job, error)
	SendSms(ctx context.Context, to, body string) (*queue.Job, error)
}

// Service owns the verification session state machine.
type Service struct {
	store  Store
	sender Sender
	cfg    Config
}

// NewService wires dependencies.
func NewService(store Store, sender Sender, cfg Config) *Service {
	if cfg.CodeLength <= 0 {
		cfg = DefaultConfig()
	}
	return &Service{store: store, sender: sender, cfg: cfg}
}

// StartInput captures a start request. Exactly one of Email/Phone must match
// the channel.
type StartInput struct {
	Channel string
	Email   string
	Phone   string
}

// StartResult is returned from Start.
type StartResult struct {
	SessionID string    `json:"session_id"`
	Channel   string    `json:"channel"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message"`
}

// Start creates a pending session, generates a code and dispatches it.
func (s *Service) Start(ctx context.Context, in StartInput) (StartResult, error) {
	identifier, err := normalizeIdentifier(in)
	if err != nil {
		return StartResult{}, err
	}

	since := time.Now().Add(-time.Hour)
	recent, err := s.store.CountVerificationSessionsSince(ctx, identifier, since)
	if err != nil {
		return StartResult{}, err
	}
	if recent >= s.cfg.MaxStartsPerHour {
		log.Printf("verification rate limit hit for identifier (%d starts in last hour)", recent)
		return StartResult{}, ErrRateLimited
	}

	code, err := generateCode(s.cfg.CodeLength)
	if err != nil {
		return StartResult{}, err
	}
	expiresAt := time.Now().Add(s.cfg.TTL).UTC()
	session := db.VerificationSession{
		ID:         uuid.NewString(),
		Channel:    in.Channel,
		Identifier: identifier,
		Code:       code,
		Status:     StatusPending,
		ExpiresAt:  expiresAt,
	}
	if err := s.store.InsertVerificationSession(ctx, session); err != nil {
		return StartResult{}, err
	}
	s.sendCode(ctx, in.Channel, identifier, code)

	log.Printf("verification session started: %s via %s", session.ID, in.Channel)
	return StartResult{
		SessionID: session.ID,
		Channel:   in.Channel,
		ExpiresAt: expiresAt,
		Message:   fmt.Sprintf("Verification code sent to %s. Code expires in %s.", in.Channel, s.cfg.TTL),
	}, nil
}

// ResendResult is returned from Resend.
type ResendResult struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message"`
}

// Resend rotates the code and expiry of a pending session and re-dispatches
// the notification.
func (s *Service) Resend(ctx context.Context, sessionID string) (ResendResult, error) {
	session, err := s.loadPending(ctx, sessionID)
	if err != nil {
		return ResendResult{}, err
	}
	if session.ResendCount >= s.cfg.MaxResends {
		return ResendResult{}, &InvalidStateError{
			Reason: fmt.Sprintf("maximum resend limit (%d) reached, start a new verification", s.cfg.MaxResends),
		}
	}

	code, err := generateCode(s.cfg.CodeLength)
	if err != nil {
		return ResendResult{}, err
	}
	expiresAt := time.Now().Add(s.cfg.TTL).UTC()
	if err := s.store.RotateVerificationCode(ctx, session.ID, code, expiresAt); err != nil {
		return ResendResult{}, err
	}
	s.sendCode(ctx, session.Channel, session.Identifier, code)

	log.Printf("verification code resent for session %s", session.ID)
	return ResendResult{
		SessionID: session.ID,
		ExpiresAt: expiresAt,
		Message:   "New verification code sent.",
	}, nil
}

// CompleteResult is returned from Complete.
type CompleteResult struct {
	SessionID string `json:"session_id"`
	Verified  bool   `json:"verified"`
	Message   string `json:"message"`
}

// Complete checks the submitted code. A mismatch burns an attempt; a match
// makes the session terminal.
func (s *Service) Complete(ctx context.Context, sessionID, code string) (CompleteResult, error) {
	session, err := s.loadPending(ctx, sessionID)
	if err != nil {
		return CompleteResult{}, err
	}
	if session.Attempts >= s.cfg.MaxAttempts {
		return CompleteResult{}, &InvalidStateError{Reason: "too many failed attempts, start a new verification"}
	}
	if session.Code != code {
		if err := s.store.IncrementVerificationAttempts(ctx, session.ID); err != nil {
			return CompleteResult{}, err
		}
		return CompleteResult{}, ErrInvalidCode
	}
	if err := s.store.SetVerificationStatus(ctx, session.ID, StatusCompleted); err != nil {
		return CompleteResult{}, err
	}

	log.Printf("verification completed for session %s", session.ID)
	return CompleteResult{
		SessionID: session.ID,
		Verified:  true,
		Message:   "Verification completed successfully.",
	}, nil
}

// loadPending fetches a session and enforces the shared guards: it must
// exist, still be pending and not be past its expiry. Expiry is detected
// lazily here and flips the stored status to expired.
func (s *Service) loadPending(ctx context.Context, sessionID string) (db.VerificationSession, error) {
	session, err := s.store.GetVerificationSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return db.VerificationSession{}, ErrNotFound
		}
		return db.VerificationSession{}, err
	}
	if session.Status != StatusPending {
		return db.VerificationSession{}, &InvalidStateError{Reason: "session is no longer active, start a new verification"}
	}
	if time.Now().After(session.ExpiresAt) {
		if err := s.store.SetVerificationStatus(ctx, session.ID, StatusExpired); err != nil {
			log.Printf("failed to mark session %s expired: %v", session.ID, err)
		}
		return db.VerificationSession{}, &InvalidStateError{Reason: "session expired, start a new verification"}
	}
	return session, nil
}

// sendCode dispatches the notification job. The enqueue is best effort from
// the session's perspective: a failure is logged, the session stays usable
// through resend.
func (s *Service) sendCode(ctx context.Context, channel, identifier, code string) {
	body := "Your verification code is: " + code
	var err error
	switch channel {
	case ChannelEmail:
		_, err = s.sender.SendEmail(ctx, identifier, "Verification Code", body)
	case ChannelPhone:
		_, err = s.sender.SendSms(ctx, identifier, body)
	}
	if err != nil {
		log.Printf("failed to enqueue verification code for %s: %v", channel, err)
	}
}

func normalizeIdentifier(in StartInput) (string, error) {
	switch in.Channel {
	case ChannelEmail:
		email := strings.ToLower(strings.TrimSpace(in.Email))
		if email == "" {
			return "", ErrMissingIdentifier
		}
		return email, nil
	case ChannelPhone:
		phone := strings.TrimSpace(in.Phone)
		if phone == "" {
			return "", ErrMissingIdentifier
		}
		return phone, nil
	default:
		return "", ErrMissingIdentifier
	}
}
