// Package onchain defines the pluggable settlement adapter contract for the
// aid escrow contract, plus the deterministic mock used by default.
package onchain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status reports the outcome of an adapter operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// InitEscrowParams configure escrow contract initialization.
type InitEscrowParams struct {
	AdminAddress string `json:"admin_address"`
}

// InitEscrowResult is the outcome of escrow initialization.
type InitEscrowResult struct {
	EscrowAddress   string            `json:"escrow_address"`
	TransactionHash string            `json:"transaction_hash"`
	Timestamp       time.Time         `json:"timestamp"`
	Status          Status            `json:"status"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// CreateClaimParams configure on-chain claim package creation. Amount is a
// decimal string to preserve precision across the wire.
type CreateClaimParams struct {
	ClaimID          string `json:"claim_id"`
	RecipientAddress string `json:"recipient_address"`
	Amount           string `json:"amount"`
	TokenAddress     string `json:"token_address"`
	ExpiresAt        int64  `json:"expires_at,omitempty"` // unix seconds, zero means no expiry
}

// CreateClaimResult is the outcome of claim package creation.
type CreateClaimResult struct {
	PackageID       string            `json:"package_id"`
	TransactionHash string            `json:"transaction_hash"`
	Timestamp       time.Time         `json:"timestamp"`
	Status          Status            `json:"status"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// DisburseParams configure a disbursement of a claim package.
type DisburseParams struct {
	ClaimID          string `json:"claim_id"`
	PackageID        string `json:"package_id"`
	RecipientAddress string `json:"recipient_address,omitempty"`
	Amount           string `json:"amount,omitempty"`
}

// DisburseResult is the outcome of a disbursement.
type DisburseResult struct {
	TransactionHash string            `json:"transaction_hash"`
	Timestamp       time.Time         `json:"timestamp"`
	Status          Status            `json:"status"`
	AmountDisbursed string            `json:"amount_disbursed"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Adapter is the capability set required from an on-chain backend.
type Adapter interface {
	Name() string
	InitEscrow(ctx context.Context, params InitEscrowParams) (*InitEscrowResult, error)
	CreateClaim(ctx context.Context, params CreateClaimParams) (*CreateClaimResult, error)
	Disburse(ctx context.Context, params DisburseParams) (*DisburseResult, error)
}

// ErrNotImplemented marks adapters that are declared but not built yet.
var ErrNotImplemented = errors.New("onchain adapter not implemented")

// New selects an adapter by configuration name. An empty name falls back to
// the mock. Unknown and unimplemented names fail fast so a misconfigured
// deployment never silently runs without settlement.
func New(name string) (Adapter, error) {
	switch strings.ToLower(name) {
	case "", "mock":
		return NewMockAdapter(), nil
	case "soroban":
		return nil, fmt.Errorf("soroban: %w (use ONCHAIN_ADAPTER=mock)", ErrNotImplemented)
	default:
		return nil, fmt.Errorf("unknown onchain adapter %q: supported values are mock, soroban", name)
	}
}
