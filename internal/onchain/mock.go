package onchain

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// MockAdapter satisfies the Adapter contract without any network I/O. Every
// operation succeeds and transaction hashes are derived from the inputs, so
// repeated calls with the same parameters are fully deterministic.
type MockAdapter struct{}

// NewMockAdapter builds the no-op reference adapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

// Name identifies the adapter in metrics and audit entries.
func (a *MockAdapter) Name() string { return "mock" }

// InitEscrow pretends to initialize the escrow contract.
func (a *MockAdapter) InitEscrow(_ context.Context, params InitEscrowParams) (*InitEscrowResult, error) {
	return &InitEscrowResult{
		EscrowAddress:   "ESCROW" + mockHash("escrow", params.AdminAddress)[2:34],
		TransactionHash: mockHash("init_escrow", params.AdminAddress),
		Timestamp:       time.Now().UTC(),
		Status:          StatusSuccess,
		Metadata:        map[string]string{"adapter": "mock"},
	}, nil
}

// CreateClaim pretends to create a claim package on-chain.
func (a *MockAdapter) CreateClaim(_ context.Context, params CreateClaimParams) (*CreateClaimResult, error) {
	return &CreateClaimResult{
		PackageID:       DerivePackageID(params.ClaimID),
		TransactionHash: mockHash("create_claim", params.ClaimID, params.RecipientAddress, params.Amount),
		Timestamp:       time.Now().UTC(),
		Status:          StatusSuccess,
		Metadata:        map[string]string{"adapter": "mock", "token": params.TokenAddress},
	}, nil
}

// Disburse pretends to release funds for a claim package.
func (a *MockAdapter) Disburse(_ context.Context, params DisburseParams) (*DisburseResult, error) {
	return &DisburseResult{
		TransactionHash: mockHash("disburse", params.ClaimID, params.PackageID),
		Timestamp:       time.Now().UTC(),
		Status:          StatusSuccess,
		AmountDisbursed: params.Amount,
		Metadata:        map[string]string{"adapter": "mock"},
	}, nil
}

// DerivePackageID deterministically maps a claim id onto an on-chain package
// id: sha256 of a fixed prefix plus the claim id, first 8 bytes read as an
// unsigned big-endian integer. The same claim always derives the same
// package id without a prior on-chain call.
func DerivePackageID(claimID string) string {
	sum := sha256.Sum256([]byte("package-" + claimID))
	return strconv.FormatUint(binary.BigEndian.Uint64(sum[:8]), 10)
}

func mockHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%s|", p)
	}
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
