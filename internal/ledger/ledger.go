// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger implements the external ledger adapter (C10a): the
// Solana-RPC-shaped client the submit pipeline calls to append a proof, and
// the program-log event stream the reconciler subscribes to.
package ledger

import (
	"github.com/luxfi/cipherpay-relayer/internal/field"
)

// EventKind identifies which of the three program events a decoded Event
// carries.
type EventKind string

const (
	EventDepositCompleted  EventKind = "DepositCompleted"
	EventTransferCompleted EventKind = "TransferCompleted"
	EventWithdrawCompleted EventKind = "WithdrawCompleted"
)

// DepositCompleted is the event spec.md §4.9 names explicitly: the only
// event type that mutates next_index directly, since transfer/withdraw
// append no new commitment to the tree.
type DepositCompleted struct {
	DepositHash          [32]byte
	OwnerCipherpayPubkey [32]byte
	CommitmentLE         [32]byte // raw bytes as they arrive on the wire, little-endian
	OldMerkleRootBE      [32]byte
	NewMerkleRootBE      [32]byte
	NextLeafIndex        uint64 // post-increment value
	Mint                 string // base58
	TxSignature          string
}

// Commitment decodes the wire little-endian commitment into canonical FE.
func (d DepositCompleted) Commitment() field.FE { return field.FromLE32(d.CommitmentLE) }

// OldRoot decodes the wire big-endian old root into FE.
func (d DepositCompleted) OldRoot() field.FE { return field.FromBE32(d.OldMerkleRootBE) }

// NewRoot decodes the wire big-endian new root into FE.
func (d DepositCompleted) NewRoot() field.FE { return field.FromBE32(d.NewMerkleRootBE) }

// TransferCompleted carries no commitment of its own at this layer; the
// circuit already encoded the new output commitments into the same
// append-only tree via a prior/associated DepositCompleted-shaped write at
// the program level, so the reconciler only logs this event for audit.
type TransferCompleted struct {
	Nullifier        [32]byte
	Out1Commitment   [32]byte
	Out2Commitment   [32]byte
	NewMerkleRootBE  [32]byte
	TxSignature      string
}

// WithdrawCompleted carries no tree mutation; it proves a nullifier spend
// against an existing commitment.
type WithdrawCompleted struct {
	Nullifier   [32]byte
	Recipient   string // base58
	Amount      uint64
	Mint        string // base58
	TxSignature string
}

// Event is the decoded union the reconciler dispatches on.
type Event struct {
	Kind     EventKind
	Deposit  *DepositCompleted
	Transfer *TransferCompleted
	Withdraw *WithdrawCompleted
}
