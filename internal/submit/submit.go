// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package submit implements the submit pipeline (C8): validate, normalize,
// verify, submit to the ledger, return — for deposit, transfer, and
// withdraw. The pipeline never mutates the tree; the ledger authoritatively
// appends, and internal/reconciler updates the mirror once the event
// arrives.
package submit

import (
	"context"

	"github.com/luxfi/cipherpay-relayer/internal/apperr"
	"github.com/luxfi/cipherpay-relayer/internal/field"
	"github.com/luxfi/cipherpay-relayer/internal/ledger"
	"github.com/luxfi/cipherpay-relayer/internal/verifier"
)

// Pipeline wires the proof verifier and ledger client together.
type Pipeline struct {
	verifier verifier.Verifier
	ledger   ledger.Client
}

// New builds a Pipeline.
func New(v verifier.Verifier, l ledger.Client) *Pipeline {
	return &Pipeline{verifier: v, ledger: l}
}

// Result is the {ok, accepted, txSignature} response shape spec.md §6
// specifies for every submit endpoint.
type Result struct {
	OK          bool
	Accepted    bool
	TxSignature string
}

// DepositRequest is the request shape for submit_deposit.
type DepositRequest struct {
	Proof         []byte
	PublicSignals []field.FE
	DepositHash   [32]byte
	Commitment    field.FE
	Amount        uint64
	TokenMint     string
	Memo          string
}

// SubmitDeposit runs the 5-step pipeline of spec.md §4.8 for a deposit.
func (p *Pipeline) SubmitDeposit(ctx context.Context, req DepositRequest) (Result, error) {
	if err := validateDeposit(req); err != nil {
		return Result{}, err
	}

	ok, err := p.verifier.Verify(ctx, verifier.CircuitDeposit, req.Proof, req.PublicSignals)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, apperr.New(apperr.InvalidProof, "deposit proof failed verification")
	}

	publicBytes := encodePublicSignals(req.PublicSignals)
	sig, err := p.ledger.SubmitDeposit(ctx, req.Proof, publicBytes, req.DepositHash, req.Commitment, req.TokenMint, req.Amount)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.LedgerFailure, "submit deposit", err)
	}

	return Result{OK: true, Accepted: true, TxSignature: sig}, nil
}

var zero32 [32]byte

func validateDeposit(req DepositRequest) error {
	if len(req.Proof) == 0 {
		return apperr.New(apperr.Validation, "missing proof")
	}
	if len(req.PublicSignals) != 7 {
		return apperr.New(apperr.Validation, "deposit requires exactly 7 public signals")
	}
	if req.DepositHash == zero32 {
		return apperr.New(apperr.Validation, "missing deposit hash")
	}
	if req.Commitment.IsZero() {
		return apperr.New(apperr.Validation, "missing commitment")
	}
	if req.TokenMint == "" {
		return apperr.New(apperr.Validation, "missing token mint")
	}
	return nil
}

// TransferRequest is the request shape for submit_transfer.
type TransferRequest struct {
	Proof          []byte
	PublicSignals  []field.FE
	Nullifier      [32]byte
	Out1Commitment field.FE
	Out2Commitment field.FE
}

// SubmitTransfer runs the 5-step pipeline for a transfer.
func (p *Pipeline) SubmitTransfer(ctx context.Context, req TransferRequest) (Result, error) {
	if len(req.Proof) == 0 {
		return Result{}, apperr.New(apperr.Validation, "missing proof")
	}
	if len(req.PublicSignals) == 0 {
		return Result{}, apperr.New(apperr.Validation, "missing public signals")
	}
	if req.Nullifier == zero32 {
		return Result{}, apperr.New(apperr.Validation, "missing nullifier")
	}
	if req.Out1Commitment.IsZero() || req.Out2Commitment.IsZero() {
		return Result{}, apperr.New(apperr.Validation, "missing out1/out2 commitment")
	}

	ok, err := p.verifier.Verify(ctx, verifier.CircuitTransfer, req.Proof, req.PublicSignals)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, apperr.New(apperr.InvalidProof, "transfer proof failed verification")
	}

	publicBytes := encodePublicSignals(req.PublicSignals)
	sig, err := p.ledger.SubmitTransfer(ctx, req.Proof, publicBytes, req.Nullifier, req.Out1Commitment, req.Out2Commitment)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.LedgerFailure, "submit transfer", err)
	}

	return Result{OK: true, Accepted: true, TxSignature: sig}, nil
}

// WithdrawRequest is the request shape for submit_withdraw.
type WithdrawRequest struct {
	Proof         []byte
	PublicSignals []field.FE
	Nullifier     [32]byte
	Recipient     string
	Amount        uint64
	Mint          string
}

// SubmitWithdraw runs the 5-step pipeline for a withdrawal.
func (p *Pipeline) SubmitWithdraw(ctx context.Context, req WithdrawRequest) (Result, error) {
	if len(req.Proof) == 0 {
		return Result{}, apperr.New(apperr.Validation, "missing proof")
	}
	if len(req.PublicSignals) == 0 {
		return Result{}, apperr.New(apperr.Validation, "missing public signals")
	}
	if req.Recipient == "" || req.Mint == "" {
		return Result{}, apperr.New(apperr.Validation, "missing recipient or mint")
	}
	if req.Nullifier == zero32 {
		return Result{}, apperr.New(apperr.Validation, "missing nullifier")
	}

	ok, err := p.verifier.Verify(ctx, verifier.CircuitWithdraw, req.Proof, req.PublicSignals)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, apperr.New(apperr.InvalidProof, "withdraw proof failed verification")
	}

	publicBytes := encodePublicSignals(req.PublicSignals)
	sig, err := p.ledger.SubmitWithdraw(ctx, req.Proof, publicBytes, req.Nullifier, req.Recipient, req.Mint, req.Amount)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.LedgerFailure, "submit withdraw", err)
	}

	return Result{OK: true, Accepted: true, TxSignature: sig}, nil
}

// NormalizePublicSignals renders publicSignals in decimal string form, the
// representation the ledger program's IDL expects for numeric instruction
// arguments. The Submit* methods do not call it: they hand the verifier the
// signals as field elements and the ledger client their big-endian bytes
// (see encodePublicSignals).
func NormalizePublicSignals(signals []field.FE) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = s.DecimalString()
	}
	return out
}

// encodePublicSignals normalizes a public signal vector to its canonical
// big-endian byte encoding, 32 bytes per signal, matching spec.md §4.8
// step 4's "public signals = 7 x 32 bytes" shape for deposit and the same
// convention for the other two operations.
func encodePublicSignals(signals []field.FE) []byte {
	out := make([]byte, 0, len(signals)*32)
	for _, s := range signals {
		b := s.BE32()
		out = append(out, b[:]...)
	}
	return out
}
