// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package verifier implements the proof verifier (C6): a Groth16 verifier
// over BN254 backed by consensys/gnark, with one verifying key registered
// per circuit (deposit, transfer, withdraw).
package verifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"

	"github.com/luxfi/cipherpay-relayer/internal/apperr"
	"github.com/luxfi/cipherpay-relayer/internal/field"
)

// CircuitTag identifies which circuit a proof was generated against.
type CircuitTag string

const (
	CircuitDeposit  CircuitTag = "deposit"
	CircuitTransfer CircuitTag = "transfer"
	CircuitWithdraw CircuitTag = "withdraw"
)

// Verifier is the external collaborator contract of spec.md §4.6. It does
// not cache proofs and does not inspect proof internals beyond what the
// backend requires to check the pairing equation.
type Verifier interface {
	Verify(ctx context.Context, circuit CircuitTag, proof []byte, public []field.FE) (bool, error)
}

// Groth16Verifier wraps consensys/gnark's Groth16 backend, holding one
// loaded verifying key per CircuitTag, grounded on the teacher's
// VerifyingKeys map[...]*VerifyingKey registry pattern.
type Groth16Verifier struct {
	mu  sync.RWMutex
	vks map[CircuitTag]groth16.VerifyingKey
}

// NewGroth16Verifier builds an empty registry; call LoadVerifyingKey for
// each circuit before serving traffic.
func NewGroth16Verifier() *Groth16Verifier {
	return &Groth16Verifier{vks: make(map[CircuitTag]groth16.VerifyingKey)}
}

// LoadVerifyingKey reads a gnark-serialized verifying key for circuit from
// r and registers it, replacing any previously loaded key for that tag.
func (v *Groth16Verifier) LoadVerifyingKey(circuit CircuitTag, r io.Reader) error {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(r); err != nil {
		return fmt.Errorf("verifier: read verifying key for %s: %w", circuit, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.vks[circuit] = vk
	return nil
}

// Verify checks proof against the registered verifying key for circuit and
// public, the circuit's public input vector in canonical field order.
func (v *Groth16Verifier) Verify(_ context.Context, circuit CircuitTag, proofBytes []byte, public []field.FE) (bool, error) {
	v.mu.RLock()
	vk, ok := v.vks[circuit]
	v.mu.RUnlock()
	if !ok {
		return false, apperr.New(apperr.Fatal, fmt.Sprintf("no verifying key registered for circuit %q", circuit))
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return false, apperr.Wrap(apperr.InvalidProof, "malformed proof bytes", err)
	}

	publicWitness, err := buildPublicWitness(public)
	if err != nil {
		return false, apperr.Wrap(apperr.InvalidProof, "malformed public signals", err)
	}

	if err := groth16.Verify(proof, vk, publicWitness); err != nil {
		return false, nil
	}

	return true, nil
}

// buildPublicWitness constructs a gnark public witness vector directly from
// field elements, without going through a circuit assignment struct, since
// internal/verifier has no compile-time knowledge of the circuit shape —
// the relayer core only checks proofs, it never builds or compiles circuits.
func buildPublicWitness(public []field.FE) (witness.Witness, error) {
	w, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("allocate witness: %w", err)
	}

	values := make(chan any, len(public))
	go func() {
		defer close(values)
		for _, fe := range public {
			values <- fe.BigInt()
		}
	}()

	if err := w.Fill(len(public), 0, values); err != nil {
		return nil, fmt.Errorf("fill witness: %w", err)
	}

	return w, nil
}
