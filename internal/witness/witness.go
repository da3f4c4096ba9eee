// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package witness implements the read-only prepare service (C7): building
// the Merkle witnesses clients need to construct deposit, transfer, and
// withdraw proofs.
package witness

import (
	"context"

	"github.com/luxfi/cipherpay-relayer/internal/field"
	"github.com/luxfi/cipherpay-relayer/internal/merkletree"
)

// Service is the prepare/witness service (C7), bound to a single canonical
// tree. Every method is read-only: it takes no lock and mutates nothing.
type Service struct {
	tree *merkletree.Tree
}

// New builds a Service over tree.
func New(tree *merkletree.Tree) *Service {
	return &Service{tree: tree}
}

// DepositWitness is the response shape for prepare_deposit.
type DepositWitness struct {
	MerkleRoot     field.FE
	NextLeafIndex  uint64
	InPathElements []field.FE
	InPathIndices  []uint8
}

// PrepareDeposit returns the current root, the next free leaf index, and
// the append-preview Merkle path to that (currently zero) leaf, letting the
// client prove appending into a strict-synchronized tree. commitment is
// accepted for symmetry with the other prepare operations and for future
// audit logging but does not affect the response, since deposit proves
// inclusion of the *zero* leaf at the append position, not of commitment
// itself.
func (s *Service) PrepareDeposit(ctx context.Context, _ field.FE) (*DepositWitness, error) {
	root, next, err := s.tree.GetRootAndIndex(ctx)
	if err != nil {
		return nil, err
	}

	path, err := s.tree.GetPathByIndex(ctx, next)
	if err != nil {
		return nil, err
	}

	return &DepositWitness{
		MerkleRoot:     root,
		NextLeafIndex:  next,
		InPathElements: path.Elements,
		InPathIndices:  path.Bits,
	}, nil
}

// TransferWitness is the response shape for prepare_transfer.
type TransferWitness struct {
	MerkleRoot       field.FE
	InPathElements   []field.FE
	InPathIndices    []uint8
	Out1PathElements []field.FE
	Out1PathIndices  []uint8
	NextLeafIndex    uint64
}

// PrepareTransfer returns the inclusion path for inCommitment (the note
// being spent) plus the append-preview path for out1Commitment's eventual
// position, at the next free index.
func (s *Service) PrepareTransfer(ctx context.Context, inCommitment, _ field.FE) (*TransferWitness, error) {
	root, next, err := s.tree.GetRootAndIndex(ctx)
	if err != nil {
		return nil, err
	}

	inPath, _, err := s.tree.GetPathByCommitment(ctx, inCommitment)
	if err != nil {
		return nil, err
	}

	out1Path, err := s.tree.GetPathByIndex(ctx, next)
	if err != nil {
		return nil, err
	}

	return &TransferWitness{
		MerkleRoot:       root,
		InPathElements:   inPath.Elements,
		InPathIndices:    inPath.Bits,
		Out1PathElements: out1Path.Elements,
		Out1PathIndices:  out1Path.Bits,
		NextLeafIndex:    next,
	}, nil
}

// WithdrawWitness is the response shape for prepare_withdraw.
type WithdrawWitness struct {
	MerkleRoot   field.FE
	PathElements []field.FE
	PathIndices  []uint8
}

// PrepareWithdraw returns the inclusion path for the source commitment the
// nullifier spends.
func (s *Service) PrepareWithdraw(ctx context.Context, spendCommitment field.FE) (*WithdrawWitness, error) {
	root, err := s.tree.GetRoot(ctx)
	if err != nil {
		return nil, err
	}

	path, _, err := s.tree.GetPathByCommitment(ctx, spendCommitment)
	if err != nil {
		return nil, err
	}

	return &WithdrawWitness{
		MerkleRoot:   root,
		PathElements: path.Elements,
		PathIndices:  path.Bits,
	}, nil
}
