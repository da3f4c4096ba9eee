// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package merkletree implements the canonical tree service (C4): a thin,
// typed facade over internal/merklestore that adds field validation and
// commitment lookup, plus the one-shot tree initializer (C5).
package merkletree

import (
	"context"
	"fmt"

	"github.com/luxfi/cipherpay-relayer/internal/apperr"
	"github.com/luxfi/cipherpay-relayer/internal/field"
	"github.com/luxfi/cipherpay-relayer/internal/merklestore"
	"github.com/luxfi/cipherpay-relayer/internal/metrics"
)

// Tree is the canonical tree service (C4). It holds a tree_id and the
// underlying store, and never mutates anything the store doesn't also
// expose directly — it exists purely to centralize validation and the
// by-commitment lookup path that spec.md §4.4 specifies.
type Tree struct {
	store  merklestore.Store
	treeID uint32
	m      *metrics.Registry
}

// New builds a Tree bound to treeID over store. m may be nil in tests.
func New(store merklestore.Store, treeID uint32, m *metrics.Registry) *Tree {
	return &Tree{store: store, treeID: treeID, m: m}
}

// Append validates fe and appends it to the tree, returning the leaf index
// it was written to. fe is always already field-reduced (fr.Element's
// SetBytes/SetBigInt reduce mod p on construction), so no explicit range
// check is needed beyond that construction step.
func (t *Tree) Append(ctx context.Context, fe field.FE) (uint64, error) {
	idx, err := t.store.AppendAndRecompute(ctx, t.treeID, fe)
	if err != nil {
		return 0, apperr.Wrap(apperr.StorageFailure, "append leaf", err)
	}
	if t.m != nil {
		t.m.MerkleAppendTotal.Inc()
	}
	return idx, nil
}

// GetRoot returns the tree's current root.
func (t *Tree) GetRoot(ctx context.Context) (field.FE, error) {
	root, err := t.store.GetRoot(ctx, t.treeID)
	if err != nil {
		return field.FE{}, apperr.Wrap(apperr.StorageFailure, "get root", err)
	}
	return root, nil
}

// GetRootAndIndex returns the current root together with the next free
// leaf index, as a single read for callers (the witness service) that need
// both values from a consistent snapshot.
func (t *Tree) GetRootAndIndex(ctx context.Context) (field.FE, uint64, error) {
	root, err := t.GetRoot(ctx)
	if err != nil {
		return field.FE{}, 0, err
	}
	next, err := t.store.GetNextIndex(ctx, t.treeID)
	if err != nil {
		return field.FE{}, 0, apperr.Wrap(apperr.StorageFailure, "get next index", err)
	}
	return root, next, nil
}

// GetPathByIndex returns the sibling path from leaf i to the root.
func (t *Tree) GetPathByIndex(ctx context.Context, index uint64) (merklestore.Path, error) {
	p, err := t.store.GetPathByIndex(ctx, t.treeID, index)
	if err != nil {
		return merklestore.Path{}, apperr.Wrap(apperr.StorageFailure, "get path by index", err)
	}
	return p, nil
}

// GetPathByCommitment locates commitment via the fe_hex index and returns
// its sibling path, failing with NotFound if the commitment never landed
// in the tree.
func (t *Tree) GetPathByCommitment(ctx context.Context, commitment field.FE) (merklestore.Path, uint64, error) {
	idx, ok, err := t.store.FindLeafIndex(ctx, t.treeID, commitment)
	if err != nil {
		return merklestore.Path{}, 0, apperr.Wrap(apperr.StorageFailure, "find leaf index", err)
	}
	if !ok {
		return merklestore.Path{}, 0, apperr.New(apperr.NotFound, "commitment not found in tree")
	}
	p, err := t.GetPathByIndex(ctx, idx)
	if err != nil {
		return merklestore.Path{}, 0, err
	}
	return p, idx, nil
}

// RecordLedgerDeposit applies a ledger-authoritative deposit commitment at
// insertIndex, recomputing the path and adopting newRoot regardless of
// whether the recomputation agrees. Returns diverged=true when it doesn't,
// so the reconciler can surface merkle_divergence_total (spec.md §4.9 step
// 6/8).
func (t *Tree) RecordLedgerDeposit(ctx context.Context, insertIndex uint64, commitment, newRoot field.FE, nextLeafIndex uint64) (bool, error) {
	diverged, err := t.store.RecordLedgerDeposit(ctx, t.treeID, insertIndex, commitment, newRoot, nextLeafIndex)
	if err != nil {
		return false, apperr.Wrap(apperr.StorageFailure, "record ledger deposit", err)
	}
	if diverged && t.m != nil {
		t.m.MerkleDivergenceTotal.Inc()
	}
	if t.m != nil {
		t.m.MerkleAppendTotal.Inc()
	}
	return diverged, nil
}

// GetDepth returns the configured tree depth.
func (t *Tree) GetDepth(ctx context.Context) (uint8, error) {
	d, err := t.store.GetDepth(ctx, t.treeID)
	if err != nil {
		return 0, fmt.Errorf("merkletree: get depth: %w", err)
	}
	return d, nil
}
