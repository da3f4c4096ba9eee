// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package merklestore implements the persistent store (C3): durable
// storage of tree metadata, leaves, internal nodes, and the 128-slot root
// ring, with transactional, row-locked mutation.
package merklestore

import (
	"context"
	"fmt"

	"github.com/luxfi/cipherpay-relayer/internal/field"
	"github.com/luxfi/cipherpay-relayer/internal/poseidon"
)

// RingSlots is the fixed capacity of the root history ring buffer.
const RingSlots = 128

// Path is the Merkle path returned for both inclusion proofs and
// strict-sync append-preview proofs.
type Path struct {
	Elements []field.FE
	Bits     []uint8
}

// Store is the persistent Merkle store contract (C3). Every method takes
// tree_id explicitly; implementations serialize mutating calls on a given
// tree behind a row lock on merkle_meta.next_index, per spec.md §4.3/§5.
type Store interface {
	// GetDepth returns the configured tree depth, failing if unset.
	GetDepth(ctx context.Context, treeID uint32) (uint8, error)

	// GetNextIndex returns the index of the next leaf to be written,
	// defaulting to 0 for a tree with no recorded appends.
	GetNextIndex(ctx context.Context, treeID uint32) (uint64, error)

	// GetRoot returns the current root, following the precedence spec.md
	// §4.3 specifies: merkle_meta.root, else the latest ring slot, else
	// merkle_meta.zero, else zeros(depth)[depth].
	GetRoot(ctx context.Context, treeID uint32) (field.FE, error)

	// GetLeaf returns the value at leaf index i, defaulting to zero.
	GetLeaf(ctx context.Context, treeID uint32, index uint64) (field.FE, error)

	// GetNode returns the value at (layer, index) for layer >= 1,
	// defaulting to the zero-subtree constant for that layer.
	GetNode(ctx context.Context, treeID uint32, layer uint8, index uint64) (field.FE, error)

	// GetPathByIndex returns the sibling path from leaf i to the root.
	GetPathByIndex(ctx context.Context, treeID uint32, index uint64) (Path, error)

	// FindLeafIndex locates the leaf index holding the given commitment
	// via the fe_hex index, returning ok=false if absent.
	FindLeafIndex(ctx context.Context, treeID uint32, commitment field.FE) (index uint64, ok bool, err error)

	// AppendAndRecompute performs the full append algorithm of spec.md
	// §4.3: takes the next_index row lock, writes the leaf, recomputes
	// every ancestor, advances the root ring, bumps next_index, and
	// commits atomically. Returns the index the leaf was written to.
	AppendAndRecompute(ctx context.Context, treeID uint32, leaf field.FE) (uint64, error)

	// RecordLedgerDeposit implements spec.md §4.9 steps 3-8: write the
	// commitment at insertIndex, recompute the path, and set the root to
	// the ledger's authoritative new root regardless of whether it
	// matches the recomputed value (returning diverged=true when it
	// doesn't, so the reconciler can bump merkle_divergence_total).
	RecordLedgerDeposit(ctx context.Context, treeID uint32, insertIndex uint64, commitment, newRoot field.FE, nextLeafIndex uint64) (diverged bool, err error)

	// InitializeTree performs the one-shot bulk population of C5: every
	// node and leaf set to the appropriate zero-subtree constant.
	InitializeTree(ctx context.Context, treeID uint32, depth uint8, chunkSize int) error

	// Close releases any underlying resources (connection pool, etc).
	Close() error
}

// ErrNotFound is not returned by any Store method in this package:
// FindLeafIndex reports absence as ok=false, and node/leaf reads fall back
// to the zero-subtree constant per spec.md §3 invariant 3.
var ErrNotFound = fmt.Errorf("merklestore: not found")

// ErrDepthUnset is returned by GetDepth when merkle_meta has no depth row.
var ErrDepthUnset = fmt.Errorf("merklestore: depth unset for tree")

// siblingIndex returns idx XOR 1, the sibling of idx within its layer.
func siblingIndex(idx uint64) uint64 {
	return idx ^ 1
}

// parentIndex returns idx >> 1, the parent slot one layer up.
func parentIndex(idx uint64) uint64 {
	return idx >> 1
}

// isLeftChild reports whether idx is the even (left) child of its parent.
func isLeftChild(idx uint64) bool {
	return idx&1 == 0
}

// climb recomputes every ancestor of leafIndex from leaf up to the root,
// given a read function over the existing node/leaf view (falling back to
// zero-subtree constants) and a write function for newly computed parents.
// It returns the final root value. Shared by AppendAndRecompute and
// RecordLedgerDeposit so both algorithms climb identically, as spec.md
// §4.3 step 4 and §4.9 step 5 require the same recomputation.
func climb(
	depth uint8,
	leafIndex uint64,
	read func(layer uint8, idx uint64) (field.FE, error),
	write func(layer uint8, idx uint64, v field.FE) error,
) (field.FE, error) {
	cur := leafIndex
	var parent field.FE
	for layer := uint8(0); layer < depth; layer++ {
		sib := siblingIndex(cur)
		sibVal, err := read(layer, sib)
		if err != nil {
			return field.FE{}, err
		}

		selfVal, err := read(layer, cur)
		if err != nil {
			return field.FE{}, err
		}

		if isLeftChild(cur) {
			parent = poseidon.H2(selfVal, sibVal)
		} else {
			parent = poseidon.H2(sibVal, selfVal)
		}

		pIdx := parentIndex(cur)
		if err := write(layer+1, pIdx, parent); err != nil {
			return field.FE{}, err
		}

		cur = pIdx
	}

	return parent, nil
}

// pathFor computes the sibling path from leafIndex to the root using the
// same read view climb uses, without writing anything.
func pathFor(depth uint8, leafIndex uint64, read func(layer uint8, idx uint64) (field.FE, error)) (Path, error) {
	p := Path{
		Elements: make([]field.FE, depth),
		Bits:     make([]uint8, depth),
	}

	cur := leafIndex
	for layer := uint8(0); layer < depth; layer++ {
		sib := siblingIndex(cur)
		sibVal, err := read(layer, sib)
		if err != nil {
			return Path{}, err
		}
		p.Elements[layer] = sibVal
		if isLeftChild(cur) {
			p.Bits[layer] = 0
		} else {
			p.Bits[layer] = 1
		}
		cur = parentIndex(cur)
	}

	return p, nil
}
