// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkletree

import (
	"context"
	"fmt"

	"github.com/luxfi/cipherpay-relayer/internal/merklestore"
)

// Initializer performs the one-shot bulk population of a fresh store (C5).
type Initializer struct {
	store merklestore.Store
}

// NewInitializer builds an Initializer over store.
func NewInitializer(store merklestore.Store) *Initializer {
	return &Initializer{store: store}
}

// Initialize populates treeID with a depth-d tree of all-zero leaves and
// zero-subtree internal nodes, chunking bulk inserts at chunkSize rows per
// statement, per spec.md §4.5.
func (init *Initializer) Initialize(ctx context.Context, treeID uint32, depth uint8, chunkSize int) error {
	if depth == 0 || depth > 32 {
		return fmt.Errorf("merkletree: refusing to initialize tree_id=%d with depth=%d", treeID, depth)
	}
	if err := init.store.InitializeTree(ctx, treeID, depth, chunkSize); err != nil {
		return fmt.Errorf("merkletree: initialize tree_id=%d depth=%d: %w", treeID, depth, err)
	}
	return nil
}
