// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merklestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/cipherpay-relayer/internal/field"
	"github.com/luxfi/cipherpay-relayer/internal/poseidon"
)

// memStore is an in-memory Store implementation used by internal/merkletree
// tests (and this package's own concurrency tests) to exercise the append
// algorithm's locking and recomputation without a MySQL instance. It mirrors
// the map-keyed state pattern the teacher's verifier state uses, narrowed to
// a single mutex guarding the whole tree rather than per-row locks: a single
// process has no need for MySQL's row lock, only the same serialization
// guarantee it provides.
type memStore struct {
	mu sync.Mutex

	depth     map[uint32]uint8
	nextIndex map[uint32]uint64
	nextSlot  map[uint32]uint8
	root      map[uint32]field.FE
	ring      map[uint32]map[uint8]field.FE
	leaves    map[uint32]map[uint64]field.FE
	nodes     map[uint32]map[uint8]map[uint64]field.FE
	byHex     map[uint32]map[string]uint64
}

// NewMemStore returns a fresh in-memory Store, for tests only.
func NewMemStore() Store {
	return &memStore{
		depth:     make(map[uint32]uint8),
		nextIndex: make(map[uint32]uint64),
		nextSlot:  make(map[uint32]uint8),
		root:      make(map[uint32]field.FE),
		ring:      make(map[uint32]map[uint8]field.FE),
		leaves:    make(map[uint32]map[uint64]field.FE),
		nodes:     make(map[uint32]map[uint8]map[uint64]field.FE),
		byHex:     make(map[uint32]map[string]uint64),
	}
}

func (m *memStore) Close() error { return nil }

func (m *memStore) GetDepth(_ context.Context, treeID uint32) (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.depth[treeID]
	if !ok {
		return 0, ErrDepthUnset
	}
	return d, nil
}

func (m *memStore) GetNextIndex(_ context.Context, treeID uint32) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextIndex[treeID], nil
}

func (m *memStore) GetRoot(_ context.Context, treeID uint32) (field.FE, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getRootLocked(treeID)
}

func (m *memStore) getRootLocked(treeID uint32) (field.FE, error) {
	if r, ok := m.root[treeID]; ok {
		return r, nil
	}
	depth, ok := m.depth[treeID]
	if !ok {
		return field.FE{}, ErrDepthUnset
	}
	return poseidon.Zeros(depth)[depth], nil
}

func (m *memStore) GetLeaf(_ context.Context, treeID uint32, index uint64) (field.FE, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLeafLocked(treeID, index), nil
}

func (m *memStore) getLeafLocked(treeID uint32, index uint64) field.FE {
	if lm, ok := m.leaves[treeID]; ok {
		if v, ok := lm[index]; ok {
			return v
		}
	}
	return field.Zero()
}

func (m *memStore) GetNode(_ context.Context, treeID uint32, layer uint8, index uint64) (field.FE, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getNodeLocked(treeID, layer, index), nil
}

func (m *memStore) getNodeLocked(treeID uint32, layer uint8, index uint64) field.FE {
	if layer == 0 {
		return m.getLeafLocked(treeID, index)
	}
	if lm, ok := m.nodes[treeID]; ok {
		if im, ok := lm[layer]; ok {
			if v, ok := im[index]; ok {
				return v
			}
		}
	}
	depth := m.depth[treeID]
	return poseidon.Zeros(depth)[layer]
}

func (m *memStore) putLeafLocked(treeID uint32, index uint64, v field.FE) {
	if m.leaves[treeID] == nil {
		m.leaves[treeID] = make(map[uint64]field.FE)
	}
	m.leaves[treeID][index] = v
	if m.byHex[treeID] == nil {
		m.byHex[treeID] = make(map[string]uint64)
	}
	m.byHex[treeID][v.Hex()] = index
}

func (m *memStore) putNodeLocked(treeID uint32, layer uint8, index uint64, v field.FE) {
	if m.nodes[treeID] == nil {
		m.nodes[treeID] = make(map[uint8]map[uint64]field.FE)
	}
	if m.nodes[treeID][layer] == nil {
		m.nodes[treeID][layer] = make(map[uint64]field.FE)
	}
	m.nodes[treeID][layer][index] = v
}

func (m *memStore) setRootLocked(treeID uint32, v field.FE) {
	slot := m.nextSlot[treeID]
	if m.ring[treeID] == nil {
		m.ring[treeID] = make(map[uint8]field.FE)
	}
	m.ring[treeID][slot] = v
	m.nextSlot[treeID] = (slot + 1) % RingSlots
	m.root[treeID] = v
}

func (m *memStore) GetPathByIndex(_ context.Context, treeID uint32, index uint64) (Path, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	depth, ok := m.depth[treeID]
	if !ok {
		return Path{}, ErrDepthUnset
	}
	read := func(layer uint8, idx uint64) (field.FE, error) {
		return m.getNodeLocked(treeID, layer, idx), nil
	}
	return pathFor(depth, index, read)
}

func (m *memStore) FindLeafIndex(_ context.Context, treeID uint32, commitment field.FE) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hm, ok := m.byHex[treeID]
	if !ok {
		return 0, false, nil
	}
	idx, ok := hm[commitment.Hex()]
	return idx, ok, nil
}

func (m *memStore) AppendAndRecompute(_ context.Context, treeID uint32, leaf field.FE) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	depth, ok := m.depth[treeID]
	if !ok {
		return 0, ErrDepthUnset
	}
	index := m.nextIndex[treeID]
	if index >= uint64(1)<<depth {
		return 0, fmt.Errorf("merklestore: tree at tree_id=%d is full (next_index=%d, depth=%d)", treeID, index, depth)
	}

	m.putLeafLocked(treeID, index, leaf)

	read := func(layer uint8, idx uint64) (field.FE, error) {
		return m.getNodeLocked(treeID, layer, idx), nil
	}
	write := func(layer uint8, idx uint64, v field.FE) error {
		m.putNodeLocked(treeID, layer, idx, v)
		return nil
	}

	root, err := climb(depth, index, read, write)
	if err != nil {
		return 0, err
	}

	m.setRootLocked(treeID, root)
	m.nextIndex[treeID] = index + 1

	return index, nil
}

func (m *memStore) RecordLedgerDeposit(_ context.Context, treeID uint32, insertIndex uint64, commitment, newRoot field.FE, nextLeafIndex uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	depth, ok := m.depth[treeID]
	if !ok {
		return false, ErrDepthUnset
	}

	m.putLeafLocked(treeID, insertIndex, commitment)

	read := func(layer uint8, idx uint64) (field.FE, error) {
		return m.getNodeLocked(treeID, layer, idx), nil
	}
	write := func(layer uint8, idx uint64, v field.FE) error {
		m.putNodeLocked(treeID, layer, idx, v)
		return nil
	}

	recomputed, err := climb(depth, insertIndex, read, write)
	if err != nil {
		return false, err
	}

	diverged := !recomputed.Equal(newRoot)
	m.setRootLocked(treeID, newRoot)
	m.nextIndex[treeID] = nextLeafIndex

	return diverged, nil
}

func (m *memStore) InitializeTree(_ context.Context, treeID uint32, depth uint8, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.depth[treeID] = depth
	m.nextIndex[treeID] = 0
	m.nextSlot[treeID] = 0
	z := poseidon.Zeros(depth)
	m.root[treeID] = z[depth]
	m.ring[treeID] = make(map[uint8]field.FE)
	m.leaves[treeID] = make(map[uint64]field.FE)
	m.nodes[treeID] = make(map[uint8]map[uint64]field.FE)
	m.byHex[treeID] = make(map[string]uint64)

	return nil
}
