// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package poseidon provides the arity-2 Poseidon hash used by the Merkle
// accumulator, plus a process-wide cache of zero-subtree constants.
package poseidon

import (
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"

	"github.com/luxfi/cipherpay-relayer/internal/field"
)

// H2 computes the arity-2 Poseidon hash of a and b. The Merkle-Damgard
// sponge construction from gnark-crypto's poseidon2 implementation is fed
// exactly two field elements, one write per input, matching the fixed
// two-to-one compression the tree needs at every layer.
func H2(a, b field.FE) field.FE {
	h := poseidon2.NewMerkleDamgardHasher()

	abe := a.BE32()
	bbe := b.BE32()
	h.Write(abe[:])
	h.Write(bbe[:])

	return bytesToFE(h.Sum(nil))
}

func bytesToFE(b []byte) field.FE {
	var arr [32]byte
	if len(b) >= 32 {
		copy(arr[:], b[len(b)-32:])
	} else {
		copy(arr[32-len(b):], b)
	}
	return field.FromBE32(arr)
}

// zeroCache maps tree depth to the slice of zero-subtree constants
// Z[0..depth], computed lazily and cached for the process lifetime.
type zeroCache struct {
	mu    sync.Mutex
	cache map[uint8][]field.FE
}

var zeros = &zeroCache{cache: make(map[uint8][]field.FE)}

// Zeros returns Z[0..depth] where Z[0] = 0 and Z[i] = H2(Z[i-1], Z[i-1]),
// the root of an all-zero subtree of height i. Safe for concurrent use;
// initialized lazily and cached per depth for the life of the process.
func Zeros(depth uint8) []field.FE {
	zeros.mu.Lock()
	defer zeros.mu.Unlock()

	if z, ok := zeros.cache[depth]; ok {
		return z
	}

	z := make([]field.FE, depth+1)
	z[0] = field.Zero()
	for i := uint8(1); i <= depth; i++ {
		z[i] = H2(z[i-1], z[i-1])
	}
	zeros.cache[depth] = z
	return z
}
