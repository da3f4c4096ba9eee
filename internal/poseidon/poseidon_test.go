// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package poseidon

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/cipherpay-relayer/internal/field"
)

func TestZerosDepth0(t *testing.T) {
	z := Zeros(0)
	require.Len(t, z, 1)
	require.True(t, z[0].IsZero())
}

func TestZerosRecurrence(t *testing.T) {
	z := Zeros(3)
	require.Len(t, z, 4)
	require.True(t, z[0].IsZero())
	for i := 1; i < len(z); i++ {
		require.True(t, z[i].Equal(H2(z[i-1], z[i-1])))
	}
}

func TestZerosCached(t *testing.T) {
	a := Zeros(5)
	b := Zeros(5)
	require.Equal(t, a, b)
}

func TestH2Deterministic(t *testing.T) {
	a := field.FromUint64(1)
	b := field.FromUint64(2)
	require.True(t, H2(a, b).Equal(H2(a, b)))
	require.False(t, H2(a, b).Equal(H2(b, a)))
}
