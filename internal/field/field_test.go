// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package field

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBE32RoundTrip(t *testing.T) {
	f := FromUint64(42)
	got := FromBE32(f.BE32())
	require.True(t, f.Equal(got))
}

func TestLE32RoundTrip(t *testing.T) {
	f := FromUint64(123456789)
	got := FromLE32(f.LE32())
	require.True(t, f.Equal(got))
}

func TestBEAndLEDiffer(t *testing.T) {
	f := FromUint64(256) // second byte set, so BE/LE encodings are distinct
	require.NotEqual(t, f.BE32(), f.LE32())
}

func TestHexInjective(t *testing.T) {
	a := FromUint64(1)
	b := FromUint64(2)
	require.NotEqual(t, a.Hex(), b.Hex())
	require.Len(t, a.Hex(), 64)
}

func TestFromHexRoundTrip(t *testing.T) {
	f := FromUint64(0xdeadbeef)
	parsed, err := FromHex(f.Hex())
	require.NoError(t, err)
	require.True(t, f.Equal(parsed))

	parsed2, err := FromHex("0x" + f.Hex())
	require.NoError(t, err)
	require.True(t, f.Equal(parsed2))
}

func TestFromDecimalString(t *testing.T) {
	f, err := FromDecimalString("42")
	require.NoError(t, err)
	require.True(t, f.Equal(FromUint64(42)))
	require.Equal(t, "42", f.DecimalString())

	_, err = FromDecimalString("not-a-number")
	require.Error(t, err)
}

func TestReductionAboveModulus(t *testing.T) {
	p := Modulus()
	above := new(big.Int).Add(p, big.NewInt(7))
	f := FromBigInt(above)
	require.True(t, f.Equal(FromUint64(7)))
}

func TestZeroIsZero(t *testing.T) {
	require.True(t, Zero().IsZero())
	require.False(t, FromUint64(1).IsZero())
}
