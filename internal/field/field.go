// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package field implements field-element conversions over the BN254 scalar
// field, with explicit big-endian and little-endian byte encoders so that
// endianness flows in the type instead of being tracked ad hoc by callers.
package field

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// FE is a canonical element of the BN254 scalar field, reduced mod p.
type FE struct {
	e fr.Element
}

// Zero is the additive identity.
func Zero() FE {
	return FE{}
}

// FromUint64 builds an FE from a small unsigned integer.
func FromUint64(v uint64) FE {
	var e fr.Element
	e.SetUint64(v)
	return FE{e: e}
}

// FromBigInt reduces x mod p and returns the resulting FE. A negative or
// over-range x is accepted and reduced; callers that need to reject
// out-of-range input should check against Modulus() first.
func FromBigInt(x *big.Int) FE {
	var e fr.Element
	e.SetBigInt(x)
	return FE{e: e}
}

// FromBE32 decodes 32 big-endian bytes into an FE, reducing mod p.
func FromBE32(b [32]byte) FE {
	var e fr.Element
	e.SetBytes(b[:])
	return FE{e: e}
}

// FromLE32 decodes 32 little-endian bytes into an FE, reducing mod p.
func FromLE32(b [32]byte) FE {
	var rev [32]byte
	for i := range b {
		rev[i] = b[31-i]
	}
	return FromBE32(rev)
}

// FromHex decodes a hex string (with or without "0x" prefix) as a
// big-endian field element.
func FromHex(s string) (FE, error) {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return FE{}, fmt.Errorf("field: invalid hex %q: %w", s, err)
	}
	var b [32]byte
	if len(raw) > 32 {
		return FE{}, fmt.Errorf("field: hex value %q exceeds 32 bytes", s)
	}
	copy(b[32-len(raw):], raw)
	return FromBE32(b), nil
}

// FromDecimalString parses a base-10 string (as used for circuit public
// signals) into an FE.
func FromDecimalString(s string) (FE, error) {
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return FE{}, fmt.Errorf("field: invalid decimal string %q", s)
	}
	return FromBigInt(x), nil
}

// BE32 encodes the canonical value as 32 big-endian bytes.
func (f FE) BE32() [32]byte {
	return f.e.Bytes()
}

// LE32 encodes the canonical value as 32 little-endian bytes.
func (f FE) LE32() [32]byte {
	be := f.e.Bytes()
	var le [32]byte
	for i := range be {
		le[i] = be[31-i]
	}
	return le
}

// Hex renders the value as a 64-character lowercase hex string, zero
// padded, with no "0x" prefix.
func (f FE) Hex() string {
	b := f.BE32()
	return hex.EncodeToString(b[:])
}

// BigInt returns the canonical value as a *big.Int in [0, p).
func (f FE) BigInt() *big.Int {
	var x big.Int
	f.e.BigInt(&x)
	return &x
}

// DecimalString renders the canonical value in base 10, the form circuit
// public signals are normalized to before ledger submission.
func (f FE) DecimalString() string {
	return f.BigInt().String()
}

// Equal reports whether f and g are the same canonical field element.
func (f FE) Equal(g FE) bool {
	return f.e.Equal(&g.e)
}

// IsZero reports whether f is the additive identity.
func (f FE) IsZero() bool {
	return f.e.IsZero()
}

// Modulus returns the BN254 scalar field modulus p.
func Modulus() *big.Int {
	return fr.Modulus()
}
