// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package httpapi

import (
	"encoding/hex"
	"strings"

	"github.com/luxfi/cipherpay-relayer/internal/apperr"
	"github.com/luxfi/cipherpay-relayer/internal/field"
)

func parseFieldHex(s string) (field.FE, error) {
	if s == "" {
		return field.FE{}, apperr.New(apperr.Validation, "missing field element")
	}
	fe, err := field.FromHex(s)
	if err != nil {
		return field.FE{}, apperr.Wrap(apperr.Validation, "malformed field element hex", err)
	}
	return fe, nil
}

// parseFieldDecimal parses a base-10 field element, the encoding spec.md §6
// specifies for the prepare_deposit request body's commitment field.
func parseFieldDecimal(s string) (field.FE, error) {
	if s == "" {
		return field.FE{}, apperr.New(apperr.Validation, "missing field element")
	}
	fe, err := field.FromDecimalString(s)
	if err != nil {
		return field.FE{}, apperr.Wrap(apperr.Validation, "malformed decimal field element", err)
	}
	return fe, nil
}

// decodeHex32 decodes a fixed-size 32-byte identifier (deposit hash,
// nullifier) from hex, requiring presence and the exact length.
func decodeHex32(s string) ([32]byte, error) {
	if s == "" {
		return [32]byte{}, apperr.New(apperr.Validation, "missing identifier")
	}
	b, err := decodeHexBytes(s)
	if err != nil {
		return [32]byte{}, err
	}
	if len(b) != 32 {
		return [32]byte{}, apperr.New(apperr.Validation, "identifier must be 32 bytes")
	}
	var out [32]byte
	copy(out[:], b)
	return out, nil
}

func decodeFieldHexSlice(values []string) ([]field.FE, error) {
	out := make([]field.FE, len(values))
	for i, v := range values {
		fe, err := parseFieldHex(v)
		if err != nil {
			return nil, err
		}
		out[i] = fe
	}
	return out, nil
}

func decodeHexBytes(s string) ([]byte, error) {
	if s == "" {
		return nil, apperr.New(apperr.Validation, "missing proof bytes")
	}
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "malformed hex bytes", err)
	}
	return b, nil
}
