// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package verifier

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/cipherpay-relayer/internal/apperr"
	"github.com/luxfi/cipherpay-relayer/internal/field"
)

func TestVerifyUnregisteredCircuitIsFatal(t *testing.T) {
	v := NewGroth16Verifier()
	_, err := v.Verify(context.Background(), CircuitDeposit, []byte{1, 2, 3}, []field.FE{field.FromUint64(1)})
	require.Error(t, err)
	require.Equal(t, apperr.Fatal, apperr.CodeOf(err))
}

func TestLoadVerifyingKeyRejectsMalformedBytes(t *testing.T) {
	v := NewGroth16Verifier()
	err := v.LoadVerifyingKey(CircuitDeposit, bytes.NewReader([]byte("not a real verifying key")))
	require.Error(t, err)
}

func TestVerifyRejectsMalformedProofBytes(t *testing.T) {
	v := NewGroth16Verifier()
	v.vks[CircuitDeposit] = nil // placeholder registration so Verify reaches proof parsing
	_, err := v.Verify(context.Background(), CircuitDeposit, []byte{0xff, 0xff}, nil)
	require.Error(t, err)
	require.Equal(t, apperr.InvalidProof, apperr.CodeOf(err))
}
