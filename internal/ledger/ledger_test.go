// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/cipherpay-relayer/internal/apperr"
	"github.com/luxfi/cipherpay-relayer/internal/field"
)

func TestDepositCompletedDecodesMixedEndianness(t *testing.T) {
	commitment := field.FromUint64(0x0102030405)
	root := field.FromUint64(0xAABBCCDD)

	d := DepositCompleted{
		CommitmentLE:    commitment.LE32(),
		NewMerkleRootBE: root.BE32(),
	}

	require.True(t, d.Commitment().Equal(commitment))
	require.True(t, d.NewRoot().Equal(root))
}

func TestValidateBase58AddressRejectsWrongLength(t *testing.T) {
	err := ValidateBase58Address("1")
	require.Error(t, err)
	require.Equal(t, apperr.Validation, apperr.CodeOf(err))
}

func TestValidateBase58AddressRejectsInvalidAlphabet(t *testing.T) {
	err := ValidateBase58Address("not-valid-base58-0OIl")
	require.Error(t, err)
}

func TestParseProgramLogIgnoresUnrelatedLines(t *testing.T) {
	ev, ok, err := parseProgramLog("Program log: something unrelated happened", "sig1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, Event{}, ev)
}

func TestParseProgramLogRejectsNonPrefixedLine(t *testing.T) {
	ev, ok, err := parseProgramLog("not a program log line", "sig1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, Event{}, ev)
}
