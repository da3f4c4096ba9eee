// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package witness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/cipherpay-relayer/internal/field"
	"github.com/luxfi/cipherpay-relayer/internal/merklestore"
	"github.com/luxfi/cipherpay-relayer/internal/merkletree"
)

func newTestService(t *testing.T) (*Service, *merkletree.Tree) {
	t.Helper()
	store := merklestore.NewMemStore()
	init := merkletree.NewInitializer(store)
	require.NoError(t, init.Initialize(context.Background(), 1, 8, 32))
	tr := merkletree.New(store, 1, nil)
	return New(tr), tr
}

func TestPrepareDepositPointsAtNextIndex(t *testing.T) {
	ctx := context.Background()
	svc, tr := newTestService(t)

	_, err := tr.Append(ctx, field.FromUint64(1))
	require.NoError(t, err)

	w, err := svc.PrepareDeposit(ctx, field.FromUint64(999))
	require.NoError(t, err)
	require.Equal(t, uint64(1), w.NextLeafIndex)
	require.Len(t, w.InPathElements, 8)
}

func TestPrepareTransferIncludesBothPaths(t *testing.T) {
	ctx := context.Background()
	svc, tr := newTestService(t)

	in := field.FromUint64(42)
	_, err := tr.Append(ctx, in)
	require.NoError(t, err)

	w, err := svc.PrepareTransfer(ctx, in, field.FromUint64(43))
	require.NoError(t, err)
	require.Equal(t, uint64(1), w.NextLeafIndex)
	require.Len(t, w.InPathElements, 8)
	require.Len(t, w.Out1PathElements, 8)
}

func TestPrepareWithdrawFailsForUnknownCommitment(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.PrepareWithdraw(ctx, field.FromUint64(12345))
	require.Error(t, err)
}

func TestPrepareWithdrawFindsInclusionPath(t *testing.T) {
	ctx := context.Background()
	svc, tr := newTestService(t)

	spend := field.FromUint64(77)
	_, err := tr.Append(ctx, spend)
	require.NoError(t, err)

	w, err := svc.PrepareWithdraw(ctx, spend)
	require.NoError(t, err)
	require.Len(t, w.PathElements, 8)
}
