// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/cipherpay-relayer/internal/field"
	"github.com/luxfi/cipherpay-relayer/internal/ledger"
	"github.com/luxfi/cipherpay-relayer/internal/logging"
	"github.com/luxfi/cipherpay-relayer/internal/merkletree"
	"github.com/luxfi/cipherpay-relayer/internal/merklestore"
)

const testDepth = 8

func newTestTree(t *testing.T) *merkletree.Tree {
	t.Helper()
	store := merklestore.NewMemStore()
	require.NoError(t, merkletree.NewInitializer(store).Initialize(context.Background(), 1, testDepth, 32))
	return merkletree.New(store, 1, nil)
}

func depositEvent(t *testing.T, tree *merkletree.Tree, commitment field.FE) ledger.DepositCompleted {
	t.Helper()
	ctx := context.Background()

	root, next, err := tree.GetRootAndIndex(ctx)
	require.NoError(t, err)

	// Simulate the ledger program appending this commitment off-chain:
	// build what the new root would become by applying the same append the
	// reconciler will be asked to replay, against a throwaway shadow tree,
	// so the event's new_root is genuinely consistent.
	shadow := merklestore.NewMemStore()
	require.NoError(t, merkletree.NewInitializer(shadow).Initialize(ctx, 1, testDepth, 32))
	shadowTree := merkletree.New(shadow, 1, nil)
	for i := uint64(0); i < next; i++ {
		_, err := shadowTree.Append(ctx, field.FromUint64(i+1000))
		require.NoError(t, err)
	}
	_, err = shadowTree.Append(ctx, commitment)
	require.NoError(t, err)
	newRoot, err := shadowTree.GetRoot(ctx)
	require.NoError(t, err)

	return ledger.DepositCompleted{
		CommitmentLE:    commitment.LE32(),
		OldMerkleRootBE: root.BE32(),
		NewMerkleRootBE: newRoot.BE32(),
		NextLeafIndex:   next + 1,
		TxSignature:     "sig-1",
	}
}

func TestRecordDepositAppliesEventAndAdvancesIndex(t *testing.T) {
	tree := newTestTree(t)
	r := New(tree, nil, logging.NoOp(), nil)

	commitment := field.FromUint64(777)
	ev := depositEvent(t, tree, commitment)

	require.NoError(t, r.RecordDeposit(context.Background(), ev))

	_, idx, err := tree.GetPathByCommitment(context.Background(), commitment)
	require.NoError(t, err)
	require.Equal(t, uint64(0), idx)

	newRoot, next, err := tree.GetRootAndIndex(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), next)
	require.True(t, newRoot.Equal(ev.NewRoot()))
}

func TestRecordDepositRejectsZeroNextLeafIndex(t *testing.T) {
	tree := newTestTree(t)
	r := New(tree, nil, logging.NoOp(), nil)

	err := r.RecordDeposit(context.Background(), ledger.DepositCompleted{NextLeafIndex: 0})
	require.Error(t, err)
}

func TestRecordDepositAdoptsLedgerRootEvenOnDivergence(t *testing.T) {
	tree := newTestTree(t)
	r := New(tree, nil, logging.NoOp(), nil)

	commitment := field.FromUint64(42)
	ev := depositEvent(t, tree, commitment)
	// Corrupt new_root so the reconciler's own recomputation disagrees;
	// the ledger's value must still win.
	bogusRoot := field.FromUint64(999999)
	ev.NewMerkleRootBE = bogusRoot.BE32()

	require.NoError(t, r.RecordDeposit(context.Background(), ev))

	got, err := tree.GetRoot(context.Background())
	require.NoError(t, err)
	require.True(t, got.Equal(bogusRoot))
}

type noopLedger struct{}

func (noopLedger) SubmitDeposit(context.Context, []byte, []byte, [32]byte, field.FE, string, uint64) (string, error) {
	return "", nil
}
func (noopLedger) SubmitTransfer(context.Context, []byte, []byte, [32]byte, field.FE, field.FE) (string, error) {
	return "", nil
}
func (noopLedger) SubmitWithdraw(context.Context, []byte, []byte, [32]byte, string, string, uint64) (string, error) {
	return "", nil
}
func (noopLedger) Events(ctx context.Context) (<-chan ledger.Event, error) {
	ch := make(chan ledger.Event, 1)
	ch <- ledger.Event{Kind: ledger.EventTransferCompleted, Transfer: &ledger.TransferCompleted{TxSignature: "t1"}}
	close(ch)
	return ch, nil
}

func TestRunDrainsEventsUntilChannelCloses(t *testing.T) {
	tree := newTestTree(t)
	r := New(tree, noopLedger{}, logging.NoOp(), nil)
	require.NoError(t, r.Run(context.Background()))
}
