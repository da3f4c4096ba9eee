// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package reconciler implements the ledger event reconciler (C9): it
// subscribes to ledger program events and replays DepositCompleted events
// into the canonical tree mirror, verbatim per spec.md §4.9.
package reconciler

import (
	"context"
	"fmt"

	"github.com/luxfi/cipherpay-relayer/internal/apperr"
	"github.com/luxfi/cipherpay-relayer/internal/ledger"
	"github.com/luxfi/cipherpay-relayer/internal/logging"
	"github.com/luxfi/cipherpay-relayer/internal/merkletree"
	"github.com/luxfi/cipherpay-relayer/internal/metrics"
)

// Reconciler drains a ledger.Client's event stream and applies it to a
// merkletree.Tree.
type Reconciler struct {
	tree   *merkletree.Tree
	ledger ledger.Client
	log    logging.Logger
	m      *metrics.Registry
}

// New builds a Reconciler.
func New(tree *merkletree.Tree, lc ledger.Client, log logging.Logger, m *metrics.Registry) *Reconciler {
	return &Reconciler{tree: tree, ledger: lc, log: log, m: m}
}

// Run subscribes to r.ledger's event stream and processes events until ctx
// is canceled, matching spec.md §5's "dedicated task receiving events from
// a push subscription" scheduling model. It never returns a non-nil error
// for an individual event failure — those are logged and retried by virtue
// of the ledger continuing to redeliver until the mirror catches up; Run
// only returns when ctx is done or the event channel itself closes.
func (r *Reconciler) Run(ctx context.Context) error {
	events, err := r.ledger.Events(ctx)
	if err != nil {
		return fmt.Errorf("reconciler: subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.dispatch(ctx, ev)
		}
	}
}

func (r *Reconciler) dispatch(ctx context.Context, ev ledger.Event) {
	switch ev.Kind {
	case ledger.EventDepositCompleted:
		if err := r.RecordDeposit(ctx, *ev.Deposit); err != nil {
			if r.log != nil {
				r.log.Error("reconciler: record deposit failed", logging.Err(err), logging.String("tx", ev.Deposit.TxSignature))
			}
		}
	case ledger.EventTransferCompleted:
		// Transfer events append no new tree state here; the program's own
		// accounting already reflects the transfer. Logged for audit only.
		if r.log != nil {
			r.log.Debug("reconciler: transfer completed", logging.String("tx", ev.Transfer.TxSignature))
		}
	case ledger.EventWithdrawCompleted:
		if r.log != nil {
			r.log.Debug("reconciler: withdraw completed", logging.String("tx", ev.Withdraw.TxSignature))
		}
	default:
		if r.log != nil {
			r.log.Warn("reconciler: unknown event kind", logging.String("kind", string(ev.Kind)))
		}
	}
}

// RecordDeposit implements the 8-step algorithm of spec.md §4.9.
func (r *Reconciler) RecordDeposit(ctx context.Context, ev ledger.DepositCompleted) error {
	// Step 1: decode using each field's respective encoding.
	commitment := ev.Commitment()
	oldRoot := ev.OldRoot()
	newRoot := ev.NewRoot()

	// Step 2: insertIndex = next_leaf_index - 1; fail on underflow.
	if ev.NextLeafIndex == 0 {
		return apperr.New(apperr.Validation, "DepositCompleted.next_leaf_index must be >= 1")
	}
	insertIndex := ev.NextLeafIndex - 1

	// Step 3: compare current mirror root to old_root, logging divergence
	// but proceeding regardless — the ledger is authoritative.
	currentRoot, err := r.tree.GetRoot(ctx)
	if err != nil {
		return fmt.Errorf("reconciler: read current root: %w", err)
	}
	if !currentRoot.Equal(oldRoot) && r.log != nil {
		r.log.Warn("reconciler: mirror root does not match event's old_root",
			logging.String("tx", ev.TxSignature))
	}

	// Steps 4-7: write leaf, climb, adopt ledger's root, advance next_index.
	diverged, err := r.tree.RecordLedgerDeposit(ctx, insertIndex, commitment, newRoot, ev.NextLeafIndex)
	if err != nil {
		return fmt.Errorf("reconciler: apply deposit at index %d: %w", insertIndex, err)
	}

	if diverged && r.log != nil {
		r.log.Error("reconciler: recomputed root diverged from ledger's new_root",
			logging.String("tx", ev.TxSignature))
	}

	return nil
}
