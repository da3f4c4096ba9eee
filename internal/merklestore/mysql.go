// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merklestore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/luxfi/cipherpay-relayer/internal/field"
	"github.com/luxfi/cipherpay-relayer/internal/metrics"
	"github.com/luxfi/cipherpay-relayer/internal/poseidon"
)

const (
	metaKeyDepth    = "depth"
	metaKeyNext     = "next_index"
	metaKeyRoot     = "root"
	metaKeyZero     = "zero"
	metaKeyNextSlot = "roots_next_slot"
)

// MySQLStore implements Store over a *sql.DB connection pool, grounded on
// the relational schema spec.md §6 names (merkle_meta, leaves, nodes,
// roots).
type MySQLStore struct {
	db *sql.DB
	m  *metrics.Registry
}

// Open connects to MySQL using dsn and bounds the connection pool to
// maxConns, matching spec.md §5's "fixed-size connection pool" requirement.
// m may be nil, in which case per-operation DB metrics are skipped.
func Open(dsn string, maxConns int, m *metrics.Registry) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("merklestore: open: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("merklestore: ping: %w", err)
	}
	return &MySQLStore{db: db, m: m}, nil
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// instrument runs fn, recording its outcome and latency under operation in
// DBOperationsTotal/DBOperationDuration when a metrics registry is set.
func (s *MySQLStore) instrument(operation string, fn func() error) error {
	if s.m == nil {
		return fn()
	}
	start := time.Now()
	err := fn()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.m.DBOperationsTotal.WithLabelValues(operation, outcome).Inc()
	s.m.DBOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	return err
}

// --- meta helpers -----------------------------------------------------

func getMeta(ctx context.Context, q querier, treeID uint32, key string) ([]byte, bool, error) {
	var v []byte
	err := q.QueryRowContext(ctx, `SELECT v FROM merkle_meta WHERE tree_id = ? AND k = ?`, treeID, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func setMeta(ctx context.Context, q querier, treeID uint32, key string, val []byte) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO merkle_meta (tree_id, k, v) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE v = VALUES(v)`, treeID, key, val)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *MySQLStore) GetDepth(ctx context.Context, treeID uint32) (uint8, error) {
	var depth uint8
	err := s.instrument("get_depth", func() error {
		var e error
		depth, e = getDepthTx(ctx, s.db, treeID)
		return e
	})
	return depth, err
}

func (s *MySQLStore) GetNextIndex(ctx context.Context, treeID uint32) (uint64, error) {
	var next uint64
	err := s.instrument("get_next_index", func() error {
		var e error
		next, e = getNextIndexTx(ctx, s.db, treeID)
		return e
	})
	return next, err
}

func (s *MySQLStore) GetRoot(ctx context.Context, treeID uint32) (field.FE, error) {
	var root field.FE
	err := s.instrument("get_root", func() error {
		var e error
		root, e = getRoot(ctx, s.db, treeID)
		return e
	})
	return root, err
}

func getRoot(ctx context.Context, q querier, treeID uint32) (field.FE, error) {
	if v, ok, err := getMeta(ctx, q, treeID, metaKeyRoot); err != nil {
		return field.FE{}, err
	} else if ok && len(v) == 32 {
		var b [32]byte
		copy(b[:], v)
		return field.FromBE32(b), nil
	}

	if nextSlot, ok, err := getMeta(ctx, q, treeID, metaKeyNextSlot); err != nil {
		return field.FE{}, err
	} else if ok && len(nextSlot) >= 1 {
		slot := (int(nextSlot[0]) - 1 + RingSlots) % RingSlots
		if v, ok2, err2 := getRingSlot(ctx, q, treeID, uint8(slot)); err2 != nil {
			return field.FE{}, err2
		} else if ok2 {
			return v, nil
		}
	}

	if v, ok, err := getMeta(ctx, q, treeID, metaKeyZero); err != nil {
		return field.FE{}, err
	} else if ok && len(v) == 32 {
		var b [32]byte
		copy(b[:], v)
		return field.FromBE32(b), nil
	}

	depth, err := getDepthTx(ctx, q, treeID)
	if err != nil {
		return field.FE{}, err
	}
	z := poseidon.Zeros(depth)
	return z[depth], nil
}

func getDepthTx(ctx context.Context, q querier, treeID uint32) (uint8, error) {
	v, ok, err := getMeta(ctx, q, treeID, metaKeyDepth)
	if err != nil {
		return 0, err
	}
	if !ok || len(v) < 1 {
		return 0, ErrDepthUnset
	}
	return v[0], nil
}

func getNextIndexTx(ctx context.Context, q querier, treeID uint32) (uint64, error) {
	v, ok, err := getMeta(ctx, q, treeID, metaKeyNext)
	if err != nil {
		return 0, err
	}
	if !ok || len(v) < 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(v), nil
}

func setNextIndexTx(ctx context.Context, q querier, treeID uint32, next uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, next)
	return setMeta(ctx, q, treeID, metaKeyNext, b)
}

// setRoot writes fe into the next ring slot, upserts merkle_meta.root, and
// bumps the ring pointer, all inside the caller's transaction, matching
// spec.md §4.3's atomicity requirement for root-ring writes.
func setRoot(ctx context.Context, q querier, treeID uint32, fe field.FE) error {
	nextSlotBytes, ok, err := getMeta(ctx, q, treeID, metaKeyNextSlot)
	if err != nil {
		return err
	}
	var nextSlot uint8
	if ok && len(nextSlotBytes) >= 1 {
		nextSlot = nextSlotBytes[0]
	}

	if err := putRingSlot(ctx, q, treeID, nextSlot, fe); err != nil {
		return err
	}

	be := fe.BE32()
	if err := setMeta(ctx, q, treeID, metaKeyRoot, be[:]); err != nil {
		return err
	}

	return setMeta(ctx, q, treeID, metaKeyNextSlot, []byte{(nextSlot + 1) % RingSlots})
}

func getRingSlot(ctx context.Context, q querier, treeID uint32, slot uint8) (field.FE, bool, error) {
	var v []byte
	err := q.QueryRowContext(ctx, `SELECT fe FROM roots WHERE tree_id = ? AND slot_index = ?`, treeID, slot).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return field.FE{}, false, nil
	}
	if err != nil {
		return field.FE{}, false, err
	}
	var b [32]byte
	copy(b[:], v)
	return field.FromBE32(b), true, nil
}

func putRingSlot(ctx context.Context, q querier, treeID uint32, slot uint8, fe field.FE) error {
	b := fe.BE32()
	_, err := q.ExecContext(ctx, `
		INSERT INTO roots (tree_id, slot_index, fe, fe_hex) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE fe = VALUES(fe), fe_hex = VALUES(fe_hex)`,
		treeID, slot, b[:], fe.Hex())
	return err
}

// --- leaf / node access -------------------------------------------------

func (s *MySQLStore) GetLeaf(ctx context.Context, treeID uint32, index uint64) (field.FE, error) {
	var leaf field.FE
	err := s.instrument("get_leaf", func() error {
		var e error
		leaf, e = getLeaf(ctx, s.db, treeID, index)
		return e
	})
	return leaf, err
}

func getLeaf(ctx context.Context, q querier, treeID uint32, index uint64) (field.FE, error) {
	var v []byte
	err := q.QueryRowContext(ctx, `SELECT fe FROM leaves WHERE tree_id = ? AND leaf_index = ?`, treeID, index).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return field.Zero(), nil
	}
	if err != nil {
		return field.FE{}, err
	}
	var b [32]byte
	copy(b[:], v)
	return field.FromBE32(b), nil
}

func putLeaf(ctx context.Context, q querier, treeID uint32, index uint64, fe field.FE) error {
	b := fe.BE32()
	_, err := q.ExecContext(ctx, `
		INSERT INTO leaves (tree_id, leaf_index, fe, fe_hex) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE fe = VALUES(fe), fe_hex = VALUES(fe_hex)`,
		treeID, index, b[:], fe.Hex())
	return err
}

func (s *MySQLStore) GetNode(ctx context.Context, treeID uint32, layer uint8, index uint64) (field.FE, error) {
	depth, err := s.GetDepth(ctx, treeID)
	if err != nil {
		return field.FE{}, err
	}
	var node field.FE
	err = s.instrument("get_node", func() error {
		var e error
		node, e = getNode(ctx, s.db, treeID, layer, index, depth)
		return e
	})
	return node, err
}

func getNode(ctx context.Context, q querier, treeID uint32, layer uint8, index uint64, depth uint8) (field.FE, error) {
	if layer == 0 {
		return getLeaf(ctx, q, treeID, index)
	}
	var v []byte
	err := q.QueryRowContext(ctx, `SELECT fe FROM nodes WHERE tree_id = ? AND node_layer = ? AND node_index = ?`, treeID, layer, index).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		z := poseidon.Zeros(depth)
		return z[layer], nil
	}
	if err != nil {
		return field.FE{}, err
	}
	var b [32]byte
	copy(b[:], v)
	return field.FromBE32(b), nil
}

func putNode(ctx context.Context, q querier, treeID uint32, layer uint8, index uint64, fe field.FE) error {
	b := fe.BE32()
	_, err := q.ExecContext(ctx, `
		INSERT INTO nodes (tree_id, node_layer, node_index, fe, fe_hex) VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE fe = VALUES(fe), fe_hex = VALUES(fe_hex)`,
		treeID, layer, index, b[:], fe.Hex())
	return err
}

// nodesAllRead builds the "nodes_all" view of spec.md §4.3: layer 0 reads
// leaves, layer >= 1 reads nodes, with zero-subtree fallback either way.
func nodesAllRead(ctx context.Context, q querier, treeID uint32, depth uint8) func(layer uint8, idx uint64) (field.FE, error) {
	return func(layer uint8, idx uint64) (field.FE, error) {
		return getNode(ctx, q, treeID, layer, idx, depth)
	}
}

func nodesAllWrite(ctx context.Context, q querier, treeID uint32) func(layer uint8, idx uint64, v field.FE) error {
	return func(layer uint8, idx uint64, v field.FE) error {
		return putNode(ctx, q, treeID, layer, idx, v)
	}
}

func (s *MySQLStore) GetPathByIndex(ctx context.Context, treeID uint32, index uint64) (Path, error) {
	depth, err := s.GetDepth(ctx, treeID)
	if err != nil {
		return Path{}, err
	}
	var path Path
	err = s.instrument("get_path_by_index", func() error {
		var e error
		read := nodesAllRead(ctx, s.db, treeID, depth)
		path, e = pathFor(depth, index, read)
		return e
	})
	return path, err
}

func (s *MySQLStore) FindLeafIndex(ctx context.Context, treeID uint32, commitment field.FE) (uint64, bool, error) {
	var idx uint64
	var found bool
	err := s.instrument("find_leaf_index", func() error {
		h := commitment.Hex()
		e := s.db.QueryRowContext(ctx, `SELECT leaf_index FROM leaves WHERE tree_id = ? AND fe_hex = ? LIMIT 1`, treeID, h).Scan(&idx)
		if errors.Is(e, sql.ErrNoRows) {
			return nil
		}
		if e != nil {
			return e
		}
		found = true
		return nil
	})
	return idx, found, err
}

// --- mutating, transactional operations --------------------------------

// lockNextIndex takes the row lock on merkle_meta.next_index inside tx, per
// spec.md §4.3/§5's "acquire the row lock first" discipline.
func lockNextIndex(ctx context.Context, tx *sql.Tx, treeID uint32) (uint64, error) {
	var v []byte
	err := tx.QueryRowContext(ctx, `
		SELECT v FROM merkle_meta WHERE tree_id = ? AND k = ? FOR UPDATE`, treeID, metaKeyNext).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(v) < 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(v), nil
}

func (s *MySQLStore) AppendAndRecompute(ctx context.Context, treeID uint32, leaf field.FE) (uint64, error) {
	var index uint64

	err := s.instrument("append_and_recompute", func() error {
		return withTx(ctx, s.db, func(tx *sql.Tx) error {
			i, err := lockNextIndex(ctx, tx, treeID)
			if err != nil {
				return fmt.Errorf("lock next_index: %w", err)
			}

			depth, err := getDepthTx(ctx, tx, treeID)
			if err != nil {
				return err
			}
			if i >= uint64(1)<<depth {
				return fmt.Errorf("merklestore: tree at tree_id=%d is full (next_index=%d, depth=%d)", treeID, i, depth)
			}

			if err := putLeaf(ctx, tx, treeID, i, leaf); err != nil {
				return fmt.Errorf("write leaf: %w", err)
			}

			root, err := climb(depth, i, nodesAllRead(ctx, tx, treeID, depth), nodesAllWrite(ctx, tx, treeID))
			if err != nil {
				return fmt.Errorf("climb: %w", err)
			}

			if err := setRoot(ctx, tx, treeID, root); err != nil {
				return fmt.Errorf("set root: %w", err)
			}

			if err := setNextIndexTx(ctx, tx, treeID, i+1); err != nil {
				return fmt.Errorf("set next_index: %w", err)
			}

			index = i
			return nil
		})
	})

	return index, err
}

func (s *MySQLStore) RecordLedgerDeposit(ctx context.Context, treeID uint32, insertIndex uint64, commitment, newRoot field.FE, nextLeafIndex uint64) (bool, error) {
	var diverged bool

	err := s.instrument("record_ledger_deposit", func() error {
		return withTx(ctx, s.db, func(tx *sql.Tx) error {
			if _, err := lockNextIndex(ctx, tx, treeID); err != nil {
				return fmt.Errorf("lock next_index: %w", err)
			}

			depth, err := getDepthTx(ctx, tx, treeID)
			if err != nil {
				return err
			}

			if err := putLeaf(ctx, tx, treeID, insertIndex, commitment); err != nil {
				return fmt.Errorf("write leaf: %w", err)
			}

			recomputed, err := climb(depth, insertIndex, nodesAllRead(ctx, tx, treeID, depth), nodesAllWrite(ctx, tx, treeID))
			if err != nil {
				return fmt.Errorf("climb: %w", err)
			}

			diverged = !recomputed.Equal(newRoot)

			// The ledger's root wins by policy (spec.md §4.9 step 6), even on
			// divergence.
			if err := setRoot(ctx, tx, treeID, newRoot); err != nil {
				return fmt.Errorf("set root: %w", err)
			}

			if err := setNextIndexTx(ctx, tx, treeID, nextLeafIndex); err != nil {
				return fmt.Errorf("set next_index: %w", err)
			}

			return nil
		})
	})

	return diverged, err
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// --- initialization ------------------------------------------------------

// InitializeTree implements C5: bulk-populate a fresh store with the
// zero-subtree constants for every node and leaf of a depth-D tree, inside
// one transaction, chunked at chunkSize rows per statement.
func (s *MySQLStore) InitializeTree(ctx context.Context, treeID uint32, depth uint8, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = 2000
	}

	if err := s.checkTablesExist(ctx); err != nil {
		return fmt.Errorf("merklestore: schema check failed: %w", err)
	}

	z := poseidon.Zeros(depth)

	return s.instrument("initialize_tree", func() error {
		return withTx(ctx, s.db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `SET FOREIGN_KEY_CHECKS=0`); err != nil {
				return err
			}

			depthByte := []byte{depth}
			if err := setMeta(ctx, tx, treeID, metaKeyDepth, depthByte); err != nil {
				return err
			}
			nextIdx := make([]byte, 8)
			if err := setMeta(ctx, tx, treeID, metaKeyNext, nextIdx); err != nil {
				return err
			}
			rootBE := z[depth].BE32()
			if err := setMeta(ctx, tx, treeID, metaKeyRoot, rootBE[:]); err != nil {
				return err
			}
			zeroBE := z[0].BE32()
			if err := setMeta(ctx, tx, treeID, metaKeyZero, zeroBE[:]); err != nil {
				return err
			}
			if err := setMeta(ctx, tx, treeID, metaKeyNextSlot, []byte{0}); err != nil {
				return err
			}

			// Bulk-insert internal nodes, layer by layer, chunked.
			for layer := uint8(1); layer <= depth; layer++ {
				count := uint64(1) << (depth - layer)
				if err := bulkInsertNodes(ctx, tx, treeID, layer, count, z[layer], chunkSize); err != nil {
					return fmt.Errorf("bulk insert nodes layer %d: %w", layer, err)
				}
			}

			// Bulk-insert leaves.
			leafCount := uint64(1) << depth
			if err := bulkInsertLeaves(ctx, tx, treeID, leafCount, z[0], chunkSize); err != nil {
				return fmt.Errorf("bulk insert leaves: %w", err)
			}

			if _, err := tx.ExecContext(ctx, `SET FOREIGN_KEY_CHECKS=1`); err != nil {
				return err
			}

			return verifyCounts(ctx, tx, treeID, depth)
		})
	})
}

func (s *MySQLStore) checkTablesExist(ctx context.Context) error {
	for _, table := range []string{"merkle_meta", "leaves", "nodes", "roots"} {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s LIMIT 0`, table)); err != nil {
			return fmt.Errorf("required table %q missing or inaccessible: %w", table, err)
		}
	}
	return nil
}

func bulkInsertNodes(ctx context.Context, tx *sql.Tx, treeID uint32, layer uint8, count uint64, value field.FE, chunkSize int) error {
	be := value.BE32()
	h := value.Hex()

	for start := uint64(0); start < count; start += uint64(chunkSize) {
		end := start + uint64(chunkSize)
		if end > count {
			end = count
		}

		query := `INSERT INTO nodes (tree_id, node_layer, node_index, fe, fe_hex) VALUES `
		args := make([]interface{}, 0, (end-start)*5)
		for i := start; i < end; i++ {
			if i > start {
				query += ","
			}
			query += "(?, ?, ?, ?, ?)"
			args = append(args, treeID, layer, i, be[:], h)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	return nil
}

func bulkInsertLeaves(ctx context.Context, tx *sql.Tx, treeID uint32, count uint64, value field.FE, chunkSize int) error {
	be := value.BE32()
	h := value.Hex()

	for start := uint64(0); start < count; start += uint64(chunkSize) {
		end := start + uint64(chunkSize)
		if end > count {
			end = count
		}

		query := `INSERT INTO leaves (tree_id, leaf_index, fe, fe_hex) VALUES `
		args := make([]interface{}, 0, (end-start)*4)
		for i := start; i < end; i++ {
			if i > start {
				query += ","
			}
			query += "(?, ?, ?, ?)"
			args = append(args, treeID, i, be[:], h)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	return nil
}

func verifyCounts(ctx context.Context, tx *sql.Tx, treeID uint32, depth uint8) error {
	var nodeCount, leafCount uint64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE tree_id = ?`, treeID).Scan(&nodeCount); err != nil {
		return err
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM leaves WHERE tree_id = ?`, treeID).Scan(&leafCount); err != nil {
		return err
	}

	wantNodes := (uint64(1) << depth) - 1
	wantLeaves := uint64(1) << depth
	if nodeCount != wantNodes {
		return fmt.Errorf("merklestore: node count mismatch: got %d want %d", nodeCount, wantNodes)
	}
	if leafCount != wantLeaves {
		return fmt.Errorf("merklestore: leaf count mismatch: got %d want %d", leafCount, wantLeaves)
	}
	return nil
}
