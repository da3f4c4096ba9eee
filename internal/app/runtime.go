// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package app wires every relayer component into a single explicitly
// constructed Runtime handle, matching the teacher's preference for a
// dependency-injected service struct over ambient package-level state.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/luxfi/cipherpay-relayer/internal/auth"
	"github.com/luxfi/cipherpay-relayer/internal/config"
	"github.com/luxfi/cipherpay-relayer/internal/httpapi"
	"github.com/luxfi/cipherpay-relayer/internal/ledger"
	"github.com/luxfi/cipherpay-relayer/internal/logging"
	"github.com/luxfi/cipherpay-relayer/internal/merklestore"
	"github.com/luxfi/cipherpay-relayer/internal/merkletree"
	"github.com/luxfi/cipherpay-relayer/internal/metrics"
	"github.com/luxfi/cipherpay-relayer/internal/reconciler"
	"github.com/luxfi/cipherpay-relayer/internal/submit"
	"github.com/luxfi/cipherpay-relayer/internal/verifier"
	"github.com/luxfi/cipherpay-relayer/internal/witness"
)

// Runtime holds every constructed dependency the relayer process needs,
// threaded through explicitly rather than resolved from globals.
type Runtime struct {
	Config *config.Config
	Log    logging.Logger
	Store  *merklestore.MySQLStore
	Tree   *merkletree.Tree

	Verifier    *verifier.Groth16Verifier
	Witness     *witness.Service
	Submit      *submit.Pipeline
	Ledger      ledger.Client
	Reconciler  *reconciler.Reconciler
	Auth        auth.Authenticator
	Metrics     *metrics.Registry
	HTTPHandler http.Handler
}

// Version is passed to the HTTP router as httpapi.Config.Version; set by
// the linker at release build time the way the teacher's cmd/ binaries do, defaulting to
// "dev" for local builds.
var Version = "dev"

// New constructs a Runtime from cfg: opens the MySQL store, wires the
// canonical tree, verifier, witness/submit/reconciler services, the ledger
// RPC client, the configured auth scheme, and the HTTP router. It does not
// initialize tree schema (see EnsureTreeInitialized) or start the
// reconciler loop (see RunReconciler).
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("app: build logger: %w", err)
	}

	m := metrics.New()

	store, err := merklestore.Open(cfg.MySQLDSN, cfg.MySQLMaxConns, m)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	tree := merkletree.New(store, cfg.TreeID, m)

	v := verifier.NewGroth16Verifier()

	ws := witness.New(tree)
	lc := ledger.NewRPCClient(cfg.SolanaRPCURL, cfg.ProgramID, log, m)
	sp := submit.New(v, lc)
	rec := reconciler.New(tree, lc, log, m)

	authenticator, err := buildAuthenticator(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	handler := httpapi.NewRouter(tree, ws, sp, authenticator, log, m, httpapi.Config{
		Version:       Version,
		ProgramID:     cfg.ProgramID,
		ClusterURL:    cfg.SolanaRPCURL,
		RelayerPubkey: cfg.RelayerPubkey,
	})

	return &Runtime{
		Config:      cfg,
		Log:         log,
		Store:       store,
		Tree:        tree,
		Verifier:    v,
		Witness:     ws,
		Submit:      sp,
		Ledger:      lc,
		Reconciler:  rec,
		Auth:        authenticator,
		Metrics:     m,
		HTTPHandler: handler,
	}, nil
}

func buildAuthenticator(cfg *config.Config) (auth.Authenticator, error) {
	switch cfg.AuthMode {
	case config.AuthBearer:
		return auth.NewBearerAuthenticator(cfg.BearerToken), nil
	case config.AuthJWT:
		return auth.NewJWTAuthenticator(cfg.JWTSecret), nil
	case config.AuthHMAC:
		return auth.NewHMACAuthenticator(cfg.HMACSecret), nil
	default:
		return nil, fmt.Errorf("app: unknown auth mode %q", cfg.AuthMode)
	}
}

// EnsureTreeInitialized populates the tree's schema rows on first startup.
// InitializeTree bulk-inserts every node and leaf row, so it must not run
// twice against the same tree_id; this checks merkle_meta.depth first and
// only initializes when it is unset.
func (rt *Runtime) EnsureTreeInitialized(ctx context.Context) error {
	_, err := rt.Store.GetDepth(ctx, rt.Config.TreeID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, merklestore.ErrDepthUnset) {
		return fmt.Errorf("app: check tree initialization: %w", err)
	}

	init := merkletree.NewInitializer(rt.Store)
	if err := init.Initialize(ctx, rt.Config.TreeID, rt.Config.TreeDepth, rt.Config.BulkChunkSize); err != nil {
		return fmt.Errorf("app: ensure tree initialized: %w", err)
	}
	return nil
}

// RunReconciler blocks draining ledger events into the tree mirror until
// ctx is canceled.
func (rt *Runtime) RunReconciler(ctx context.Context) error {
	return rt.Reconciler.Run(ctx)
}

// Close releases the store's connection pool.
func (rt *Runtime) Close() error {
	return rt.Store.Close()
}
