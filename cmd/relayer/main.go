// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command relayer runs the CipherPay privacy-preserving payment relayer:
// it serves Merkle witnesses, verifies Groth16 proofs, submits operations
// to the ledger program, and reconciles the off-chain tree mirror against
// on-chain deposit events.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/cipherpay-relayer/internal/app"
	"github.com/luxfi/cipherpay-relayer/internal/config"
	"github.com/luxfi/cipherpay-relayer/internal/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("relayer: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil && rt.Log != nil {
			rt.Log.Error("relayer: close store failed", logging.Err(cerr))
		}
	}()

	if err := rt.EnsureTreeInitialized(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      rt.HTTPHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		rt.Log.Info("relayer: HTTP listening", logging.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go func() {
		if err := rt.RunReconciler(ctx); err != nil && ctx.Err() == nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		rt.Log.Error("relayer: fatal component error", logging.Err(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	rt.Log.Info("relayer: shutting down")
	return srv.Shutdown(shutdownCtx)
}
