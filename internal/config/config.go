// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the relayer's configuration from environment
// variables, in the teacher's getEnv/default-value idiom.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// AuthMode selects which of the three supported authentication schemes
// internal/auth constructs.
type AuthMode string

const (
	AuthBearer AuthMode = "bearer"
	AuthJWT    AuthMode = "jwt"
	AuthHMAC   AuthMode = "hmac"
)

// Config holds every environment-sourced setting the relayer needs to run.
type Config struct {
	// MySQL connection.
	MySQLDSN      string
	MySQLMaxConns int

	// Ledger RPC.
	SolanaRPCURL  string
	ProgramID     string
	RelayerPubkey string

	// Tree parameters.
	TreeDepth     uint8
	TreeID        uint32
	BulkChunkSize int

	// Auth.
	AuthMode     AuthMode
	BearerToken  string
	JWTSecret    string
	HMACSecret   string

	// Ambient service settings.
	HTTPAddr        string
	MetricsAddr     string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Load reads Config from the process environment, applying the defaults
// spec.md §6 names: depth 16, tree id 1, chunk size 2000.
func Load() (*Config, error) {
	depth, err := getEnvUint8("CP_TREE_DEPTH", 16)
	if err != nil {
		return nil, err
	}
	treeID, err := getEnvUint32("CP_TREE_ID", 1)
	if err != nil {
		return nil, err
	}
	chunk, err := getEnvInt("CP_BULK_CHUNK_SIZE", 2000)
	if err != nil {
		return nil, err
	}
	maxConns, err := getEnvInt("MYSQL_MAX_CONNS", 16)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		MySQLDSN:        getEnv("MYSQL_DSN", mysqlDSNFromParts()),
		MySQLMaxConns:   maxConns,
		SolanaRPCURL:    getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		ProgramID:       getEnv("PROGRAM_ID", ""),
		RelayerPubkey:   getEnv("RELAYER_PUBKEY", ""),
		TreeDepth:       depth,
		TreeID:          treeID,
		BulkChunkSize:   chunk,
		AuthMode:        AuthMode(getEnv("AUTH_MODE", "bearer")),
		BearerToken:     getEnv("AUTH_BEARER_TOKEN", ""),
		JWTSecret:       getEnv("AUTH_JWT_SECRET", ""),
		HMACSecret:      getEnv("AUTH_HMAC_SECRET", ""),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:     getEnv("METRICS_ADDR", ":9090"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: shutdownTimeout,
	}

	switch cfg.AuthMode {
	case AuthBearer, AuthJWT, AuthHMAC:
	default:
		return nil, fmt.Errorf("config: unknown AUTH_MODE %q", cfg.AuthMode)
	}

	return cfg, nil
}

func mysqlDSNFromParts() string {
	host := getEnv("MYSQL_HOST", "127.0.0.1")
	port := getEnv("MYSQL_PORT", "3306")
	user := getEnv("MYSQL_USER", "root")
	pass := getEnv("MYSQL_PASSWORD", "")
	db := getEnv("MYSQL_DATABASE", "cipherpay")
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true", user, pass, host, port, db)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid int for %s: %w", key, err)
	}
	return n, nil
}

func getEnvUint8(key string, defaultValue uint8) (uint8, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("config: invalid uint8 for %s: %w", key, err)
	}
	return uint8(n), nil
}

func getEnvUint32(key string, defaultValue uint32) (uint32, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("config: invalid uint32 for %s: %w", key, err)
	}
	return uint32(n), nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration for %s: %w", key, err)
	}
	return d, nil
}
