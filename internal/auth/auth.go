// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auth implements the three authentication schemes spec.md §4.10
// names: bearer-token equality, signed-JWT verification, and HMAC over the
// raw request body.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	"github.com/luxfi/cipherpay-relayer/internal/apperr"
)

// Principal identifies the caller a credential resolved to.
type Principal struct {
	Subject string
}

// Authenticator produces a Principal from a request's credential material,
// or an AuthFailure error.
type Authenticator interface {
	// Authenticate checks the given credential (bearer token string, JWT
	// string, or raw body + signature header depending on scheme) and
	// returns the resolved Principal.
	Authenticate(ctx context.Context, req Credential) (Principal, error)
}

// Credential carries whichever fields the configured scheme needs; HTTP
// middleware populates only the fields relevant to the active scheme.
type Credential struct {
	BearerToken string
	JWT         string
	Body        []byte
	Signature   string // hex-encoded HMAC-SHA256
}

// BearerAuthenticator checks the presented token for exact equality against
// a single configured token.
type BearerAuthenticator struct {
	token string
}

func NewBearerAuthenticator(token string) *BearerAuthenticator {
	return &BearerAuthenticator{token: token}
}

func (a *BearerAuthenticator) Authenticate(_ context.Context, c Credential) (Principal, error) {
	if c.BearerToken == "" || subtle.ConstantTimeCompare([]byte(c.BearerToken), []byte(a.token)) != 1 {
		return Principal{}, apperr.New(apperr.AuthFailure, "invalid bearer token")
	}
	return Principal{Subject: "bearer"}, nil
}

// JWTAuthenticator verifies an HMAC-signed JWT using golang-jwt/jwt/v4.
type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

type relayerClaims struct {
	jwt.RegisteredClaims
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, c Credential) (Principal, error) {
	if c.JWT == "" {
		return Principal{}, apperr.New(apperr.AuthFailure, "missing bearer JWT")
	}

	claims := &relayerClaims{}
	token, err := jwt.ParseWithClaims(c.JWT, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, apperr.Wrap(apperr.AuthFailure, "invalid JWT", err)
	}

	return Principal{Subject: claims.Subject}, nil
}

// HMACAuthenticator checks an HMAC-SHA256 signature over the raw request
// body against a shared secret, per spec.md's "HMAC over the raw request
// body" scheme.
type HMACAuthenticator struct {
	secret []byte
}

func NewHMACAuthenticator(secret string) *HMACAuthenticator {
	return &HMACAuthenticator{secret: []byte(secret)}
}

func (a *HMACAuthenticator) Authenticate(_ context.Context, c Credential) (Principal, error) {
	if c.Signature == "" {
		return Principal{}, apperr.New(apperr.AuthFailure, "missing HMAC signature")
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write(c.Body)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(c.Signature)
	if err != nil || !hmac.Equal(expected, got) {
		return Principal{}, apperr.New(apperr.AuthFailure, "HMAC signature mismatch")
	}

	return Principal{Subject: "hmac"}, nil
}
