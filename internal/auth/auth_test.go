// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

func TestBearerAuthenticatorAcceptsExactToken(t *testing.T) {
	a := NewBearerAuthenticator("s3cr3t")
	p, err := a.Authenticate(context.Background(), Credential{BearerToken: "s3cr3t"})
	require.NoError(t, err)
	require.Equal(t, "bearer", p.Subject)
}

func TestBearerAuthenticatorRejectsWrongToken(t *testing.T) {
	a := NewBearerAuthenticator("s3cr3t")
	_, err := a.Authenticate(context.Background(), Credential{BearerToken: "wrong"})
	require.Error(t, err)
}

func TestHMACAuthenticatorAcceptsValidSignature(t *testing.T) {
	secret := "hmac-secret"
	body := []byte(`{"hello":"world"}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	a := NewHMACAuthenticator(secret)
	p, err := a.Authenticate(context.Background(), Credential{Body: body, Signature: sig})
	require.NoError(t, err)
	require.Equal(t, "hmac", p.Subject)
}

func TestHMACAuthenticatorRejectsTamperedBody(t *testing.T) {
	secret := "hmac-secret"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(`{"hello":"world"}`))
	sig := hex.EncodeToString(mac.Sum(nil))

	a := NewHMACAuthenticator(secret)
	_, err := a.Authenticate(context.Background(), Credential{Body: []byte(`{"hello":"tampered"}`), Signature: sig})
	require.Error(t, err)
}

func TestJWTAuthenticatorAcceptsValidToken(t *testing.T) {
	secret := "jwt-secret"
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, relayerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "client-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	a := NewJWTAuthenticator(secret)
	p, err := a.Authenticate(context.Background(), Credential{JWT: signed})
	require.NoError(t, err)
	require.Equal(t, "client-42", p.Subject)
}

func TestJWTAuthenticatorRejectsExpiredToken(t *testing.T) {
	secret := "jwt-secret"
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, relayerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "client-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	a := NewJWTAuthenticator(secret)
	_, err = a.Authenticate(context.Background(), Credential{JWT: signed})
	require.Error(t, err)
}
