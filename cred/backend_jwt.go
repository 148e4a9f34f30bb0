// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package cred

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTBackend is a concrete Backend built on golang-jwt/jwt's HMAC
// signing method, used directly as a detached MAC primitive rather
// than through its usual claims/token envelope -- the credential
// subsystem already owns its own wire format, so only the
// library's Sign/Verify primitives are needed, the same ones
// gravwell's HTTP ingester auth package drives via
// jwt.NewWithClaims/ParseWithClaims. Key management and rotation are a
// Non-goal; the caller supplies a fixed key at construction.
type JWTBackend struct {
	method jwt.SigningMethod
	key    []byte
}

// NewJWTBackend returns a Backend signing with HMAC-SHA256 under key.
// key must be non-empty.
func NewJWTBackend(key []byte) (*JWTBackend, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("cred: jwt backend requires a non-empty key")
	}
	return &JWTBackend{method: jwt.SigningMethodHS256, key: key}, nil
}

// Name implements Backend.
func (b *JWTBackend) Name() string {
	return "jwt-hs256"
}

// Sign implements Backend.
func (b *JWTBackend) Sign(body []byte) ([]byte, error) {
	sig, err := b.method.Sign(string(body), b.key)
	if err != nil {
		return nil, fmt.Errorf("cred: jwt sign: %w", err)
	}
	return sig, nil
}

// Verify implements Backend.
func (b *JWTBackend) Verify(body, signature []byte) error {
	if err := b.method.Verify(string(body), signature, b.key); err != nil {
		return fmt.Errorf("cred: jwt verify: %w", err)
	}
	return nil
}
