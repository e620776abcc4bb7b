// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth mints the bearer tokens the sync transport attaches to every
// request. Tokens are HS256 JWTs carrying the user id in the standard sub
// claim and the device id in a private claim.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims for single-user multi-device sync.
type Claims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// TokenSource issues short-lived signed tokens on demand. A fresh token is
// minted per call; the transport caches nothing so expiry never races a
// long-running session.
type TokenSource struct {
	secret   []byte
	userID   string
	deviceID string
	ttl      time.Duration
}

func NewTokenSource(secret, userID, deviceID string, ttl time.Duration) *TokenSource {
	return &TokenSource{
		secret:   []byte(secret),
		userID:   userID,
		deviceID: deviceID,
		ttl:      ttl,
	}
}

// Token signs and returns a fresh JWT. It satisfies fitsync.TokenFunc.
func (t *TokenSource) Token(_ context.Context) (string, error) {
	now := time.Now()
	claims := &Claims{
		DeviceID: t.deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "fitlog",
			Subject:   t.userID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string, returning its claims. Used by
// tests and local tooling; the production server does its own verification.
func Verify(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
