// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	source := NewTokenSource("secret", "user1", "device-a", time.Minute)

	signed, err := source.Token(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := Verify("secret", signed)
	require.NoError(t, err)
	require.Equal(t, "user1", claims.Subject)
	require.Equal(t, "device-a", claims.DeviceID)
	require.Equal(t, "fitlog", claims.Issuer)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	source := NewTokenSource("secret", "user1", "device-a", time.Minute)
	signed, err := source.Token(context.Background())
	require.NoError(t, err)

	_, err = Verify("other", signed)
	require.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	source := NewTokenSource("secret", "user1", "device-a", -time.Minute)
	signed, err := source.Token(context.Background())
	require.NoError(t, err)

	_, err = Verify("secret", signed)
	require.Error(t, err)
}
