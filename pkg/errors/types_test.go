// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetsCategory(t *testing.T) {
	e := New(ErrorCodeReplayRejected, "no match")
	assert.Equal(t, ErrorCodeReplayRejected, e.Code)
	assert.Equal(t, CategoryReplay, e.Category)
	assert.Nil(t, e.Cause)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("boom")
	e := Wrap(ErrorCodeDecodeError, "bad buffer", cause)
	require.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "boom")
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(ErrorCodeCredentialExpired, "expired at t1")
	b := New(ErrorCodeCredentialExpired, "expired at t2")
	assert.True(t, stderrors.Is(a, b))

	c := New(ErrorCodeReplayRejected, "nope")
	assert.False(t, stderrors.Is(a, c))
}

func TestSentinelsMatchWrapped(t *testing.T) {
	cause := stderrors.New("hmac mismatch")
	wrapped := Wrap(ErrorCodeInvalidCredential, "verify failed", cause)
	assert.True(t, stderrors.Is(wrapped, ErrInvalidCredential))
}

func TestNumericCodeMapsToSharedTable(t *testing.T) {
	e := New(ErrorCodeReplayRejected, "no match")
	info := e.NumericInfo()
	assert.Equal(t, "REPLAY_DETECTED", info.Name)
	assert.Equal(t, "Authentication", info.Category)
}
