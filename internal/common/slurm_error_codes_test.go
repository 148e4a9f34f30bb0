// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetErrorInfoKnown(t *testing.T) {
	info := GetErrorInfo(int32(SlurmErrorReplayDetected))
	assert.Equal(t, "REPLAY_DETECTED", info.Name)
	assert.Equal(t, "Authentication", info.Category)
}

func TestGetErrorInfoUnknown(t *testing.T) {
	info := GetErrorInfo(9999)
	assert.Equal(t, "UNKNOWN_ERROR", info.Name)
	assert.False(t, IsKnownError(9999))
}

func TestGetErrorCategoryAndDescription(t *testing.T) {
	assert.Equal(t, "Authentication", GetErrorCategory(int32(SlurmErrorTokenExpired)))
	assert.Contains(t, GetErrorDescription(int32(SlurmErrorCredentialsInvalid)), "NOBODY")
}
