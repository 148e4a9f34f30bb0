// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package versioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatest(t *testing.T) {
	assert.Equal(t, ProtocolV1, Latest())
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported(ProtocolV1))
	assert.False(t, IsSupported(ProtocolVersion(99)))
}

func TestCompare(t *testing.T) {
	assert.Equal(t, 0, ProtocolV1.Compare(ProtocolV1))
	assert.Equal(t, -1, ProtocolV1.Compare(ProtocolVersion(2)))
	assert.Equal(t, 1, ProtocolVersion(2).Compare(ProtocolV1))
}

func TestString(t *testing.T) {
	assert.Equal(t, "v1", ProtocolV1.String())
}
