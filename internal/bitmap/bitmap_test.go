// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetTestClear(t *testing.T) {
	b := New(10)
	assert.False(t, b.Test(3))
	b.Set(3)
	assert.True(t, b.Test(3))
	b.Clear(3)
	assert.False(t, b.Test(3))
}

func TestPopCount(t *testing.T) {
	b := New(130)
	for _, i := range []int{0, 1, 63, 64, 65, 129} {
		b.Set(i)
	}
	assert.Equal(t, 6, b.PopCount())
}

func TestSliceIndependentCopy(t *testing.T) {
	b := New(16)
	b.Set(4)
	b.Set(5)
	b.Set(6)
	b.Set(7)

	s := b.Slice(4, 8)
	require.Equal(t, 4, s.Len())
	assert.Equal(t, 4, s.PopCount())

	// Mutating the source after slicing must not affect the copy.
	b.Clear(5)
	assert.True(t, s.Test(1))
}

func TestFormatContiguousAndDiscontinuous(t *testing.T) {
	b := New(16)
	for _, i := range []int{0, 1, 2, 7, 12, 13, 14} {
		b.Set(i)
	}
	assert.Equal(t, "0-2,7,12-14", b.Format())
}

func TestFormatEmpty(t *testing.T) {
	b := New(8)
	assert.Equal(t, "", b.Format())
}

func TestFormatSingleBit(t *testing.T) {
	b := New(8)
	b.Set(3)
	assert.Equal(t, "3", b.Format())
}

func TestOutOfRangePanics(t *testing.T) {
	b := New(4)
	assert.Panics(t, func() { b.Set(4) })
	assert.Panics(t, func() { b.Test(-1) })
}
