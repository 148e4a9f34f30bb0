// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package bitmap implements the small, fixed-width-word bitmap the
// credential subsystem projects per node: a global
// core bitmap addressed by bit index, sliceable into the half-open
// range belonging to one node, and renderable as a comma-separated
// range list.
//
// No third-party bitmap library (RoaringBitmap/roaring,
// bits-and-blooms/bitset) appears in any full example repo's go.mod --
// only in unreviewed dependency manifests with no accompanying code --
// so this stays on math/bits over a 64-bit word array, in the style of
// gravwell's ipexist word-backed IP bitmap.
package bitmap

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

const wordBits = 64

// Bitmap is a fixed-length bitmap addressed by bit index 0..Len()-1.
type Bitmap struct {
	words []uint64
	n     int
}

// New allocates a zeroed bitmap with room for n bits.
func New(n int) *Bitmap {
	if n < 0 {
		n = 0
	}
	return &Bitmap{
		words: make([]uint64, (n+wordBits-1)/wordBits),
		n:     n,
	}
}

// Len returns the number of addressable bits.
func (b *Bitmap) Len() int {
	return b.n
}

// Test reports whether bit i is set. It panics if i is out of range,
// matching bit_test's contract of operating only on valid indices.
func (b *Bitmap) Test(i int) bool {
	b.checkIndex(i)
	return b.words[i/wordBits]&(uint64(1)<<uint(i%wordBits)) != 0
}

// Set sets bit i.
func (b *Bitmap) Set(i int) {
	b.checkIndex(i)
	b.words[i/wordBits] |= uint64(1) << uint(i%wordBits)
}

// Clear clears bit i.
func (b *Bitmap) Clear(i int) {
	b.checkIndex(i)
	b.words[i/wordBits] &^= uint64(1) << uint(i%wordBits)
}

func (b *Bitmap) checkIndex(i int) {
	if i < 0 || i >= b.n {
		panic(fmt.Sprintf("bitmap: index %d out of range [0,%d)", i, b.n))
	}
}

// PopCount returns the number of set bits.
func (b *Bitmap) PopCount() int {
	count := 0
	for _, w := range b.words {
		count += bits.OnesCount64(w)
	}
	return count
}

// Slice copies bits [first, last) into a freshly allocated bitmap of
// length last-first, matching the projector's need to hand callers an
// independent copy they may keep using after releasing the source
// credential's read lock.
func (b *Bitmap) Slice(first, last int) *Bitmap {
	if first < 0 {
		first = 0
	}
	if last > b.n {
		last = b.n
	}
	if last < first {
		last = first
	}
	out := New(last - first)
	for i := first; i < last; i++ {
		if b.Test(i) {
			out.Set(i - first)
		}
	}
	return out
}

// Words returns the bitmap's backing words, most-significant bit of
// the last word unused beyond Len(). Used to serialize a bitmap into
// the packed credential body; callers must not mutate the result.
func (b *Bitmap) Words() []uint64 {
	return b.words
}

// FromWords reconstructs a bitmap of n bits from words previously
// returned by Words, the mirror operation used on unpack.
func FromWords(words []uint64, n int) *Bitmap {
	out := New(n)
	copy(out.words, words)
	return out
}

// Format renders the bitmap as a comma-separated range list, e.g.
// "0-2,7,12-14", matching bit_fmt: ranges of length 1 are rendered as
// a bare number, and the brackets bit_fmt_hexmask-style callers expect
// around a discontinuous set are the caller's concern, not this
// function's -- brackets are stripped here.
func (b *Bitmap) Format() string {
	var ranges []string
	i := 0
	for i < b.n {
		if !b.Test(i) {
			i++
			continue
		}
		start := i
		for i < b.n && b.Test(i) {
			i++
		}
		end := i - 1
		if start == end {
			ranges = append(ranges, strconv.Itoa(start))
		} else {
			ranges = append(ranges, fmt.Sprintf("%d-%d", start, end))
		}
	}
	return strings.Join(ranges, ",")
}
