// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package buffer implements a typed byte-buffer packer: a
// small, explicit binary encoding used for both the job credential
// body and the broadcast credential body. The signing backend only
// signs and verifies the bytes this packer produces; this packer exists
// so "sign the body, not the signature" can be expressed without
// involving the backend at all.
package buffer

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Buffer is a growable pack cursor on write, and a bounds-checked read
// cursor on unpack.
type Buffer struct {
	data []byte
	pos  int
}

// New returns an empty Buffer ready for packing, pre-sized to n bytes.
func New(n int) *Buffer {
	return &Buffer{data: make([]byte, 0, n)}
}

// FromBytes wraps buf for unpacking; it does not copy buf.
func FromBytes(buf []byte) *Buffer {
	return &Buffer{data: buf}
}

// Bytes returns the packed bytes written so far.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Remaining reports how many unread bytes remain after Pos.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.pos
}

// PackTime packs a unix timestamp as an 8-byte big-endian int64.
func (b *Buffer) PackTime(t time.Time) {
	b.Pack64(uint64(t.Unix()))
}

// UnpackTime is the mirror of PackTime.
func (b *Buffer) UnpackTime() (time.Time, error) {
	v, err := b.Unpack64()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(v), 0).UTC(), nil
}

// Pack16 packs a uint16 as 2 big-endian bytes, used for the two-byte
// protocol-version tag carried with every packed credential.
func (b *Buffer) Pack16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.data = append(b.data, tmp[:]...)
}

// Unpack16 is the mirror of Pack16.
func (b *Buffer) Unpack16() (uint16, error) {
	if b.Remaining() < 2 {
		return 0, fmt.Errorf("buffer: short read unpacking uint16, need 2 have %d", b.Remaining())
	}
	v := binary.BigEndian.Uint16(b.data[b.pos : b.pos+2])
	b.pos += 2
	return v, nil
}

// Pack32 packs a uint32 as 4 big-endian bytes.
func (b *Buffer) Pack32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.data = append(b.data, tmp[:]...)
}

// Unpack32 is the mirror of Pack32.
func (b *Buffer) Unpack32() (uint32, error) {
	if b.Remaining() < 4 {
		return 0, fmt.Errorf("buffer: short read unpacking uint32, need 4 have %d", b.Remaining())
	}
	v := binary.BigEndian.Uint32(b.data[b.pos : b.pos+4])
	b.pos += 4
	return v, nil
}

// Pack64 packs a uint64 as 8 big-endian bytes.
func (b *Buffer) Pack64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.data = append(b.data, tmp[:]...)
}

// Unpack64 is the mirror of Pack64.
func (b *Buffer) Unpack64() (uint64, error) {
	if b.Remaining() < 8 {
		return 0, fmt.Errorf("buffer: short read unpacking uint64, need 8 have %d", b.Remaining())
	}
	v := binary.BigEndian.Uint64(b.data[b.pos : b.pos+8])
	b.pos += 8
	return v, nil
}

// PackStr packs a length-prefixed UTF-8 string.
func (b *Buffer) PackStr(s string) {
	b.Pack32(uint32(len(s)))
	b.data = append(b.data, s...)
}

// UnpackStr is the mirror of PackStr.
func (b *Buffer) UnpackStr() (string, error) {
	n, err := b.Unpack32()
	if err != nil {
		return "", err
	}
	if b.Remaining() < int(n) {
		return "", fmt.Errorf("buffer: short read unpacking string, need %d have %d", n, b.Remaining())
	}
	s := string(b.data[b.pos : b.pos+int(n)])
	b.pos += int(n)
	return s, nil
}

// PackArray packs a slice of uint32 values as a count followed by each
// element, matching how gids[] is carried in the broadcast body.
func (b *Buffer) PackArray(vals []uint32) {
	b.Pack32(uint32(len(vals)))
	for _, v := range vals {
		b.Pack32(v)
	}
}

// UnpackArray is the mirror of PackArray.
func (b *Buffer) UnpackArray() ([]uint32, error) {
	n, err := b.Unpack32()
	if err != nil {
		return nil, err
	}
	vals := make([]uint32, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := b.Unpack32()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// Pack64Array packs a slice of uint64 values as a count followed by
// each element, used to serialize a bitmap's backing words.
func (b *Buffer) Pack64Array(vals []uint64) {
	b.Pack32(uint32(len(vals)))
	for _, v := range vals {
		b.Pack64(v)
	}
}

// Unpack64Array is the mirror of Pack64Array.
func (b *Buffer) Unpack64Array() ([]uint64, error) {
	n, err := b.Unpack32()
	if err != nil {
		return nil, err
	}
	vals := make([]uint64, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := b.Unpack64()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}
