// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package binio

// BitWriter packs booleans MSB first into whole bytes.
type BitWriter struct {
	w     *Writer
	cur   uint8
	count uint8
}

// NewBitWriter returns a packer writing to w.
func NewBitWriter(w *Writer) *BitWriter {
	return &BitWriter{w: w}
}

// Bool appends one bit.
func (b *BitWriter) Bool(v bool) {
	b.cur <<= 1
	if v {
		b.cur |= 1
	}
	b.count++
	if b.count == 8 {
		b.w.UByte1(b.cur)
		b.cur, b.count = 0, 0
	}
}

// Flush writes a partially filled byte, left aligned.
func (b *BitWriter) Flush() {
	if b.count == 0 {
		return
	}
	b.w.UByte1(b.cur << (8 - b.count))
	b.cur, b.count = 0, 0
}

// BitReader unpacks booleans written by BitWriter in the same order.
type BitReader struct {
	r     *Reader
	cur   uint8
	count uint8
}

// NewBitReader returns an unpacker reading from r.
func NewBitReader(r *Reader) *BitReader {
	return &BitReader{r: r}
}

// Bool returns the next bit.
func (b *BitReader) Bool() bool {
	if b.count == 0 {
		b.cur = b.r.UByte1()
		b.count = 8
	}
	v := b.cur&0x80 != 0
	b.cur <<= 1
	b.count--
	return v
}

// Reset discards the remaining bits of the current byte.
func (b *BitReader) Reset() {
	b.cur, b.count = 0, 0
}
