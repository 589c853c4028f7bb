// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package binio implements the little endian primitives of the graph file
// format: fixed width integers, floats, length prefixed strings, packed
// booleans, size prefixed blocks, and the optional zstd body stream.
//
// Writer and Reader keep the first error they encounter and turn every
// subsequent call into a no-op, so callers check Err once after a batch of
// writes or reads. A truncated input surfaces as io.ErrUnexpectedEOF.
package binio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrStringTooLong is returned when a length prefix exceeds MaxStringLen.
var ErrStringTooLong = errors.New("string exceeds maximum length")

// MaxStringLen bounds length prefixes read from untrusted input.
const MaxStringLen = 64 << 20

// Writer writes little endian primitives to an underlying stream.
type Writer struct {
	w   *bufio.Writer
	buf [8]byte
	n   int64
	err error
}

// NewWriter wraps w in a buffered primitive writer. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(p)
	w.n += int64(n)
	w.err = err
}

// UByte1 writes one byte.
func (w *Writer) UByte1(v uint8) {
	w.buf[0] = v
	w.write(w.buf[:1])
}

// UShort2 writes a 16 bit unsigned integer.
func (w *Writer) UShort2(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	w.write(w.buf[:2])
}

// UInt4 writes a 32 bit unsigned integer.
func (w *Writer) UInt4(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.write(w.buf[:4])
}

// Int4 writes a 32 bit signed integer.
func (w *Writer) Int4(v int32) {
	w.UInt4(uint32(v))
}

// ULong8 writes a 64 bit unsigned integer.
func (w *Writer) ULong8(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[:8], v)
	w.write(w.buf[:8])
}

// Float8 writes an IEEE 754 double.
func (w *Writer) Float8(v float64) {
	w.ULong8(math.Float64bits(v))
}

// String writes a UInt4 length followed by the raw bytes.
func (w *Writer) String(s string) {
	w.UInt4(uint32(len(s)))
	if w.err != nil || len(s) == 0 {
		return
	}
	n, err := w.w.WriteString(s)
	w.n += int64(n)
	w.err = err
}

// Data writes p verbatim.
func (w *Writer) Data(p []byte) {
	w.write(p)
}

// Block writes a ULong8 size (which counts its own eight bytes) followed by
// whatever fn writes into a scratch writer.
func (w *Writer) Block(fn func(*Writer)) {
	if w.err != nil {
		return
	}
	var scratch bytes.Buffer
	bw := NewWriter(&scratch)
	fn(bw)
	if err := bw.Flush(); err != nil {
		w.err = err
		return
	}
	w.ULong8(uint64(scratch.Len()) + 8)
	w.write(scratch.Bytes())
}

// Written returns the number of bytes accepted so far.
func (w *Writer) Written() int64 {
	return w.n
}

// Err returns the first error encountered.
func (w *Writer) Err() error {
	return w.err
}

// Flush flushes buffered bytes and returns the first error encountered.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}

// Reader reads little endian primitives from an underlying stream.
type Reader struct {
	r   *bufio.Reader
	buf [8]byte
	n   int64
	err error
}

// NewReader wraps r in a buffered primitive reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

func (r *Reader) read(p []byte) bool {
	if r.err != nil {
		return false
	}
	n, err := io.ReadFull(r.r, p)
	r.n += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		r.err = err
		return false
	}
	return true
}

// UByte1 reads one byte.
func (r *Reader) UByte1() uint8 {
	if !r.read(r.buf[:1]) {
		return 0
	}
	return r.buf[0]
}

// UShort2 reads a 16 bit unsigned integer.
func (r *Reader) UShort2() uint16 {
	if !r.read(r.buf[:2]) {
		return 0
	}
	return binary.LittleEndian.Uint16(r.buf[:2])
}

// UInt4 reads a 32 bit unsigned integer.
func (r *Reader) UInt4() uint32 {
	if !r.read(r.buf[:4]) {
		return 0
	}
	return binary.LittleEndian.Uint32(r.buf[:4])
}

// Int4 reads a 32 bit signed integer.
func (r *Reader) Int4() int32 {
	return int32(r.UInt4())
}

// ULong8 reads a 64 bit unsigned integer.
func (r *Reader) ULong8() uint64 {
	if !r.read(r.buf[:8]) {
		return 0
	}
	return binary.LittleEndian.Uint64(r.buf[:8])
}

// Float8 reads an IEEE 754 double.
func (r *Reader) Float8() float64 {
	return math.Float64frombits(r.ULong8())
}

// String reads a UInt4 length prefixed string.
func (r *Reader) String() string {
	n := r.UInt4()
	if r.err != nil || n == 0 {
		return ""
	}
	if n > MaxStringLen {
		r.err = fmt.Errorf("%w: %d bytes", ErrStringTooLong, n)
		return ""
	}
	p := make([]byte, n)
	if !r.read(p) {
		return ""
	}
	return string(p)
}

// Data reads exactly len(p) bytes into p.
func (r *Reader) Data(p []byte) {
	r.read(p)
}

// Block reads a size prefixed block written by Writer.Block and returns a
// reader over its payload.
func (r *Reader) Block() *Reader {
	size := r.ULong8()
	if r.err != nil {
		return &Reader{err: r.err}
	}
	if size < 8 || size-8 > MaxStringLen {
		r.err = fmt.Errorf("binio: invalid block size %d", size)
		return &Reader{err: r.err}
	}
	p := make([]byte, size-8)
	if !r.read(p) {
		return &Reader{err: r.err}
	}
	return NewReader(bytes.NewReader(p))
}

// SkipBlock reads a size prefixed block and returns its raw payload.
func (r *Reader) SkipBlock() []byte {
	size := r.ULong8()
	if r.err != nil {
		return nil
	}
	if size < 8 || size-8 > MaxStringLen {
		r.err = fmt.Errorf("binio: invalid block size %d", size)
		return nil
	}
	p := make([]byte, size-8)
	if !r.read(p) {
		return nil
	}
	return p
}

// Consumed returns the number of bytes read so far.
func (r *Reader) Consumed() int64 {
	return r.n
}

// Err returns the first error encountered.
func (r *Reader) Err() error {
	return r.err
}

// Fail records err unless an earlier error is already recorded. Decoders use
// it to stop a read sequence on a semantic error.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}
