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

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"
)

// DigestSize is the size of the blake3 trailer appended to every file.
const DigestSize = 32

// ErrChecksumMismatch is returned when the trailer does not match the bytes
// preceding it.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// DigestWriter forwards writes to an underlying writer while hashing them.
type DigestWriter struct {
	w io.Writer
	h *blake3.Hasher
}

// NewDigestWriter returns a writer that hashes everything written to w.
func NewDigestWriter(w io.Writer) *DigestWriter {
	return &DigestWriter{w: w, h: blake3.New(DigestSize, nil)}
}

// Write implements io.Writer.
func (d *DigestWriter) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	d.h.Write(p[:n])
	return n, err
}

// WriteTrailer appends the digest of everything written so far.
func (d *DigestWriter) WriteTrailer() error {
	sum := d.h.Sum(nil)
	_, err := d.w.Write(sum)
	return err
}

// Digest returns the blake3 digest of p.
func Digest(p []byte) [DigestSize]byte {
	return blake3.Sum256(p)
}

// VerifyTrailer checks the trailing digest of data and returns the covered
// payload.
func VerifyTrailer(data []byte) ([]byte, error) {
	if len(data) < DigestSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the trailer", io.ErrUnexpectedEOF, len(data))
	}
	body := data[:len(data)-DigestSize]
	want := data[len(data)-DigestSize:]
	got := blake3.Sum256(body)
	if !bytes.Equal(got[:], want) {
		return nil, ErrChecksumMismatch
	}
	return body, nil
}

// NewCompressor returns a zstd stream writer over w. Closing it flushes the
// final frame but leaves w open.
func NewCompressor(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return enc, nil
}

// NewDecompressor returns a zstd stream reader over r.
func NewDecompressor(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return dec.IOReadCloser(), nil
}
