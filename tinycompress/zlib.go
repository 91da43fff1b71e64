// Package tinycompress writes zlib streams using stored (uncompressed)
// deflate blocks. It is small enough for the firmware and the output is
// readable by any zlib decoder, including compress/zlib on the host.
package tinycompress

import (
	"errors"
	"hash/adler32"
	"io"
)

// maxStoredBlock is the largest payload of one stored deflate block.
const maxStoredBlock = 0xFFFF

// zlibHeader is CMF=0x78 (deflate, 32K window) with FLG chosen so the
// header checksum holds and the level hint is "fastest".
var zlibHeader = [2]byte{0x78, 0x01}

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("tinycompress: writer closed")

// Writer buffers everything written to it and emits the zlib stream on
// Close.
type Writer struct {
	w      io.Writer
	buf    []byte
	closed bool
}

// NewWriter returns a Writer that emits to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (z *Writer) Write(p []byte) (int, error) {
	if z.closed {
		return 0, ErrClosed
	}
	z.buf = append(z.buf, p...)
	return len(p), nil
}

// Close writes the header, the stored blocks and the Adler-32 trailer.
func (z *Writer) Close() error {
	if z.closed {
		return nil
	}
	z.closed = true
	_, err := z.w.Write(Encode(z.buf))
	return err
}

// Encode returns data wrapped in a zlib stream.
func Encode(data []byte) []byte {
	blocks := (len(data) + maxStoredBlock - 1) / maxStoredBlock
	if blocks == 0 {
		blocks = 1
	}
	out := make([]byte, 0, len(zlibHeader)+len(data)+5*blocks+4)
	out = append(out, zlibHeader[:]...)

	rest := data
	for {
		n := len(rest)
		if n > maxStoredBlock {
			n = maxStoredBlock
		}
		final := byte(0)
		if n == len(rest) {
			final = 1
		}
		// BFINAL in bit 0, BTYPE 00 (stored)
		out = append(out, final,
			byte(n), byte(n>>8),
			^byte(n), ^byte(n>>8))
		out = append(out, rest[:n]...)
		rest = rest[n:]
		if final == 1 {
			break
		}
	}

	sum := adler32.Checksum(data)
	return append(out, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))
}
