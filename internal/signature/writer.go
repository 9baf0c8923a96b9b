// Package signature encodes, decodes and compares block signatures.
//
// A signature is a flat, headerless sequence of uint32 checksums, one per
// block, in ascending block order. Each value is stored little-endian so a
// signature written on one platform reads the same on any other.
package signature

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/quantarax/blocksig/internal/checksum"
)

// ByteOrder is the fixed encoding of every checksum in a signature.
var ByteOrder = binary.LittleEndian

// ByteOrderName is recorded in manifests.
const ByteOrderName = "little-endian"

var ErrOutOfOrder = errors.New("signature records out of order")

// Writer appends checksums to an output stream. It does no reordering: every
// batch must continue exactly where the previous one stopped.
type Writer struct {
	bw      *bufio.Writer
	hasher  *blake3.Hasher
	next    uint64
	written int64
	scratch [checksum.Size]byte
}

// NewWriter wraps w. The caller keeps ownership of w and closes it.
func NewWriter(w io.Writer) *Writer {
	h := blake3.New()
	return &Writer{
		bw:     bufio.NewWriter(io.MultiWriter(w, h)),
		hasher: h,
	}
}

// Write appends records in the order given and flushes.
func (w *Writer) Write(records []checksum.Record) error {
	for _, r := range records {
		if r.Index != w.next {
			return fmt.Errorf("%w: got block %d, want %d", ErrOutOfOrder, r.Index, w.next)
		}
		ByteOrder.PutUint32(w.scratch[:], r.Value)
		if _, err := w.bw.Write(w.scratch[:]); err != nil {
			return fmt.Errorf("write checksum %d: %w", r.Index, err)
		}
		w.next++
		w.written += checksum.Size
	}
	return w.Flush()
}

// Flush pushes buffered bytes to the underlying stream.
func (w *Writer) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush signature: %w", err)
	}
	return nil
}

// Count is the number of checksums written.
func (w *Writer) Count() uint64 { return w.next }

// BytesWritten is the number of signature bytes written.
func (w *Writer) BytesWritten() int64 { return w.written }

// Digest is the BLAKE3-256 of everything flushed so far.
func (w *Writer) Digest() []byte {
	return w.hasher.Sum(nil)
}

// ExpectedLength is the size in bytes of the signature of an input of
// inputLen bytes split into blockSize blocks.
func ExpectedLength(inputLen, blockSize int64) int64 {
	if inputLen <= 0 || blockSize <= 0 {
		return 0
	}
	blocks := (inputLen + blockSize - 1) / blockSize
	return blocks * checksum.Size
}
