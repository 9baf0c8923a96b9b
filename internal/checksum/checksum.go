// Package checksum computes the per-block values that make up a signature.
package checksum

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Algorithm names the block checksum recorded in manifests.
const Algorithm = "CRC32-IEEE"

// Size is the encoded width of one checksum in a signature.
const Size = 4

// Record is the checksum of the block at Index.
type Record struct {
	Index uint64
	Value uint32
}

// Compute returns the IEEE CRC-32 of data. It keeps no state and is safe to call
// from any number of goroutines.
func Compute(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Sequential reads r to the end in blockSize pieces and checksums each one in
// order on the calling goroutine. It is the reference the concurrent pipeline
// must agree with.
func Sequential(r io.Reader, blockSize int) ([]uint32, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}
	var sums []uint32
	buf := make([]byte, blockSize)
	for {
		n, err := io.ReadFull(r, buf)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// last partial block
			sums = append(sums, Compute(buf[:n]))
			break
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read block %d: %w", len(sums), err)
		}
		sums = append(sums, Compute(buf))
	}
	return sums, nil
}
