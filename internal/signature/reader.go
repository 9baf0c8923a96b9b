package signature

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/quantarax/blocksig/internal/checksum"
)

var ErrTruncated = errors.New("signature truncated")

// ReadAll decodes every checksum in r.
func ReadAll(r io.Reader) ([]uint32, error) {
	br := bufio.NewReader(r)
	var (
		sums []uint32
		buf  [checksum.Size]byte
	)
	for {
		n, err := io.ReadFull(br, buf[:])
		if errors.Is(err, io.EOF) {
			return sums, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return sums, fmt.Errorf("%w: %d trailing bytes after %d checksums", ErrTruncated, n, len(sums))
		}
		if err != nil {
			return sums, fmt.Errorf("read checksum %d: %w", len(sums), err)
		}
		sums = append(sums, ByteOrder.Uint32(buf[:]))
	}
}

// ReadFile decodes the signature stored at path.
func ReadFile(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open signature: %w", err)
	}
	defer f.Close()
	return ReadAll(f)
}
