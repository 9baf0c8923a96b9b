package chunker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrRead wraps any failure of the underlying reader other than end of input.
var ErrRead = errors.New("read input")

// Block is one fixed-size slice of the input. Only the final block of an
// input may be shorter than the configured size.
type Block struct {
	Index uint64
	Data  []byte

	once  sync.Once
	alloc Allocator
	buf   []byte
}

// Len returns the number of input bytes in the block.
func (b *Block) Len() int { return len(b.Data) }

// Release hands the block's storage back to its allocator. Data must not be
// used afterwards. Calling Release more than once is harmless.
func (b *Block) Release() {
	b.once.Do(func() {
		if b.alloc != nil {
			b.alloc.Free(b.buf)
		}
		b.Data, b.buf = nil, nil
	})
}

// Source reads sequential, non-overlapping blocks from a reader and numbers
// them from 0. It is not safe for concurrent use.
type Source struct {
	reader    io.Reader
	blockSize int
	alloc     Allocator

	next      uint64
	bytesRead int64
	done      bool
}

// NewSource creates a block source over r. A nil allocator allocates from the heap.
func NewSource(r io.Reader, blockSize int, alloc Allocator) (*Source, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive")
	}
	if alloc == nil {
		alloc = HeapAllocator{}
	}
	return &Source{
		reader:    r,
		blockSize: blockSize,
		alloc:     alloc,
	}, nil
}

// Next returns the next block, or io.EOF once the input is exhausted.
//
// When storage for the block cannot be allocated, Next returns
// ErrResourceExhausted without reading anything, so calling it again retries
// the same range.
func (s *Source) Next() (*Block, error) {
	if s.done {
		return nil, io.EOF
	}

	buf, err := s.alloc.Alloc(s.blockSize)
	if err != nil {
		return nil, err
	}

	n, err := io.ReadFull(s.reader, buf)
	switch {
	case errors.Is(err, io.EOF):
		s.alloc.Free(buf)
		s.done = true
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		// short final block
		s.done = true
	case err != nil:
		s.alloc.Free(buf)
		return nil, fmt.Errorf("%w: block %d: %w", ErrRead, s.next, err)
	}

	b := &Block{
		Index: s.next,
		Data:  buf[:n],
		alloc: s.alloc,
		buf:   buf,
	}
	s.next++
	s.bytesRead += int64(n)
	return b, nil
}

// BlockSize is the configured size of every block but the last.
func (s *Source) BlockSize() int { return s.blockSize }

// Count is the number of blocks returned so far.
func (s *Source) Count() uint64 { return s.next }

// BytesRead is the number of input bytes returned in blocks so far.
func (s *Source) BytesRead() int64 { return s.bytesRead }

// ReadBlock reads a specific block from the file
func ReadBlock(filePath string, index uint64, blockSize int) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	offset := int64(index) * int64(blockSize)
	buffer := make([]byte, blockSize)
	n, err := file.ReadAt(buffer, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read block %d: %w", index, err)
	}

	return buffer[:n], nil
}
