package chunker

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s *Source) []*Block {
	t.Helper()
	var blocks []*Block
	for {
		b, err := s.Next()
		if errors.Is(err, io.EOF) {
			return blocks
		}
		require.NoError(t, err)
		blocks = append(blocks, b)
	}
}

func TestSourceShortFinalBlock(t *testing.T) {
	blockSize := 1024
	data := make([]byte, blockSize*2+blockSize/2)
	for i := range data {
		data[i] = byte(i % 256)
	}

	s, err := NewSource(bytes.NewReader(data), blockSize, nil)
	require.NoError(t, err)
	blocks := drain(t, s)

	require.Len(t, blocks, 3)
	for i, b := range blocks {
		assert.Equal(t, uint64(i), b.Index)
	}
	assert.Equal(t, blockSize, blocks[0].Len())
	assert.Equal(t, blockSize, blocks[1].Len())
	assert.Equal(t, blockSize/2, blocks[2].Len())
	assert.Equal(t, data[2*blockSize:], blocks[2].Data)
	assert.Equal(t, int64(len(data)), s.BytesRead())
	assert.Equal(t, uint64(3), s.Count())
}

func TestSourceExactMultiple(t *testing.T) {
	s, err := NewSource(bytes.NewReader([]byte("AAAABBBBCCCC")), 4, nil)
	require.NoError(t, err)
	blocks := drain(t, s)

	require.Len(t, blocks, 3)
	assert.Equal(t, "AAAA", string(blocks[0].Data))
	assert.Equal(t, "BBBB", string(blocks[1].Data))
	assert.Equal(t, "CCCC", string(blocks[2].Data))

	// stays exhausted
	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSourceEmptyInput(t *testing.T) {
	s, err := NewSource(bytes.NewReader(nil), 1024, nil)
	require.NoError(t, err)
	assert.Empty(t, drain(t, s))
	assert.Zero(t, s.Count())
}

func TestNewSourceRejectsBadSize(t *testing.T) {
	_, err := NewSource(bytes.NewReader(nil), 0, nil)
	assert.Error(t, err)
}

type brokenReader struct{ after int }

func (r *brokenReader) Read(p []byte) (int, error) {
	if r.after <= 0 {
		return 0, errors.New("device error")
	}
	n := min(len(p), r.after)
	r.after -= n
	return n, nil
}

func TestSourceReadError(t *testing.T) {
	s, err := NewSource(&brokenReader{after: 8}, 4, nil)
	require.NoError(t, err)

	_, err = s.Next()
	require.NoError(t, err)
	_, err = s.Next()
	require.NoError(t, err)

	_, err = s.Next()
	assert.ErrorIs(t, err, ErrRead)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestSourceRetriesSameRangeWhenBudgetSpent(t *testing.T) {
	alloc, err := NewBudgetAllocator(8, 4)
	require.NoError(t, err)
	s, err := NewSource(bytes.NewReader([]byte("AAAABBBBCCCC")), 4, alloc)
	require.NoError(t, err)

	a, err := s.Next()
	require.NoError(t, err)
	b, err := s.Next()
	require.NoError(t, err)

	_, err = s.Next()
	require.ErrorIs(t, err, ErrResourceExhausted)
	assert.Equal(t, uint64(2), s.Count())
	assert.Equal(t, int64(1), alloc.Rejected())

	a.Release()
	a.Release()
	c, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c.Index)
	assert.Equal(t, "CCCC", string(c.Data))

	b.Release()
	c.Release()
	assert.Zero(t, alloc.InUse())
}

func TestNewBudgetAllocatorTooSmall(t *testing.T) {
	_, err := NewBudgetAllocator(1023, 1024)
	assert.Error(t, err)
}

func TestReadBlock(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "blocks.bin")

	blockSize := 1024
	testData := make([]byte, blockSize*3-100)
	for i := range testData {
		testData[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(testFile, testData, 0644))

	block1, err := ReadBlock(testFile, 1, blockSize)
	require.NoError(t, err)
	assert.Equal(t, testData[blockSize:2*blockSize], block1)

	last, err := ReadBlock(testFile, 2, blockSize)
	require.NoError(t, err)
	assert.Len(t, last, blockSize-100)

	_, err = ReadBlock(filepath.Join(tmpDir, "missing.bin"), 0, blockSize)
	assert.Error(t, err)
}

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sig.json")
	m := &Manifest{
		RunID:      "run-1",
		InputName:  "input.bin",
		InputSize:  12,
		BlockSize:  4,
		BlockCount: 3,
		Algorithm:  "CRC32-IEEE",
		ByteOrder:  "little-endian",
		CreatedAt:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, WriteManifest(path, m))

	got, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = ReadManifest(filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)
}
