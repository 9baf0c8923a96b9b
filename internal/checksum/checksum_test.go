package checksum

import (
	"bytes"
	"hash/crc32"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeKnownValues(t *testing.T) {
	// check value from the CRC catalogue
	assert.Equal(t, uint32(0xCBF43926), Compute([]byte("123456789")))
	assert.Equal(t, uint32(0), Compute(nil))
}

func TestComputeConcurrent(t *testing.T) {
	data := bytes.Repeat([]byte("blocksig"), 4096)
	want := crc32.ChecksumIEEE(data)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, Compute(data))
		}()
	}
	wg.Wait()
}

func TestSequential(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		blockSize int
		want      []uint32
	}{
		{"empty", "", 4, nil},
		{"exact multiple", "AAAABBBBCCCC", 4, []uint32{
			crc32.ChecksumIEEE([]byte("AAAA")),
			crc32.ChecksumIEEE([]byte("BBBB")),
			crc32.ChecksumIEEE([]byte("CCCC")),
		}},
		{"short tail", "AAAABB", 4, []uint32{
			crc32.ChecksumIEEE([]byte("AAAA")),
			crc32.ChecksumIEEE([]byte("BB")),
		}},
		{"smaller than block", "xyz", 1024, []uint32{crc32.ChecksumIEEE([]byte("xyz"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sequential(bytes.NewReader([]byte(tt.input)), tt.blockSize)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSequentialRejectsBadBlockSize(t *testing.T) {
	_, err := Sequential(bytes.NewReader(nil), 0)
	assert.Error(t, err)
}
