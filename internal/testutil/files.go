// Package testutil generates input files with known content for tests.
package testutil

import (
	"encoding/base64"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/zeebo/blake3"
)

// FileGenerator writes deterministic pseudo-random files under a temp dir.
type FileGenerator struct {
	TempDir string
	seed    int64
}

// NewFileGenerator creates a generator rooted in t's temp dir.
func NewFileGenerator(t testing.TB, seed int64) *FileGenerator {
	t.Helper()
	return &FileGenerator{TempDir: t.TempDir(), seed: seed}
}

// Bytes returns size deterministic pseudo-random bytes.
func (fg *FileGenerator) Bytes(size int) []byte {
	buf := make([]byte, size)
	rand.New(rand.NewSource(fg.seed + int64(size))).Read(buf)
	return buf
}

// GenerateFile creates a file of size bytes and returns its path and BLAKE3 hash.
func (fg *FileGenerator) GenerateFile(name string, size int) (string, string, error) {
	data := fg.Bytes(size)
	path, err := fg.WriteFile(name, data)
	if err != nil {
		return "", "", err
	}
	sum := blake3.Sum256(data)
	return path, base64.StdEncoding.EncodeToString(sum[:]), nil
}

// WriteFile stores data under name and returns the full path.
func (fg *FileGenerator) WriteFile(name string, data []byte) (string, error) {
	path := filepath.Join(fg.TempDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

// Path returns the full path of name without creating it.
func (fg *FileGenerator) Path(name string) string {
	return filepath.Join(fg.TempDir, name)
}
