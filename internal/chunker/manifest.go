package chunker

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Manifest describes a finished signature so a consumer can check it was made
// with the parameters it expects.
type Manifest struct {
	RunID           string    `json:"run_id"`
	InputName       string    `json:"input_name"`
	InputSize       int64     `json:"input_size"`
	OutputName      string    `json:"output_name"`
	BlockSize       int       `json:"block_size"`
	BlockCount      uint64    `json:"block_count"`
	Algorithm       string    `json:"algorithm"`
	ByteOrder       string    `json:"byte_order"`
	SignatureDigest string    `json:"signature_digest"` // Base64-encoded BLAKE3 of the signature bytes
	CreatedAt       time.Time `json:"created_at"`
}

// WriteManifest stores m as indented JSON at path.
func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}
