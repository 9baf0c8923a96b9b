// Package catalog keeps a local record of completed signature runs.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"

	"github.com/quantarax/blocksig/internal/chunker"
)

var ErrNotFound = errors.New("run not found")

var bucketRuns = []byte("runs")

// Catalog stores manifests keyed by run id in a bolt database.
type Catalog struct{ db *bolt.DB }

func Open(path string) (*Catalog, error) {
	db, err := bolt.Open(filepath.Clean(path), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error { _, e := tx.CreateBucketIfNotExists(bucketRuns); return e })
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error { return c.db.Close() }

// Put records m under its run id, replacing any earlier record for that id.
func (c *Catalog) Put(m *chunker.Manifest) error {
	if m.RunID == "" {
		return errors.New("manifest has no run id")
	}
	stored := *m
	stored.InputName = canonicalName(m.InputName)
	data, err := json.Marshal(&stored)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(m.RunID), data)
	})
}

// Get returns the manifest recorded for runID.
func (c *Catalog) Get(runID string) (*chunker.Manifest, error) {
	var m *chunker.Manifest
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRuns).Get([]byte(runID))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		m = &chunker.Manifest{}
		return json.Unmarshal(v, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// LatestFor returns the most recent run whose input name matches. Relative
// names are resolved against the working directory before comparing.
func (c *Catalog) LatestFor(inputName string) (*chunker.Manifest, error) {
	want := canonicalName(inputName)
	var latest *chunker.Manifest
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(_, v []byte) error {
			var m chunker.Manifest
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if canonicalName(m.InputName) == want && (latest == nil || m.CreatedAt.After(latest.CreatedAt)) {
				latest = &m
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no run for %s", ErrNotFound, inputName)
	}
	return latest, nil
}

// GC removes runs created more than maxAge ago.
func (c *Catalog) GC(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketRuns)
		var stale [][]byte
		err := bk.ForEach(func(k, v []byte) error {
			var m chunker.Manifest
			if err := json.Unmarshal(v, &m); err == nil && m.CreatedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bk.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func canonicalName(name string) string {
	if name == "" {
		return name
	}
	abs, err := filepath.Abs(name)
	if err != nil {
		return filepath.Clean(name)
	}
	return abs
}
