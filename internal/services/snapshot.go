package services

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pandemic-dashboard/internal/models"
)

const snapshotVersion = "v1"

type Snapshot struct {
	Version string
	SavedAt time.Time
	Records []models.Record
}

// SnapshotCache keeps the last fetched result set on disk as gob so the
// dashboard can start while the backend is down.
type SnapshotCache struct {
	dir string
}

func NewSnapshotCache(dir string) *SnapshotCache {
	return &SnapshotCache{dir: dir}
}

func (c *SnapshotCache) path() string {
	return filepath.Join(c.dir, fmt.Sprintf("records_%s.gob", snapshotVersion))
}

func (c *SnapshotCache) Save(records []models.Record) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, "records-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	snap := Snapshot{Version: snapshotVersion, SavedAt: time.Now(), Records: records}
	if err := gob.NewEncoder(tmp).Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	return os.Rename(tmp.Name(), c.path())
}

func (c *SnapshotCache) Load() (*Snapshot, error) {
	file, err := os.Open(c.path())
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var snap Snapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("snapshot version %q, want %q", snap.Version, snapshotVersion)
	}
	return &snap, nil
}
