package cctv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const snapshotExt = ".snap"

// SnapshotCache keeps the last good snapshot of each station on disk so a
// camera that is briefly unreachable can still be analysed.
type SnapshotCache struct {
	dir    string
	maxAge time.Duration
}

// NewSnapshotCache creates a cache in dir. Snapshots older than maxAge are
// treated as missing.
func NewSnapshotCache(dir string, maxAge time.Duration) *SnapshotCache {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("cctv: could not create snapshot cache directory")
	}
	return &SnapshotCache{dir: dir, maxAge: maxAge}
}

func (c *SnapshotCache) path(stationID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(stationID)
	return filepath.Join(c.dir, fmt.Sprintf("station_%s%s", safe, snapshotExt))
}

// Get returns the cached snapshot and when it was stored, if it exists and
// is not stale.
func (c *SnapshotCache) Get(stationID string) ([]byte, time.Time, bool) {
	path := c.path(stationID)
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, false
	}
	if time.Since(info.ModTime()) > c.maxAge {
		return nil, time.Time{}, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, false
	}
	return data, info.ModTime(), true
}

// Set stores a snapshot for the station.
func (c *SnapshotCache) Set(stationID string, data []byte) error {
	return os.WriteFile(c.path(stationID), data, 0644)
}

// List returns the IDs of all cached stations, stale or not.
func (c *SnapshotCache) List() []string {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != snapshotExt || !strings.HasPrefix(name, "station_") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, "station_"), snapshotExt))
	}
	return ids
}
