// Package cache holds short-lived file metadata so hot lookups skip the
// catalog. Entries are advisory: a miss only costs a database round-trip.
package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

// FileCache maps file ids to catalog records.
type FileCache struct {
	c   *ristretto.Cache
	ttl time.Duration
}

// New returns a cache admitting roughly maxEntries records for ttl each.
func New(maxEntries int64, ttl time.Duration) (*FileCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &FileCache{c: c, ttl: ttl}, nil
}

// Get returns a copy so callers cannot mutate the cached record.
func (fc *FileCache) Get(id string) (*models.File, bool) {
	v, ok := fc.c.Get(id)
	if !ok {
		return nil, false
	}
	f, ok := v.(models.File)
	if !ok {
		return nil, false
	}
	return &f, true
}

// Set stores a copy of f. Admission is not guaranteed.
func (fc *FileCache) Set(f *models.File) bool {
	if f == nil {
		return false
	}
	return fc.c.SetWithTTL(f.ID, *f, 1, fc.ttl)
}

func (fc *FileCache) Delete(id string) {
	fc.c.Del(id)
}

// Wait blocks until pending writes are applied.
func (fc *FileCache) Wait() {
	fc.c.Wait()
}

func (fc *FileCache) Close() {
	fc.c.Close()
}
