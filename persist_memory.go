package cachez

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type memoryBackend struct {
	cache *gocache.Cache
}

// NewMemoryBackend keeps persisted entries in process memory. Entries survive
// for the life of the backend value only, which makes it a fit for tests and
// short-lived tools that still want TTL semantics.
func NewMemoryBackend() Backend {
	return &memoryBackend{cache: gocache.New(gocache.NoExpiration, 0)}
}

func (b *memoryBackend) Driver() Driver {
	return DriverMemory
}

func (b *memoryBackend) Load(_ context.Context, name string) (Entry, bool, error) {
	item, ok := b.cache.Get(name)
	if !ok {
		return Entry{}, false, nil
	}
	entry, ok := item.(Entry)
	if !ok {
		return Entry{}, false, nil
	}
	entry.Blob = cloneBytes(entry.Blob)
	return entry, true, nil
}

func (b *memoryBackend) Save(_ context.Context, name string, blob []byte) error {
	b.cache.Set(name, Entry{Blob: cloneBytes(blob), ModTime: time.Now()}, gocache.NoExpiration)
	return nil
}

func (b *memoryBackend) Delete(_ context.Context, name string) error {
	b.cache.Delete(name)
	return nil
}

func (b *memoryBackend) Flush(_ context.Context) error {
	b.cache.Flush()
	return nil
}
