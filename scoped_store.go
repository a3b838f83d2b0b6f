package cachez

import (
	"context"
	"sync"
	"sync/atomic"

	gocache "github.com/patrickmn/go-cache"
)

// ScopedStore is a two-level result cache: callable identity first, call
// signature second. Each identity owns one mutex shared by all of its
// signatures, so at most one computation per callable runs at a time.
//
// The zero value is ready to use.
type ScopedStore struct {
	maps atomic.Pointer[scopeMaps]
}

type scopeMaps struct {
	results sync.Map // Identity -> *gocache.Cache
	locks   sync.Map // Identity -> *sync.Mutex
}

// NewScopedStore returns an empty store.
func NewScopedStore() *ScopedStore {
	s := &ScopedStore{}
	s.maps.Store(&scopeMaps{})
	return s
}

func (s *ScopedStore) current() *scopeMaps {
	if m := s.maps.Load(); m != nil {
		return m
	}
	s.maps.CompareAndSwap(nil, &scopeMaps{})
	return s.maps.Load()
}

func (m *scopeMaps) resultsFor(id Identity) *gocache.Cache {
	if v, ok := m.results.Load(id); ok {
		return v.(*gocache.Cache)
	}
	// A zero cleanup interval keeps go-cache from starting a janitor goroutine.
	v, _ := m.results.LoadOrStore(id, gocache.New(gocache.NoExpiration, 0))
	return v.(*gocache.Cache)
}

func (m *scopeMaps) lockFor(id Identity) *sync.Mutex {
	if v, ok := m.locks.Load(id); ok {
		return v.(*sync.Mutex)
	}
	v, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Results is the signature -> value map of a single callable.
type Results struct {
	items *gocache.Cache
}

// Load returns the cached value for sig.
func (r Results) Load(sig Signature) (any, bool) {
	return r.items.Get(sig.String())
}

// Store publishes value under sig.
func (r Results) Store(sig Signature, value any) {
	r.items.Set(sig.String(), value, gocache.NoExpiration)
}

// Len reports how many signatures are cached.
func (r Results) Len() int {
	return r.items.ItemCount()
}

// Results returns the result map for id, creating it on first access.
func (s *ScopedStore) Results(id Identity) Results {
	return Results{items: s.current().resultsFor(id)}
}

// Lock returns the mutex guarding first computation for id, creating it on first access.
func (s *ScopedStore) Lock(id Identity) *sync.Mutex {
	return s.current().lockFor(id)
}

// Len reports how many signatures are cached for id.
func (s *ScopedStore) Len(id Identity) int {
	v, ok := s.current().results.Load(id)
	if !ok {
		return 0
	}
	return v.(*gocache.Cache).ItemCount()
}

// GetOrCompute returns the value cached for (id, sig) or computes and
// publishes it. Hits never touch the lock. Misses take the per-callable lock,
// so misses for different signatures of the same callable run one at a time.
// The boolean result reports whether the value came from the cache.
//
// Errors returned by compute are passed through and nothing is stored.
//
// Example: explicit get-or-compute
//
//	store := cachez.NewScopedStore()
//	id := cachez.NewIdentity()
//	sig, _ := cachez.SignatureOf(cachez.Call(42))
//	v, hit, _ := store.GetOrCompute(ctx, id, sig, func(context.Context) (any, error) {
//		return "answer", nil
//	})
//	fmt.Println(v, hit) // answer false
func (s *ScopedStore) GetOrCompute(ctx context.Context, id Identity, sig Signature, compute func(context.Context) (any, error)) (any, bool, error) {
	if compute == nil {
		return nil, false, ErrNilFunc
	}
	m := s.current()
	results := m.resultsFor(id)
	key := sig.String()
	if v, ok := results.Get(key); ok {
		return v, true, nil
	}

	mu := m.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	// Another caller may have published while we waited on the lock.
	if v, ok := results.Get(key); ok {
		return v, true, nil
	}
	v, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}
	results.Set(key, v, gocache.NoExpiration)
	return v, false, nil
}

// ClearAll swaps in fresh result and lock maps. Computations already holding
// an old lock finish and write into the discarded maps.
func (s *ScopedStore) ClearAll() {
	s.maps.Store(&scopeMaps{})
}
