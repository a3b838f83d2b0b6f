package cachez

import (
	"context"
	"runtime"
	"sync"
	"time"
	"weak"
)

// Method is a cacheable computation bound to an owner. The owner selects the
// cache scope; it is not part of the signature.
type Method[T any, R any] func(ctx context.Context, owner *T, args Args) (R, error)

// ScopeOwner is implemented by types that carry their own cache scope.
// Embedding Scope is the usual way to satisfy it.
type ScopeOwner interface {
	CacheScope() *ScopedStore
}

// Scope holds the instance cache of the type that embeds it. The zero value
// is ready to use; a Scope must not be copied after first use.
//
// Example: embed a scope
//
//	type Repo struct {
//		cachez.Scope
//		base int
//	}
type Scope struct {
	store ScopedStore
}

// CacheScope implements ScopeOwner.
func (s *Scope) CacheScope() *ScopedStore {
	return &s.store
}

// instanceScopes is the side-table for owners that do not embed Scope.
// Keys are weak pointers so the table never keeps an owner alive; a runtime
// cleanup drops the entry once the owner is collected.
var instanceScopes sync.Map // weak.Pointer[T] -> *ScopedStore

// ScopeOf returns the cache scope attached to owner, creating it on first use.
// Owners of zero-sized types share one address and therefore one scope; such
// types should embed Scope instead.
func ScopeOf[T any](owner *T) (*ScopedStore, error) {
	if owner == nil {
		return nil, ErrOwnerUnavailable
	}
	return scopeFor(owner), nil
}

func scopeFor[T any](owner *T) *ScopedStore {
	if so, ok := any(owner).(ScopeOwner); ok {
		return so.CacheScope()
	}
	key := weak.Make(owner)
	if v, ok := instanceScopes.Load(key); ok {
		return v.(*ScopedStore)
	}
	v, loaded := instanceScopes.LoadOrStore(key, NewScopedStore())
	if !loaded {
		runtime.AddCleanup(owner, releaseScope, any(key))
	}
	return v.(*ScopedStore)
}

func releaseScope(key any) {
	instanceScopes.Delete(key)
	Logger().Debug("instance scope released")
}

// ClearScope discards every result cached for owner. Other owners and the
// global cache are untouched.
func ClearScope[T any](owner *T) error {
	if owner == nil {
		return ErrOwnerUnavailable
	}
	if so, ok := any(owner).(ScopeOwner); ok {
		so.CacheScope().ClearAll()
		return nil
	}
	if v, ok := instanceScopes.Load(weak.Make(owner)); ok {
		v.(*ScopedStore).ClearAll()
	}
	return nil
}

// InstanceCache wraps m so results are cached per owner. Two owners never see
// each other's results, even for equal arguments. A nil owner yields
// ErrOwnerUnavailable.
//
// Example: per-instance memoization
//
//	addBase := cachez.InstanceCache(func(ctx context.Context, r *Repo, args cachez.Args) (int, error) {
//		return cachez.Arg[int](args, 0) + r.base, nil
//	})
//	v, _ := addBase(ctx, repo, cachez.Call(2))
func InstanceCache[T any, R any](m Method[T, R]) Method[T, R] {
	id := NewIdentity()
	name := funcName(m)
	return func(ctx context.Context, owner *T, args Args) (R, error) {
		if owner == nil {
			var zero R
			observe(ctx, OpInstanceCache, name, false, ErrOwnerUnavailable, time.Now(), DriverMemory)
			return zero, ErrOwnerUnavailable
		}
		var bound Func[R]
		if m != nil {
			bound = func(ctx context.Context, args Args) (R, error) {
				return m(ctx, owner, args)
			}
		}
		// Side-table scopes are held globally; pinning there could keep the owner alive.
		_, embedded := any(owner).(ScopeOwner)
		return memoize(ctx, scopeFor(owner), OpInstanceCache, id, name, args, bound, embedded)
	}
}

// ClearInstanceCache wraps m so the owner's cache is discarded before m runs.
// A nil owner yields ErrOwnerUnavailable and m is not called.
func ClearInstanceCache[T any, R any](m Method[T, R]) Method[T, R] {
	name := funcName(m)
	return func(ctx context.Context, owner *T, args Args) (R, error) {
		var zero R
		start := time.Now()
		if err := ClearScope(owner); err != nil {
			observe(ctx, OpClearInstanceCache, name, false, err, start, DriverMemory)
			return zero, err
		}
		observe(ctx, OpClearInstanceCache, name, false, nil, start, DriverMemory)
		if m == nil {
			return zero, ErrNilFunc
		}
		return m(ctx, owner, args)
	}
}
