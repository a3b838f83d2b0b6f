package cachez

import (
	"context"
	"time"
)

// Func is a cacheable computation. ctx is handed through to the computation
// and never takes part in the cache key.
type Func[R any] func(ctx context.Context, args Args) (R, error)

var globalStore = NewScopedStore()

// Cache wraps fn with the process-wide cache. Every call with an equal
// argument set returns the first computed result until ClearCache runs.
// Errors are returned to the caller and never cached.
//
// Each call to Cache creates a new cache: wrapping the same function twice
// yields two wrappers that do not share results. Wrap once and reuse the
// returned function.
//
// Example: memoize a lookup
//
//	lookup := cachez.Cache(func(ctx context.Context, args cachez.Args) (string, error) {
//		return strings.ToUpper(cachez.Arg[string](args, 0)), nil
//	})
//	v, _ := lookup(ctx, cachez.Call("ada"))
//	fmt.Println(v) // ADA
func Cache[R any](fn Func[R]) Func[R] {
	id := NewIdentity()
	name := funcName(fn)
	return func(ctx context.Context, args Args) (R, error) {
		return memoize(ctx, globalStore, OpCache, id, name, args, fn, true)
	}
}

// ClearCache drops every result cached through Cache. Computations still in
// flight complete, but their results are discarded.
func ClearCache() {
	start := time.Now()
	globalStore.ClearAll()
	Logger().Debug("global cache cleared")
	observe(context.Background(), OpClearCache, "", false, nil, start, DriverMemory)
}

// memoize runs fn through store. With pin set, the arguments stay reachable
// from the cached entry.
func memoize[R any](ctx context.Context, store *ScopedStore, op string, id Identity, name string, args Args, fn Func[R], pin bool) (R, error) {
	var zero R
	start := time.Now()
	if fn == nil {
		observe(ctx, op, name, false, ErrNilFunc, start, DriverMemory)
		return zero, ErrNilFunc
	}
	sig, err := SignatureOf(args)
	if err != nil {
		observe(ctx, op, name, false, err, start, DriverMemory)
		return zero, err
	}
	v, hit, err := store.GetOrCompute(ctx, id, sig, func(ctx context.Context) (any, error) {
		out, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		res := pinnedResult{value: out}
		if pin {
			res.args = args
		}
		return res, nil
	})
	observe(ctx, op, name, hit, err, start, DriverMemory)
	if err != nil {
		return zero, err
	}
	out, _ := v.(pinnedResult).value.(R)
	return out, nil
}

// pinnedResult keeps the call arguments reachable while the result is cached,
// so an address keyed in a signature cannot be reused by another object.
type pinnedResult struct {
	value any
	args  Args
}
