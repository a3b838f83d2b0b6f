package cachez

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestScopedStoreGetOrComputeCachesPerSignature(t *testing.T) {
	ctx := context.Background()
	store := NewScopedStore()
	id := NewIdentity()
	sig := mustSignature(t, Call(1))

	calls := 0
	compute := func(context.Context) (any, error) {
		calls++
		return calls, nil
	}
	v, hit, err := store.GetOrCompute(ctx, id, sig, compute)
	if err != nil || hit || v != 1 {
		t.Fatalf("first call: v=%v hit=%v err=%v", v, hit, err)
	}
	v, hit, err = store.GetOrCompute(ctx, id, sig, compute)
	if err != nil || !hit || v != 1 {
		t.Fatalf("second call: v=%v hit=%v err=%v", v, hit, err)
	}
	if store.Len(id) != 1 {
		t.Fatalf("expected one cached signature, got %d", store.Len(id))
	}
	if store.Len(NewIdentity()) != 0 {
		t.Fatalf("unknown identity should be empty")
	}
}

func TestScopedStoreIsolatesIdentities(t *testing.T) {
	ctx := context.Background()
	store := NewScopedStore()
	sig := mustSignature(t, Call("x"))
	a, b := NewIdentity(), NewIdentity()

	_, _, _ = store.GetOrCompute(ctx, a, sig, func(context.Context) (any, error) { return "a", nil })
	v, hit, _ := store.GetOrCompute(ctx, b, sig, func(context.Context) (any, error) { return "b", nil })
	if hit || v != "b" {
		t.Fatalf("identities must not share results: v=%v hit=%v", v, hit)
	}
}

func TestScopedStoreDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	store := NewScopedStore()
	id := NewIdentity()
	sig := mustSignature(t, Call())
	boom := errors.New("boom")

	if _, _, err := store.GetOrCompute(ctx, id, sig, func(context.Context) (any, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	v, hit, err := store.GetOrCompute(ctx, id, sig, func(context.Context) (any, error) { return "ok", nil })
	if err != nil || hit || v != "ok" {
		t.Fatalf("expected recompute after error: v=%v hit=%v err=%v", v, hit, err)
	}
}

func TestScopedStoreNilCompute(t *testing.T) {
	store := NewScopedStore()
	if _, _, err := store.GetOrCompute(context.Background(), NewIdentity(), Signature{}, nil); !errors.Is(err, ErrNilFunc) {
		t.Fatalf("expected ErrNilFunc, got %v", err)
	}
}

func TestScopedStoreZeroValueUsable(t *testing.T) {
	var store ScopedStore
	id := NewIdentity()
	store.Results(id).Store(mustSignature(t, Call(1)), "v")
	if v, ok := store.Results(id).Load(mustSignature(t, Call(1))); !ok || v != "v" {
		t.Fatalf("zero value store lost entry: v=%v ok=%v", v, ok)
	}
	if store.Results(id).Len() != 1 {
		t.Fatalf("expected one entry")
	}
}

func TestScopedStoreLockIsPerIdentity(t *testing.T) {
	store := NewScopedStore()
	id := NewIdentity()
	if store.Lock(id) != store.Lock(id) {
		t.Fatalf("lock must be stable for an identity")
	}
	if store.Lock(id) == store.Lock(NewIdentity()) {
		t.Fatalf("identities must not share a lock")
	}
}

func TestScopedStoreDistinctArgsComputeOnceEach(t *testing.T) {
	ctx := context.Background()
	store := NewScopedStore()
	id := NewIdentity()
	const n = 32

	var mu sync.Mutex
	computed := make(map[int]int)
	var g errgroup.Group
	for round := 0; round < 2; round++ {
		for i := 0; i < n; i++ {
			g.Go(func() error {
				sig, err := SignatureOf(Call(i))
				if err != nil {
					return err
				}
				_, _, err = store.GetOrCompute(ctx, id, sig, func(context.Context) (any, error) {
					mu.Lock()
					computed[i]++
					mu.Unlock()
					return i * i, nil
				})
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(computed) != n {
		t.Fatalf("expected %d computed arguments, got %d", n, len(computed))
	}
	for arg, count := range computed {
		if count != 1 {
			t.Fatalf("argument %d computed %d times", arg, count)
		}
	}
}

func TestScopedStoreDistinctArgsComputeOneAtATime(t *testing.T) {
	ctx := context.Background()
	store := NewScopedStore()
	id := NewIdentity()
	const n = 16

	var inFlight, peak atomic.Int32
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			sig, err := SignatureOf(Call(i))
			if err != nil {
				return err
			}
			_, _, err = store.GetOrCompute(ctx, id, sig, func(context.Context) (any, error) {
				cur := inFlight.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inFlight.Add(-1)
				return i, nil
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := peak.Load(); got != 1 {
		t.Fatalf("expected one computation in flight per callable, peak was %d", got)
	}
}

func TestScopedStoreHitDoesNotWaitForMiss(t *testing.T) {
	ctx := context.Background()
	store := NewScopedStore()
	id := NewIdentity()
	cached := mustSignature(t, Call("cached"))
	slow := mustSignature(t, Call("slow"))

	if _, _, err := store.GetOrCompute(ctx, id, cached, func(context.Context) (any, error) { return "warm", nil }); err != nil {
		t.Fatalf("prime: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	missDone := make(chan error, 1)
	go func() {
		_, _, err := store.GetOrCompute(ctx, id, slow, func(context.Context) (any, error) {
			close(started)
			<-release
			return "cold", nil
		})
		missDone <- err
	}()
	<-started

	hitDone := make(chan any, 1)
	go func() {
		v, hit, err := store.GetOrCompute(ctx, id, cached, func(context.Context) (any, error) {
			return nil, errors.New("cached signature recomputed")
		})
		if err != nil || !hit {
			hitDone <- err
			return
		}
		hitDone <- v
	}()

	select {
	case v := <-hitDone:
		if v != "warm" {
			t.Fatalf("unexpected hit result: %v", v)
		}
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatalf("hit blocked behind an in-flight miss")
	}
	close(release)
	if err := <-missDone; err != nil {
		t.Fatalf("miss: %v", err)
	}
}

func TestScopedStoreIdenticalArgsComputeOnce(t *testing.T) {
	ctx := context.Background()
	store := NewScopedStore()
	id := NewIdentity()
	sig := mustSignature(t, Call("same"))
	const n = 64

	var calls atomic.Int32
	results := make([]any, n)
	release := make(chan struct{})
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			<-release
			v, _, err := store.GetOrCompute(ctx, id, sig, func(context.Context) (any, error) {
				time.Sleep(5 * time.Millisecond)
				return calls.Add(1), nil
			})
			results[i] = v
			return err
		})
	}
	close(release)
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one computation, got %d", calls.Load())
	}
	for i, v := range results {
		if v != results[0] {
			t.Fatalf("caller %d saw %v, want %v", i, v, results[0])
		}
	}
}

func TestScopedStoreClearAllDropsResultsAndLocks(t *testing.T) {
	ctx := context.Background()
	store := NewScopedStore()
	id := NewIdentity()
	sig := mustSignature(t, Call())
	oldLock := store.Lock(id)

	_, _, _ = store.GetOrCompute(ctx, id, sig, func(context.Context) (any, error) { return 1, nil })
	store.ClearAll()
	if store.Len(id) != 0 {
		t.Fatalf("expected empty store after clear")
	}
	if store.Lock(id) == oldLock {
		t.Fatalf("expected a fresh lock after clear")
	}
	v, hit, _ := store.GetOrCompute(ctx, id, sig, func(context.Context) (any, error) { return 2, nil })
	if hit || v != 2 {
		t.Fatalf("expected recompute after clear: v=%v hit=%v", v, hit)
	}
}

func TestScopedStoreClearDuringComputeDiscardsResult(t *testing.T) {
	ctx := context.Background()
	store := NewScopedStore()
	id := NewIdentity()
	sig := mustSignature(t, Call())

	started := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = store.GetOrCompute(ctx, id, sig, func(context.Context) (any, error) {
			close(started)
			<-finish
			return "stale", nil
		})
	}()
	<-started
	store.ClearAll()
	close(finish)
	<-done

	v, hit, _ := store.GetOrCompute(ctx, id, sig, func(context.Context) (any, error) { return "fresh", nil })
	if hit || v != "fresh" {
		t.Fatalf("in-flight result leaked past clear: v=%v hit=%v", v, hit)
	}
}
