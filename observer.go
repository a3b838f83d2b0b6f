package cachez

import (
	"context"
	"sync/atomic"
	"time"
)

// Operation names reported to observers.
const (
	OpCache              = "cache"
	OpClearCache         = "clear_cache"
	OpInstanceCache      = "instance_cache"
	OpClearInstanceCache = "clear_instance_cache"
	OpPersisted          = "persisted"
)

// Observer receives events for cache operations.
// It is called from the wrappers after each operation completes.
type Observer interface {
	OnCacheOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver)

// OnCacheOp implements Observer.
func (f ObserverFunc) OnCacheOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver) {
	if f == nil {
		return
	}
	f(ctx, op, key, hit, err, dur, driver)
}

type observerBox struct{ o Observer }

var activeObserver atomic.Pointer[observerBox]

// SetObserver installs o for every wrapper in the process. Nil disables observation.
func SetObserver(o Observer) {
	if o == nil {
		activeObserver.Store(nil)
		return
	}
	activeObserver.Store(&observerBox{o: o})
}

func observe(ctx context.Context, op, key string, hit bool, err error, start time.Time, driver Driver) {
	box := activeObserver.Load()
	if box == nil {
		return
	}
	box.o.OnCacheOp(ctx, op, key, hit, err, time.Since(start), driver)
}
