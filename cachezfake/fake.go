package cachezfake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/cachez"
)

// Op identifies a backend operation for assertions.
type Op string

const (
	OpLoad   Op = "load"
	OpSave   Op = "save"
	OpDelete Op = "delete"
	OpFlush  Op = "flush"
)

// Fake is a deterministic in-memory Backend plus assertion helpers for tests.
// It wraps the memory backend so no external services or folders are needed.
type Fake struct {
	inner   cachez.Backend
	counts  map[Op]map[string]int
	backlog map[string]time.Duration
	stored  map[string]struct{}
	mu      sync.Mutex
}

var _ cachez.Backend = (*Fake)(nil)

// New creates a Fake backed by process memory.
func New() *Fake {
	return &Fake{
		inner:   cachez.NewMemoryBackend(),
		counts:  make(map[Op]map[string]int),
		backlog: make(map[string]time.Duration),
		stored:  make(map[string]struct{}),
	}
}

// Option returns the persist option that routes a persisted function here.
func (f *Fake) Option() cachez.PersistOption { return cachez.WithBackend(f) }

// Driver reports the fake driver.
func (f *Fake) Driver() cachez.Driver { return cachez.DriverFake }

// Load returns the stored entry with its modification time shifted back by
// any age applied through Age.
func (f *Fake) Load(ctx context.Context, name string) (cachez.Entry, bool, error) {
	f.record(OpLoad, name)
	entry, ok, err := f.inner.Load(ctx, name)
	if err != nil || !ok {
		return entry, ok, err
	}
	f.mu.Lock()
	entry.ModTime = entry.ModTime.Add(-f.backlog[name])
	f.mu.Unlock()
	return entry, true, nil
}

func (f *Fake) Save(ctx context.Context, name string, blob []byte) error {
	f.record(OpSave, name)
	f.mu.Lock()
	delete(f.backlog, name)
	f.stored[name] = struct{}{}
	f.mu.Unlock()
	return f.inner.Save(ctx, name, blob)
}

func (f *Fake) Delete(ctx context.Context, name string) error {
	f.record(OpDelete, name)
	f.mu.Lock()
	delete(f.backlog, name)
	delete(f.stored, name)
	f.mu.Unlock()
	return f.inner.Delete(ctx, name)
}

func (f *Fake) Flush(ctx context.Context) error {
	f.record(OpFlush, "")
	f.mu.Lock()
	f.backlog = make(map[string]time.Duration)
	f.stored = make(map[string]struct{})
	f.mu.Unlock()
	return f.inner.Flush(ctx)
}

// Age makes every stored entry look d older than it is, so expiry can be
// tested without sleeping. The shift is cleared when an entry is rewritten.
func (f *Fake) Age(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name := range f.stored {
		f.backlog[name] += d
	}
}

// Names returns the stored entry names in no particular order.
func (f *Fake) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.stored))
	for name := range f.stored {
		out = append(out, name)
	}
	return out
}

// Reset clears recorded counts.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
}

// AssertCalled verifies name was touched by op the expected number of times.
func (f *Fake) AssertCalled(t *testing.T, op Op, name string, times int) {
	t.Helper()
	if got := f.Count(op, name); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, name, times, got)
	}
}

// AssertNotCalled ensures name was never touched by op.
func (f *Fake) AssertNotCalled(t *testing.T, op Op, name string) {
	t.Helper()
	if got := f.Count(op, name); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, name, got)
	}
}

// AssertTotal ensures the total call count for an op matches times.
func (f *Fake) AssertTotal(t *testing.T, op Op, times int) {
	t.Helper()
	if got := f.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// Count returns calls for op+name.
func (f *Fake) Count(op Op, name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		return 0
	}
	return f.counts[op][name]
}

// Total returns total calls for an op across names.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, v := range f.counts[op] {
		sum += v
	}
	return sum
}

func (f *Fake) record(op Op, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][name]++
}
