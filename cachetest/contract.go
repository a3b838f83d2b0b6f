package cachetest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/goforj/cachez"
)

// Options configures shared backend contract checks.
type Options struct {
	// CaseName is used to namespace entry names. Defaults to t.Name().
	CaseName string
	// SkipCloneCheck disables the "load returns a cloned blob" assertion.
	SkipCloneCheck bool
	// SkipFlush disables the flush assertion for backends where it is expensive or unavailable.
	SkipFlush bool
	// ClockSkew bounds how far a backend's modification time may drift from the local clock.
	ClockSkew time.Duration
}

// RunBackendContract runs a backend-agnostic contract suite.
func RunBackendContract(t *testing.T, b cachez.Backend, opts Options) {
	t.Helper()

	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	skew := opts.ClockSkew
	if skew <= 0 {
		skew = 2 * time.Second
	}
	ctx := context.Background()
	name := func(s string) string {
		return cachez.PersistDigest(sanitize(caseName), "contract", cachez.Call(s)) + ".bin"
	}

	// Missing entries are misses, not errors.
	if _, ok, err := b.Load(ctx, name("missing")); err != nil || ok {
		t.Fatalf("expected miss for unknown entry: ok=%v err=%v", ok, err)
	}

	// Save/Load round-trip with a write timestamp.
	before := time.Now()
	if err := b.Save(ctx, name("alpha"), []byte("value")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	entry, ok, err := b.Load(ctx, name("alpha"))
	if err != nil || !ok || string(entry.Blob) != "value" {
		t.Fatalf("unexpected load result: ok=%v blob=%q err=%v", ok, string(entry.Blob), err)
	}
	if entry.ModTime.Before(before.Add(-skew)) || entry.ModTime.After(time.Now().Add(skew)) {
		t.Fatalf("mod time %v outside [%v, now]", entry.ModTime, before)
	}
	if !opts.SkipCloneCheck {
		entry.Blob[0] = 'X'
		again, ok, err := b.Load(ctx, name("alpha"))
		if err != nil || !ok || string(again.Blob) != "value" {
			t.Fatalf("expected stored blob unchanged, got ok=%v blob=%q err=%v", ok, string(again.Blob), err)
		}
	}

	// Overwrite replaces the blob.
	if err := b.Save(ctx, name("alpha"), []byte("value2")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	entry, ok, err = b.Load(ctx, name("alpha"))
	if err != nil || !ok || string(entry.Blob) != "value2" {
		t.Fatalf("unexpected load after overwrite: ok=%v blob=%q err=%v", ok, string(entry.Blob), err)
	}

	// Delete, including a second delete of the same entry.
	if err := b.Delete(ctx, name("alpha")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, err := b.Load(ctx, name("alpha")); err != nil || ok {
		t.Fatalf("expected miss after delete: ok=%v err=%v", ok, err)
	}
	if err := b.Delete(ctx, name("alpha")); err != nil {
		t.Fatalf("delete of missing entry failed: %v", err)
	}

	// Persisted functions reuse stored results.
	calls := 0
	double := cachez.Persisted[int](cachez.Period{Minutes: 1},
		cachez.WithBackend(b),
		cachez.WithName(sanitize(caseName), "double"),
	)(func(_ context.Context, args cachez.Args) (int, error) {
		calls++
		return 2 * cachez.Arg[int](args, 0), nil
	})
	for i := 0; i < 2; i++ {
		v, err := double(ctx, cachez.Call(21))
		if err != nil || v != 42 {
			t.Fatalf("persisted call %d: v=%d err=%v", i, v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one computation through backend, got %d", calls)
	}

	if opts.SkipFlush {
		return
	}
	if err := b.Save(ctx, name("f1"), []byte("1")); err != nil {
		t.Fatalf("save f1 failed: %v", err)
	}
	if err := b.Save(ctx, name("f2"), []byte("2")); err != nil {
		t.Fatalf("save f2 failed: %v", err)
	}
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	for _, n := range []string{"f1", "f2"} {
		if _, ok, err := b.Load(ctx, name(n)); err != nil || ok {
			t.Fatalf("expected %s flushed: ok=%v err=%v", n, ok, err)
		}
	}
}

func sanitize(s string) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(s)
}
