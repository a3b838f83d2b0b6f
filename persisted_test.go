package cachez

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func usePersistFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	SetPersistFolder(dir)
	t.Cleanup(func() { SetPersistFolder("") })
	return dir
}

func TestPersistedExpiration(t *testing.T) {
	dir := usePersistFolder(t)
	ctx := context.Background()
	base := 1
	mul := Persisted[int](Period{Seconds: 0.5})(func(_ context.Context, args Args) (int, error) {
		return base * Arg[int](args, 0), nil
	})

	if v, err := mul(ctx, Call(5)); err != nil || v != 5 {
		t.Fatalf("first call: v=%d err=%v", v, err)
	}
	base = 2
	if v, _ := mul(ctx, Call(5)); v != 5 {
		t.Fatalf("expected persisted 5 within ttl, got %d", v)
	}

	time.Sleep(time.Second)
	if v, _ := mul(ctx, Call(5)); v != 10 {
		t.Fatalf("expected recompute to 10, got %d", v)
	}
	if v, _ := mul(ctx, Call(6)); v != 12 {
		t.Fatalf("expected 12, got %d", v)
	}

	entries, err := ListPersisted(ctx, dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two files, got %d", len(entries))
	}
}

func TestPersistedFileLayout(t *testing.T) {
	dir := usePersistFolder(t)
	ctx := context.Background()
	echo := Persisted[string](Period{Minutes: 1}, WithName("app", "echo"))(func(_ context.Context, args Args) (string, error) {
		return Arg[string](args, 0), nil
	})
	if _, err := echo(ctx, Call("hi")); err != nil {
		t.Fatalf("call: %v", err)
	}

	name := PersistDigest("app", "echo", Call("hi")) + ".gob"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("expected %s on disk: %v", name, err)
	}
	var got string
	if err := (GobCodec{}).Unmarshal(data, &got); err != nil || got != "hi" {
		t.Fatalf("file should hold the plain serialized result: %q err=%v", got, err)
	}
}

func TestPersistedKeywordOrderSharesFile(t *testing.T) {
	usePersistFolder(t)
	ctx := context.Background()
	calls := 0
	fn := Persisted[int](Period{Minutes: 1}, WithName("app", "kw"))(func(context.Context, Args) (int, error) {
		calls++
		return calls, nil
	})
	_, _ = fn(ctx, Call().With("a", 1).With("b", 2))
	v, _ := fn(ctx, Call().With("b", 2).With("a", 1))
	if v != 1 || calls != 1 {
		t.Fatalf("expected shared entry, v=%d calls=%d", v, calls)
	}
	if PersistDigest("m", "f", Call(1, 2)) == PersistDigest("m", "f", Call(2, 1)) {
		t.Fatalf("positional order must change the digest")
	}
}

func TestPersistedNamesSeparateFunctions(t *testing.T) {
	if PersistDigest("app", "a", Call(1)) == PersistDigest("app", "b", Call(1)) {
		t.Fatalf("function names must change the digest")
	}
	if PersistDigest("app", "a", Call(1)) == PersistDigest("lib", "a", Call(1)) {
		t.Fatalf("module names must change the digest")
	}
}

func TestPersistedCorruptEntryIsAnError(t *testing.T) {
	dir := usePersistFolder(t)
	ctx := context.Background()
	calls := 0
	fn := Persisted[int](Period{Minutes: 1}, WithName("app", "corrupt"))(func(context.Context, Args) (int, error) {
		calls++
		return 1, nil
	})
	name := PersistDigest("app", "corrupt", Call()) + ".gob"
	if err := os.WriteFile(filepath.Join(dir, name), []byte("not gob"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := fn(ctx, Call()); err == nil || !strings.Contains(err.Error(), "decode persisted result") {
		t.Fatalf("expected decode error, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("corrupt entry must not trigger recompute")
	}
}

func TestPersistedErrorsAreNotStored(t *testing.T) {
	dir := usePersistFolder(t)
	boom := errors.New("boom")
	fn := Persisted[int](Period{Minutes: 1})(func(context.Context, Args) (int, error) { return 0, boom })
	if _, err := fn(context.Background(), Call()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	entries, _ := ListPersisted(context.Background(), dir)
	if len(entries) != 0 {
		t.Fatalf("errors must not be persisted, found %d entries", len(entries))
	}
}

func TestPersistedCreatesFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	SetPersistFolder(dir)
	t.Cleanup(func() { SetPersistFolder("") })

	fn := Persisted[int](Period{Minutes: 1})(func(context.Context, Args) (int, error) { return 1, nil })
	if _, err := fn(context.Background(), Call()); err != nil {
		t.Fatalf("call: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected folder to be created: %v", err)
	}
}

func TestPersistedFolderChangeTakesEffect(t *testing.T) {
	first := usePersistFolder(t)
	ctx := context.Background()
	calls := 0
	fn := Persisted[int](Period{Minutes: 1}, WithName("app", "move"))(func(context.Context, Args) (int, error) {
		calls++
		return calls, nil
	})
	_, _ = fn(ctx, Call())

	second := t.TempDir()
	SetPersistFolder(second)
	if v, _ := fn(ctx, Call()); v != 2 {
		t.Fatalf("new folder should start empty, got %d", v)
	}
	if entries, _ := ListPersisted(ctx, first); len(entries) != 1 {
		t.Fatalf("old folder should keep its entry")
	}
}

func TestGetPersistFolderDefaultAndOverride(t *testing.T) {
	SetPersistFolder("")
	t.Cleanup(func() { SetPersistFolder("") })
	if got := GetPersistFolder(); !strings.Contains(got, persistFolderName) {
		t.Fatalf("default folder should contain %q, got %q", persistFolderName, got)
	}
	SetPersistFolder("X")
	if got := GetPersistFolder(); got != "X" {
		t.Fatalf("expected X, got %q", got)
	}
}

func TestPersistedWithCompressionAndEncryption(t *testing.T) {
	dir := usePersistFolder(t)
	ctx := context.Background()
	fn := Persisted[string](Period{Minutes: 1},
		WithName("app", "sealed"),
		WithCompression(CompressionZstd),
		WithEncryptionKey(testKey),
	)(func(context.Context, Args) (string, error) {
		return strings.Repeat("secret ", 32), nil
	})

	want := strings.Repeat("secret ", 32)
	if v, err := fn(ctx, Call()); err != nil || v != want {
		t.Fatalf("first call: err=%v", err)
	}
	if v, err := fn(ctx, Call()); err != nil || v != want {
		t.Fatalf("second call: err=%v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, PersistDigest("app", "sealed", Call())+".gob"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Fatalf("payload stored in the clear")
	}
}

func TestPersistedInvalidOptions(t *testing.T) {
	usePersistFolder(t)
	ctx := context.Background()
	called := false
	body := func(context.Context, Args) (int, error) { called = true; return 1, nil }

	if _, err := Persisted[int](Period{Minutes: 1}, WithEncryptionKey([]byte("short")))(body)(ctx, Call()); !errors.Is(err, ErrEncryptionKey) {
		t.Fatalf("expected key error, got %v", err)
	}
	if _, err := Persisted[int](Period{Minutes: 1}, WithCompression("lz4"))(body)(ctx, Call()); !errors.Is(err, ErrUnsupportedCompression) {
		t.Fatalf("expected compression error, got %v", err)
	}
	if called {
		t.Fatalf("misconfigured wrappers must not call the function")
	}
	if _, err := Persisted[int](Period{Minutes: 1})(nil)(ctx, Call()); !errors.Is(err, ErrNilFunc) {
		t.Fatalf("expected ErrNilFunc, got %v", err)
	}
}

func TestPersistedJSONCodec(t *testing.T) {
	dir := usePersistFolder(t)
	type point struct{ X, Y int }
	fn := Persisted[point](Period{Minutes: 1}, WithName("app", "point"), WithCodec(JSONCodec{}))(func(context.Context, Args) (point, error) {
		return point{1, 2}, nil
	})
	if _, err := fn(context.Background(), Call()); err != nil {
		t.Fatalf("call: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, PersistDigest("app", "point", Call())+".json"))
	if err != nil || string(data) != `{"X":1,"Y":2}` {
		t.Fatalf("unexpected json file %q err=%v", data, err)
	}
}

func TestPersistedObserverReportsDriver(t *testing.T) {
	usePersistFolder(t)
	spy := installSpy(t)
	fn := Persisted[int](Period{Minutes: 1})(func(context.Context, Args) (int, error) { return 1, nil })
	_, _ = fn(context.Background(), Call())
	_, _ = fn(context.Background(), Call())
	events := spy.snapshot()
	if len(events) != 2 || events[0].hit || !events[1].hit || events[1].driver != DriverFile {
		t.Fatalf("unexpected persisted events: %+v", events)
	}
}
