package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goforj/cachez"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seed(t *testing.T, dir string, args ...any) string {
	t.Helper()
	name := cachez.PersistDigest("cli", "seed", cachez.Call(args...)) + ".gob"
	if err := os.WriteFile(filepath.Join(dir, name), []byte("payload"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return name
}

func TestPathPrintsFolder(t *testing.T) {
	out, err := run(t, "--folder", "/tmp/somewhere", "path")
	if err != nil || strings.TrimSpace(out) != "/tmp/somewhere" {
		t.Fatalf("unexpected output %q err=%v", out, err)
	}
}

func TestPathDefaultsToPersistFolder(t *testing.T) {
	out, err := run(t, "path")
	if err != nil || strings.TrimSpace(out) != cachez.GetPersistFolder() {
		t.Fatalf("unexpected output %q err=%v", out, err)
	}
}

func TestListShowsEntries(t *testing.T) {
	dir := t.TempDir()
	name := seed(t, dir, 1)
	out, err := run(t, "--folder", dir, "ls")
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	if !strings.Contains(out, name) || !strings.Contains(out, "1 entries") {
		t.Fatalf("unexpected listing:\n%s", out)
	}
}

func TestPruneAndPurge(t *testing.T) {
	dir := t.TempDir()
	old := seed(t, dir, "old")
	seed(t, dir, "new")
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, old), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	out, err := run(t, "--folder", dir, "prune", "--older-than", "24h")
	if err != nil || !strings.Contains(out, "pruned 1 entries") {
		t.Fatalf("prune: %q err=%v", out, err)
	}
	out, err = run(t, "--folder", dir, "purge")
	if err != nil || !strings.Contains(out, "purged 1 entries") {
		t.Fatalf("purge: %q err=%v", out, err)
	}
}

func TestPruneRequiresDuration(t *testing.T) {
	if _, err := run(t, "--folder", t.TempDir(), "prune"); err == nil {
		t.Fatalf("expected missing flag error")
	}
	if _, err := run(t, "--folder", t.TempDir(), "prune", "--older-than", "0s"); err == nil {
		t.Fatalf("expected non-positive duration error")
	}
}
