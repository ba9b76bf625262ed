package util

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSortedKeys(t *testing.T) {
	t.Parallel()

	keys := SortedKeys(map[string]int{"b": 2, "a": 1, "c": 3})
	expected := []string{"a", "b", "c"}
	if len(keys) != len(expected) {
		t.Fatalf("expected %d keys, got %d", len(expected), len(keys))
	}
	for i, key := range expected {
		if keys[i] != key {
			t.Fatalf("expected %q at %d, got %q", key, i, keys[i])
		}
	}
}

func TestWriteFileWithDirs(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "report.json")
	if err := WriteFileWithDirs(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != "{}" {
		t.Fatalf("expected %q, got %q", "{}", string(got))
	}
}

func TestIsPythonSource(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"app.py":        true,
		"pkg/types.pyi": true,
		"MAIN.PY":       true,
		"setup.cfg":     false,
		"script":        false,
	}
	for path, want := range cases {
		if got := IsPythonSource(path); got != want {
			t.Errorf("IsPythonSource(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestContentHash(t *testing.T) {
	t.Parallel()

	a, b := ContentHash([]byte("x = 1\n")), ContentHash([]byte("x = 2\n"))
	if a == b {
		t.Fatal("different content must hash differently")
	}
	if a != ContentHash([]byte("x = 1\n")) || len(a) != 64 {
		t.Fatalf("unexpected hash %q", a)
	}
}

func TestLimiter(t *testing.T) {
	l := NewLimiter(10, 2)
	if !l.Allow() || !l.Allow() {
		t.Fatal("burst of two should be allowed")
	}
	if l.Allow() {
		t.Error("third token should be rejected")
	}
	time.Sleep(150 * time.Millisecond)
	if !l.Allow() {
		t.Error("expected token to be refilled after wait")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatalf("unlimited limiter rejected call %d", i)
		}
	}
}

func TestLimiter_Wait(t *testing.T) {
	l := NewLimiter(100, 1)
	l.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Error("Wait returned too early")
	}
}

func TestKeyedLimiter(t *testing.T) {
	k := NewKeyedLimiter(1, 1, 50*time.Millisecond)
	if !k.Allow("a.py") || !k.Allow("b.py") {
		t.Fatal("each key has its own bucket")
	}
	if k.Allow("a.py") {
		t.Error("second hit on the same key should be limited")
	}
	time.Sleep(100 * time.Millisecond)
	k.Allow("c.py")
	if k.Len() != 1 {
		t.Errorf("idle keys should be swept, have %d", k.Len())
	}
}

func TestLRU(t *testing.T) {
	c := NewLRU[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("get a = %v, %v", v, ok)
	}
	c.Put("c", 3) // evicts b, the least recently used
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	c.Put("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("update lost, got %d", v)
	}
	c.Remove("a")
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
	if NewLRU[int, int](0).capacity != 1 {
		t.Error("capacity should be normalised to 1")
	}
}
