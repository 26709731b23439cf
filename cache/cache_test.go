package cache

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/chazu/loxvm/compiler"
	"github.com/chazu/loxvm/pkg/bytecode"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache", "chunks.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKeyIsStable(t *testing.T) {
	if Key("1 + 2") != Key("1 + 2") {
		t.Error("Key is not deterministic")
	}
	if Key("1 + 2") == Key("1+2") {
		t.Error("different sources share a key")
	}
	if len(Key("")) != 64 {
		t.Errorf("Key length = %d, want 64 hex digits", len(Key("")))
	}
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	source := `(1 + 2) * "x"`
	chunk, err := compiler.Compile(source)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Get(ctx, source); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get before Put = %v, want ErrNotFound", err)
	}
	if err := c.Put(ctx, source, chunk); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := c.Get(ctx, source)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(got.Code, chunk.Code) || !reflect.DeepEqual(got.Lines, chunk.Lines) {
		t.Errorf("round trip changed code or lines")
	}
	if len(got.Constants) != len(chunk.Constants) {
		t.Fatalf("constants = %d, want %d", len(got.Constants), len(chunk.Constants))
	}
	for i := range chunk.Constants {
		if !bytecode.Equal(got.Constants[i], chunk.Constants[i]) {
			t.Errorf("constant %d = %v, want %v", i, got.Constants[i], chunk.Constants[i])
		}
	}
}

func TestGetOrCompile(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	calls := 0
	compile := func(src string) (*bytecode.Chunk, error) {
		calls++
		return compiler.Compile(src)
	}

	_, hit, err := c.GetOrCompile(ctx, "1 + 2", compile)
	if err != nil || hit {
		t.Fatalf("first GetOrCompile: hit=%v err=%v", hit, err)
	}
	_, hit, err = c.GetOrCompile(ctx, "1 + 2", compile)
	if err != nil || !hit {
		t.Fatalf("second GetOrCompile: hit=%v err=%v", hit, err)
	}
	if calls != 1 {
		t.Errorf("compile called %d times, want 1", calls)
	}

	n, err := c.Len(ctx)
	if err != nil || n != 1 {
		t.Errorf("Len = %d, %v; want 1", n, err)
	}
}

func TestGetOrCompileDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	_, _, err := c.GetOrCompile(ctx, "1 +", compiler.Compile)
	if err == nil {
		t.Fatal("expected compile error")
	}
	if len(compiler.Diagnostics(err)) != 1 {
		t.Errorf("compile error was not passed through: %v", err)
	}
	if n, _ := c.Len(ctx); n != 0 {
		t.Errorf("Len = %d after failed compile, want 0", n)
	}
}

func TestStaleVersionIsMiss(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	chunk, _ := compiler.Compile("1")
	if err := c.Put(ctx, "1", chunk); err != nil {
		t.Fatal(err)
	}
	if _, err := c.db.Exec("UPDATE chunks SET version = version + 1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound for stale entry", err)
	}
}

func TestCorruptEntryIsRecompiled(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	if _, err := c.db.Exec(
		"INSERT INTO chunks (key, version, data) VALUES (?, ?, ?)",
		Key("2 * 3"), bytecode.FormatVersion, []byte("garbage"),
	); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "2 * 3"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Get = %v, want decode error", err)
	}

	chunk, hit, err := c.GetOrCompile(ctx, "2 * 3", compiler.Compile)
	if err != nil || hit || chunk == nil {
		t.Fatalf("GetOrCompile = %v, %v, %v", chunk, hit, err)
	}
	if _, err := c.Get(ctx, "2 * 3"); err != nil {
		t.Errorf("entry was not repaired: %v", err)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	for _, src := range []string{"1", "2", "3"} {
		chunk, _ := compiler.Compile(src)
		if err := c.Put(ctx, src, chunk); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Len(ctx); n != 0 {
		t.Errorf("Len after Clear = %d", n)
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunks.db")

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	chunk, _ := compiler.Compile("4 / 2")
	if err := c.Put(ctx, "4 / 2", chunk); err != nil {
		t.Fatal(err)
	}
	c.Close()

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Get(ctx, "4 / 2"); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	c, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	chunk, _ := compiler.Compile("true")
	if err := c.Put(ctx, "true", chunk); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "true"); err != nil {
		t.Errorf("Get: %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, src := range []string{"1 + 1", "2 + 2", "3 + 3"} {
				if _, _, err := c.GetOrCompile(ctx, src, compiler.Compile); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	if n, _ := c.Len(ctx); n != 3 {
		t.Errorf("Len = %d, want 3", n)
	}
}
