package resultcache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(context.Background(), filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKey_Stable(t *testing.T) {
	a := Key([]byte("expressions: []"))
	if a != Key([]byte("expressions: []")) {
		t.Error("same text gave different keys")
	}
	if a == Key([]byte("expressions: [ ]")) {
		t.Error("different text gave the same key")
	}
	if len(a) != 64 {
		t.Errorf("key %q is not a hex sha256", a)
	}
}

func TestCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	session := uuid.New()
	key := Key([]byte("v1"))
	err := c.Put(ctx,
		&Entry{Fixture: key, Name: "answer", Source: "a.yaml", Text: "42", JSON: []byte("42"), Session: session, Instructions: 7},
		&Entry{Fixture: key, Name: "boom", Source: "a.yaml", Text: "Exception kotlin.IllegalStateException", Failed: true, Session: session},
	)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	tests := []struct {
		name   string
		text   string
		json   string
		failed bool
	}{
		{"answer", "42", "42", false},
		{"boom", "Exception kotlin.IllegalStateException", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := c.Get(ctx, "a.yaml", key, tt.name)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if e.Text != tt.text || string(e.JSON) != tt.json || e.Failed != tt.failed {
				t.Errorf("got %+v", e)
			}
			if e.Session != session {
				t.Errorf("session = %s, want %s", e.Session, session)
			}
			if !e.CreatedAt.Equal(fixed) {
				t.Errorf("created at %s, want %s", e.CreatedAt, fixed)
			}
			if e.Source != "a.yaml" {
				t.Errorf("source = %q", e.Source)
			}
		})
	}
}

func TestCache_Miss(t *testing.T) {
	c := openCache(t)
	_, err := c.Get(context.Background(), "a.yaml", Key([]byte("nothing")), "x")
	if !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss, got %v", err)
	}
}

func TestCache_Replace(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)
	key := Key([]byte("v1"))
	for _, text := range []string{"1", "2"} {
		if err := c.Put(ctx, &Entry{Fixture: key, Name: "n", Source: "a.yaml", Text: text, Session: uuid.New()}); err != nil {
			t.Fatal(err)
		}
	}
	e, err := c.Get(ctx, "a.yaml", key, "n")
	if err != nil {
		t.Fatal(err)
	}
	if e.Text != "2" {
		t.Errorf("text = %q, want the later value", e.Text)
	}
	if n, _, _ := c.Stats(ctx); n != 1 {
		t.Errorf("%d entries after replace, want 1", n)
	}
}

func TestCache_Prune(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)
	old, cur := Key([]byte("v1")), Key([]byte("v2"))
	err := c.Put(ctx,
		&Entry{Fixture: old, Name: "a", Source: "a.yaml", Text: "1", Session: uuid.New()},
		&Entry{Fixture: old, Name: "b", Source: "a.yaml", Text: "2", Session: uuid.New()},
		&Entry{Fixture: cur, Name: "a", Source: "a.yaml", Text: "3", Session: uuid.New()},
		&Entry{Fixture: old, Name: "a", Source: "other.yaml", Text: "4", Session: uuid.New()},
	)
	if err != nil {
		t.Fatal(err)
	}

	n, err := c.Prune(ctx, "a.yaml", cur)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("pruned %d rows, want 2", n)
	}
	entries, fixtures, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if entries != 2 || fixtures != 2 {
		t.Errorf("stats = %d entries, %d fixtures; want 2, 2", entries, fixtures)
	}
	e, err := c.Get(ctx, "other.yaml", old, "a")
	if err != nil {
		t.Fatalf("other.yaml lost its entry: %v", err)
	}
	if e.Text != "4" {
		t.Errorf("other.yaml text = %q, want 4", e.Text)
	}
}

func TestCache_SameTextTwoPaths(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)
	key := Key([]byte("same"))
	err := c.Put(ctx,
		&Entry{Fixture: key, Name: "n", Source: "a.yaml", Text: "1", Session: uuid.New()},
		&Entry{Fixture: key, Name: "n", Source: "b.yaml", Text: "2", Session: uuid.New()},
	)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		source string
		text   string
	}{
		{"a.yaml", "1"},
		{"b.yaml", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			e, err := c.Get(ctx, tt.source, key, "n")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if e.Text != tt.text || e.Source != tt.source {
				t.Errorf("got %+v", e)
			}
		})
	}

	if n, err := c.Prune(ctx, "a.yaml", Key([]byte("newer"))); err != nil || n != 1 {
		t.Errorf("Prune = %d, %v; want 1 row", n, err)
	}
	if _, err := c.Get(ctx, "b.yaml", key, "n"); err != nil {
		t.Errorf("pruning a.yaml removed b.yaml's entry: %v", err)
	}
}

func TestCache_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")
	c, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	key := Key([]byte("v1"))
	if err := c.Put(ctx, &Entry{Fixture: key, Name: "x", Source: "a.yaml", Text: "ok", Session: uuid.New()}); err != nil {
		t.Fatal(err)
	}
	c.Close()

	c, err = Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Get(ctx, "a.yaml", key, "x"); err != nil {
		t.Errorf("entry lost across reopen: %v", err)
	}
}
