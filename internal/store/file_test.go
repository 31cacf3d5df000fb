package store

import (
	"context"
	"errors"
	"testing"
)

type doc struct {
	Name  string         `json:"name"`
	Count int            `json:"count"`
	Tags  map[string]int `json:"tags"`
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	in := doc{Name: "registry", Count: 3, Tags: map[string]int{"a": 1, "b": 2}}
	if err := fs.Save(ctx, "registry", in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var out doc
	if err := fs.Load(ctx, "registry", &out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Name != in.Name || out.Count != in.Count || len(out.Tags) != 2 {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestFileStoreMissingDocument(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	var out doc
	err = fs.Load(context.Background(), "nope", &out)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load of absent document: got %v, want ErrNotFound", err)
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	if err := fs.Save(ctx, "d", doc{Count: 1}); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := fs.Save(ctx, "d", doc{Count: 2}); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	var out doc
	if err := fs.Load(ctx, "d", &out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Count != 2 {
		t.Errorf("overwrite lost: got count %d, want 2", out.Count)
	}
}

func TestFileStoreRejectsBadKeys(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"", "..", "a/b", `a\b`} {
		if err := fs.Save(ctx, key, doc{}); err == nil {
			t.Errorf("Save(%q) should have been rejected", key)
		}
	}
}
