package pagesource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writePage(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDirectoryPagesOrdered(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePage(t, dir, "ch1_page_10.png", []byte("ten"))
	writePage(t, dir, "ch1_page_2.jpg", []byte("two"))
	writePage(t, dir, "ch1_page_1.png", []byte("one"))
	writePage(t, dir, "ch2_page_1.png", []byte("other scene"))
	writePage(t, dir, "notes.txt", []byte("ignored"))

	src := NewDirectory(dir, nil)
	pages, err := src.Pages(context.Background(), "ch1")
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}

	if len(pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(pages))
	}
	wantNumbers := []int{1, 2, 10}
	for i, p := range pages {
		if p.Number != wantNumbers[i] {
			t.Errorf("pages[%d].Number = %d, want %d", i, p.Number, wantNumbers[i])
		}
	}
	if string(pages[0].Data) != "one" {
		t.Errorf("pages[0].Data = %q", pages[0].Data)
	}
	if pages[1].MIMEType != "image/jpeg" || pages[0].MIMEType != "image/png" {
		t.Errorf("mime types = %q, %q", pages[0].MIMEType, pages[1].MIMEType)
	}
}

func TestDirectoryPagesEmptySceneIsError(t *testing.T) {
	t.Parallel()

	src := NewDirectory(t.TempDir(), nil)
	if _, err := src.Pages(context.Background(), "ch1"); err == nil {
		t.Fatal("a scene without pages must error")
	}
}

func TestDirectoryPagesMissingDir(t *testing.T) {
	t.Parallel()

	src := NewDirectory(filepath.Join(t.TempDir(), "nope"), nil)
	if _, err := src.Pages(context.Background(), "ch1"); err == nil {
		t.Fatal("missing directory must error")
	}
}

func TestCleanupRemovesFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePage(t, dir, "ch1_page_1.png", []byte("one"))

	src := NewDirectory(dir, nil)
	pages, err := src.Pages(context.Background(), "ch1")
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}

	Cleanup(nil, pages)
	if _, err := os.Stat(pages[0].Path); !os.IsNotExist(err) {
		t.Errorf("page file should be gone, stat err = %v", err)
	}

	// Deleting again must not panic or error loudly.
	Cleanup(nil, pages)
}
