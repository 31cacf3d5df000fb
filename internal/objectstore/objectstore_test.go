package objectstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestUpload(t *testing.T) {
	t.Parallel()

	var got struct {
		path, auth, upsert, contentType string
		body                            []byte
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		got.upsert = r.Header.Get("x-upsert")
		got.contentType = r.Header.Get("Content-Type")
		got.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	url, err := c.Upload(context.Background(), "audio", "/ch1/page_001.mp3", []byte("mp3"), "audio/mpeg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if got.path != "/storage/v1/object/audio/ch1/page_001.mp3" {
		t.Errorf("path = %q", got.path)
	}
	if got.auth != "Bearer secret" {
		t.Errorf("auth = %q", got.auth)
	}
	if got.upsert != "true" {
		t.Errorf("x-upsert = %q, uploads must be idempotent overwrites", got.upsert)
	}
	if got.contentType != "audio/mpeg" || string(got.body) != "mp3" {
		t.Errorf("content = %q %q", got.contentType, got.body)
	}
	if want := srv.URL + "/storage/v1/object/public/audio/ch1/page_001.mp3"; url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
}

func TestDownload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/object/docs/ch1.pdf" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("pdf bytes"))
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := c.Download(context.Background(), "docs", "ch1.pdf")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "pdf bytes" {
		t.Errorf("data = %q", data)
	}

	if _, err := c.Download(context.Background(), "docs", "missing.pdf"); err == nil {
		t.Error("missing object must error")
	}
}

func TestSignURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/storage/v1/object/sign/") {
			http.NotFound(w, r)
			return
		}
		var payload map[string]int
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload["expiresIn"] != 3600 {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"signedURL": "/storage/v1/object/sign/audio/ch1.mp3?token=abc",
		})
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	signed, err := c.SignURL(context.Background(), "audio", "ch1.mp3", time.Hour)
	if err != nil {
		t.Fatalf("SignURL: %v", err)
	}
	if want := srv.URL + "/storage/v1/object/sign/audio/ch1.mp3?token=abc"; signed != want {
		t.Errorf("signed = %q, want %q", signed, want)
	}
}

func TestList(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/object/list/audio" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]Object{{Name: "ch1/page_001.mp3"}, {Name: "ch1/page_002.mp3"}})
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	objects, err := c.List(context.Background(), "audio", "ch1/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 2 || objects[0].Name != "ch1/page_001.mp3" {
		t.Errorf("objects = %+v", objects)
	}
}

func TestNewRejectsMissingConfig(t *testing.T) {
	t.Parallel()

	if _, err := New("", "key"); err == nil {
		t.Error("empty base URL must be rejected")
	}
	if _, err := New("http://x", ""); err == nil {
		t.Error("empty key must be rejected")
	}
}
