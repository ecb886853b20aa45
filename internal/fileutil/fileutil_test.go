package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	dst := filepath.Join(dir, "out", "dst.png")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatal(err)
	}

	content := []byte("verified copy content")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFileVerified(src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}

	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the destination file, found %d entries", len(entries))
	}
}

func TestCopyFileVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := CopyFileVerified(filepath.Join(dir, "missing"), filepath.Join(dir, "dst"))
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "dst")); !os.IsNotExist(statErr) {
		t.Fatal("destination should not exist after failed copy")
	}
}

func TestLocatorRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Blurred Image.png")
	loc := Locator(path)
	if !strings.HasPrefix(loc, "file://") {
		t.Fatalf("expected file scheme, got %q", loc)
	}
	if strings.Contains(loc, " ") {
		t.Fatalf("expected escaped locator, got %q", loc)
	}
	got, err := PathFromLocator(loc)
	if err != nil {
		t.Fatalf("PathFromLocator: %v", err)
	}
	if got != path {
		t.Fatalf("round trip mismatch: %q vs %q", got, path)
	}
}

func TestPathFromLocator(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare path", in: "/tmp/a.png", want: "/tmp/a.png"},
		{name: "file uri", in: "file:///tmp/b.png", want: "/tmp/b.png"},
		{name: "empty", in: "  ", wantErr: true},
		{name: "http scheme", in: "http://example.com/a.png", wantErr: true},
		{name: "file uri without path", in: "file://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PathFromLocator(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
	if _, err := PathFromLocator(""); !errors.Is(err, ErrEmptyLocator) {
		t.Fatalf("expected ErrEmptyLocator, got %v", err)
	}
}

func TestEnsureWritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	if err := EnsureWritableDir(dir); err != nil {
		t.Fatalf("EnsureWritableDir: %v", err)
	}
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := EnsureWritableDir(file); err == nil {
		t.Fatal("expected error for non-directory")
	}
	if err := EnsureWritableDir(""); err == nil {
		t.Fatal("expected error for empty dir")
	}
}
