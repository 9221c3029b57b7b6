package image

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

type mapLocator map[string]string

func (m mapLocator) Locate(url string) (string, error) {
	return m[url], nil
}

func TestResolveLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raspios.img")
	content := []byte("not really an image, any bytes are accepted")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}

	src, err := NewResolver(nil).Resolve(Local(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()

	if src.Size() != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), src.Size())
	}
	if src.Path() != path {
		t.Errorf("expected path %s, got %s", path, src.Path())
	}

	got, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestResolveEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.img")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}

	src, err := NewResolver(nil).Resolve(Local(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()

	if src.Size() != 0 {
		t.Errorf("expected size 0, got %d", src.Size())
	}
}

func TestResolveErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		desc Descriptor
		want error
	}{
		{"missing file", Local(filepath.Join(dir, "missing.img")), ErrNotFound},
		{"empty path", Local(""), ErrNotFound},
		{"directory", Local(dir), ErrNotReadable},
		{"remote not materialized", Remote("Raspberry Pi OS Lite", "https://example.com/lite.img"), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(mapLocator{}).Resolve(tt.desc)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var srcErr *SourceError
			if !errors.As(err, &srcErr) {
				t.Errorf("expected *SourceError, got %T", err)
			}
		})
	}
}

func TestResolvePermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}

	path := filepath.Join(t.TempDir(), "secret.img")
	if err := os.WriteFile(path, []byte("x"), 0000); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}

	_, err := NewResolver(nil).Resolve(Local(path))
	if !errors.Is(err, ErrNotReadable) {
		t.Fatalf("expected ErrNotReadable, got %v", err)
	}
}

func TestResolveRemoteMaterialized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lite.img")
	if err := os.WriteFile(path, []byte("pi"), 0644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}

	url := "https://downloads.example.com/lite.img"
	src, err := NewResolver(mapLocator{url: path}).Resolve(Remote("Lite", url))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()

	if src.Path() != path || src.Size() != 2 {
		t.Errorf("unexpected source: path=%s size=%d", src.Path(), src.Size())
	}
	if src.Descriptor().DisplayName != "Lite" {
		t.Errorf("expected descriptor to be kept, got %+v", src.Descriptor())
	}
}

func TestResolveRemoteWithoutCache(t *testing.T) {
	_, err := NewResolver(nil).Resolve(Remote("Lite", "https://example.com/lite.img"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
