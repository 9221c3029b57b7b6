// Package image resolves an image selection to a readable local byte stream.
//
// Resolution never performs network I/O. Remote catalog entries must already be
// materialized in the local cache by the caller; otherwise they resolve to ErrNotFound.
package image

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

// SizeUnknown is reported by Source.Size when the stream length cannot be determined.
const SizeUnknown int64 = -1

// Kind distinguishes where an image comes from.
type Kind int

const (
	KindLocal Kind = iota
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Descriptor is an immutable image selection.
type Descriptor struct {
	DisplayName string
	Kind        Kind
	// Location is the URL of a remote entry or the filesystem path of a local one.
	Location string
}

// Remote describes a catalog entry.
func Remote(name, url string) Descriptor {
	return Descriptor{DisplayName: name, Kind: KindRemote, Location: url}
}

// Local describes a user-supplied image file. The path doubles as the display name.
func Local(path string) Descriptor {
	return Descriptor{DisplayName: path, Kind: KindLocal, Location: path}
}

var (
	// ErrNotFound means the image file does not exist (or a remote image is not materialized).
	ErrNotFound = errors.New("image not found")
	// ErrNotReadable means the image exists but cannot be read.
	ErrNotReadable = errors.New("image not readable")
)

// SourceError describes why a descriptor could not be resolved.
type SourceError struct {
	Kind     error
	Location string
	Err      error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Location)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Location, e.Err)
}

func (e *SourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Locator maps a remote URL to the local path holding its materialized bytes.
// It returns an empty path when nothing has been materialized yet.
type Locator interface {
	Locate(url string) (string, error)
}

// Source is an open image stream. The caller owns it and must Close it.
type Source struct {
	desc Descriptor
	path string
	file *os.File
	size int64
}

func (s *Source) Read(p []byte) (int, error) { return s.file.Read(p) }

// Close releases the file handle.
func (s *Source) Close() error { return s.file.Close() }

// Size returns the byte length of the image, or SizeUnknown for non-regular files.
func (s *Source) Size() int64 { return s.size }

// Path is the local file the bytes are read from.
func (s *Source) Path() string { return s.path }

// Descriptor returns the selection this source was resolved from.
func (s *Source) Descriptor() Descriptor { return s.desc }

// Resolver turns descriptors into open sources.
type Resolver struct {
	locator Locator
}

// NewResolver creates a resolver. locator may be nil, in which case remote
// descriptors always resolve to ErrNotFound.
func NewResolver(locator Locator) *Resolver {
	return &Resolver{locator: locator}
}

// Resolve opens the bytes behind desc.
func (r *Resolver) Resolve(desc Descriptor) (*Source, error) {
	path := desc.Location

	if desc.Kind == KindRemote {
		if r.locator == nil {
			return nil, &SourceError{Kind: ErrNotFound, Location: desc.Location, Err: errors.New("no image cache configured")}
		}
		local, err := r.locator.Locate(desc.Location)
		if err != nil {
			return nil, &SourceError{Kind: ErrNotFound, Location: desc.Location, Err: err}
		}
		if local == "" {
			slog.Warn("image_not_materialized", "url", desc.Location)
			return nil, &SourceError{Kind: ErrNotFound, Location: desc.Location, Err: errors.New("image has not been downloaded")}
		}
		path = local
	}

	if path == "" {
		return nil, &SourceError{Kind: ErrNotFound, Location: path, Err: errors.New("empty path")}
	}

	src, err := openSource(desc, path)
	if err != nil {
		slog.Error("image_resolve_failed", "name", desc.DisplayName, "path", path, "error", err)
		return nil, err
	}

	slog.Info("image_resolved", "name", desc.DisplayName, "kind", desc.Kind.String(), "path", path, "size", src.size)
	return src, nil
}

func openSource(desc Descriptor, path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classify(path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &SourceError{Kind: ErrNotReadable, Location: path, Err: err}
	}
	if info.IsDir() {
		f.Close()
		return nil, &SourceError{Kind: ErrNotReadable, Location: path, Err: errors.New("is a directory")}
	}

	size := SizeUnknown
	if info.Mode().IsRegular() {
		size = info.Size()
	}

	return &Source{desc: desc, path: path, file: f, size: size}, nil
}

func classify(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &SourceError{Kind: ErrNotFound, Location: path, Err: err}
	default:
		// Permission errors and anything else that prevents opening.
		return &SourceError{Kind: ErrNotReadable, Location: path, Err: err}
	}
}
