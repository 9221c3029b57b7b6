package storage

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/errors"
	"github.com/opencontainers/go-digest"
)

const partialPrefix = ".partial-"

// Cache keeps downloaded images under <dir>/images. A file only appears under its
// final name once fully written.
type Cache struct {
	dir string
}

// NewCache creates a cache rooted at dir. Nothing is created until the first Store.
func NewCache(dir string) *Cache {
	return &Cache{dir: filepath.Join(dir, "images")}
}

// Dir returns the directory holding cached images.
func (c *Cache) Dir() string {
	return c.dir
}

// PathFor returns where the image for rawURL lives once materialized.
func (c *Cache) PathFor(rawURL string) string {
	return filepath.Join(c.dir, fileName(rawURL))
}

// Locate returns the local path for rawURL, or "" when it has not been downloaded.
func (c *Cache) Locate(rawURL string) (string, error) {
	p := c.PathFor(rawURL)
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", errors.Wrapf(os.ErrInvalid, "cache entry %s is a directory", p)
	}
	return p, nil
}

// DownloadResult contains download metadata
type DownloadResult struct {
	LocalPath string
	Digest    digest.Digest
	Size      int64
}

// Store downloads rawURL into the cache through a temporary file and computes its
// digest on the way.
func (c *Cache) Store(ctx context.Context, f Fetcher, rawURL string) (*DownloadResult, error) {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		slog.Error("cache_dir_creation_failed", "path", c.dir, "error", err)
		return nil, errors.Wrap(err, "failed to create cache dir")
	}

	tmp, err := os.CreateTemp(c.dir, partialPrefix+"*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	digester := digest.Canonical.Digester()
	size, err := f.Fetch(ctx, rawURL, io.MultiWriter(tmp, digester.Hash()))
	if err != nil {
		tmp.Close()
		return nil, errors.Wrap(err, "download failed")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, errors.Wrap(err, "failed to sync download")
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close download")
	}

	dst := c.PathFor(rawURL)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return nil, errors.Wrap(err, "failed to move download into place")
	}

	result := &DownloadResult{LocalPath: dst, Digest: digester.Digest(), Size: size}
	slog.Info("cache_stored",
		"url", rawURL,
		"local_path", dst,
		"size_mb", size/1024/1024,
		"digest", result.Digest.String()[:23]+"...",
	)
	return result, nil
}

// Remove deletes the cached image for rawURL. A missing file is not an error.
func (c *Cache) Remove(rawURL string) error {
	return RemoveFile(c.PathFor(rawURL))
}

// Files lists completed cache entries, skipping in-progress downloads.
func (c *Cache) Files() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), partialPrefix) {
			continue
		}
		files = append(files, filepath.Join(c.dir, e.Name()))
	}
	return files, nil
}

// RemoveFile deletes p, ignoring a missing file.
func RemoveFile(p string) error {
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DigestFile computes the canonical digest and size of an existing file.
func DigestFile(p string) (digest.Digest, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	digester := digest.Canonical.Digester()
	n, err := io.Copy(digester.Hash(), f)
	if err != nil {
		return "", n, err
	}
	return digester.Digest(), n, nil
}

// fileName prefixes the URL's last path element with a digest of the full URL, so
// images that share a basename on different hosts, paths or queries never collide.
func fileName(rawURL string) string {
	key := digest.FromString(rawURL).Encoded()[:12]
	if u, err := url.Parse(rawURL); err == nil {
		base := path.Base(u.Path)
		if base != "" && base != "." && base != "/" {
			return key + "-" + base
		}
	}
	return "image-" + key
}
