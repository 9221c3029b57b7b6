// Package catalog fetches the list of downloadable OS images.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	pkgerrors "github.com/Sn0wAlice/rpi-os-flash/pkg/errors"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/storage"
)

const (
	// DefaultURL is the Raspberry Pi imager catalog.
	DefaultURL = "https://downloads.raspberrypi.org/os_list_v3.json"

	// CacheFile is the name of the cached catalog body inside the cache dir.
	CacheFile = "os_list.json"
)

// ErrUnavailable is returned when neither the network nor the cache can supply a catalog.
var ErrUnavailable = errors.New("catalog unavailable")

// Entry is one downloadable image.
type Entry struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	Description  string `json:"description,omitempty"`
	ReleaseDate  string `json:"release_date,omitempty"`
	DownloadSize int64  `json:"image_download_size,omitempty"`
}

type rawEntry struct {
	Entry
	Subitems []rawEntry `json:"subitems"`
}

// Parse accepts either a plain JSON array of entries or the {"os_list": [...]} object,
// whose entries may nest further entries under "subitems". Nested entries are
// flattened depth first; entries without a name or URL are dropped.
func Parse(data []byte) ([]Entry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty catalog")
	}

	var raw []rawEntry
	if data[0] == '[' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, pkgerrors.Wrap(err, "failed to parse catalog array")
		}
	} else {
		var doc struct {
			OSList *[]rawEntry `json:"os_list"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, pkgerrors.Wrap(err, "failed to parse catalog object")
		}
		if doc.OSList == nil {
			return nil, errors.New("catalog object has no os_list")
		}
		raw = *doc.OSList
	}

	var out []Entry
	flatten(raw, &out)
	return out, nil
}

func flatten(raw []rawEntry, out *[]Entry) {
	for _, r := range raw {
		if r.Name != "" && r.URL != "" {
			*out = append(*out, r.Entry)
		}
		flatten(r.Subitems, out)
	}
}

// Find returns the first entry called name.
func Find(entries []Entry, name string) (Entry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// FromURLs builds entries named after the last path element of each URL.
func FromURLs(urls []string) []Entry {
	entries := make([]Entry, 0, len(urls))
	for _, u := range urls {
		entries = append(entries, Entry{Name: path.Base(u), URL: u})
	}
	return entries
}

// Client fetches the catalog and keeps a copy of the last good body on disk.
type Client struct {
	fetcher  storage.Fetcher
	url      string
	cacheDir string
}

// NewClient creates a catalog client. An empty url uses DefaultURL.
func NewClient(fetcher storage.Fetcher, url, cacheDir string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{fetcher: fetcher, url: url, cacheDir: cacheDir}
}

// CachePath returns where the last fetched catalog is kept.
func (c *Client) CachePath() string {
	return filepath.Join(c.cacheDir, CacheFile)
}

// Fetch downloads and parses the catalog, then refreshes the on-disk copy.
func (c *Client) Fetch(ctx context.Context) ([]Entry, error) {
	slog.Info("catalog_fetch_start", "url", c.url)

	var buf bytes.Buffer
	if _, err := c.fetcher.Fetch(ctx, c.url, &buf); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to fetch catalog")
	}

	entries, err := Parse(buf.Bytes())
	if err != nil {
		return nil, err
	}

	if err := c.writeCache(buf.Bytes()); err != nil {
		slog.Warn("catalog_cache_write_failed", "path", c.CachePath(), "error", err)
	}

	slog.Info("catalog_fetch_complete", "url", c.url, "entries", len(entries))
	return entries, nil
}

// Load parses the on-disk copy.
func (c *Client) Load() ([]Entry, error) {
	data, err := os.ReadFile(c.CachePath())
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// List fetches the catalog, falling back to the cached copy when the fetch fails.
// stale is true when the cached copy was used.
func (c *Client) List(ctx context.Context) (entries []Entry, stale bool, err error) {
	entries, fetchErr := c.Fetch(ctx)
	if fetchErr == nil {
		return entries, false, nil
	}

	slog.Warn("catalog_fetch_failed_using_cache", "url", c.url, "error", fetchErr)

	entries, loadErr := c.Load()
	if loadErr != nil {
		return nil, false, fmt.Errorf("%w: %v (cache: %v)", ErrUnavailable, fetchErr, loadErr)
	}
	return entries, true, nil
}

func (c *Client) writeCache(data []byte) error {
	if err := os.MkdirAll(c.cacheDir, 0755); err != nil {
		return err
	}

	tmp := c.CachePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.CachePath())
}

// Label formats an entry for a selection list.
func Label(e Entry) string {
	if e.ReleaseDate == "" {
		return e.Name
	}
	return strings.TrimSpace(fmt.Sprintf("%s (%s)", e.Name, e.ReleaseDate))
}
