package fsm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/db"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/storage"
	"github.com/opencontainers/go-digest"
)

type countingFetcher struct {
	body  string
	err   error
	calls int
}

func (f *countingFetcher) Fetch(_ context.Context, _ string, w io.Writer) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	n, err := io.WriteString(w, f.body)
	return int64(n), err
}

func newTestMachine(t *testing.T, f storage.Fetcher) (*Machine, *db.Repository, *storage.Cache) {
	t.Helper()

	dir := t.TempDir()
	repo, err := db.NewRepository(filepath.Join(dir, "images.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	cache := storage.NewCache(dir)
	return NewMachine(repo, cache, f, 3), repo, cache
}

func runSteps(ctx context.Context, m *Machine, msg *MaterializeRequest) (*MaterializeResponse, error) {
	resp := &MaterializeResponse{}
	for _, s := range []step{m.checkCache, m.download, m.verify, m.complete} {
		if err := s(ctx, msg, resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

const testURL = "https://downloads.example.com/raspios-lite.img"

func TestMaterializeDownloadsOnce(t *testing.T) {
	f := &countingFetcher{body: "image bytes"}
	m, repo, cache := newTestMachine(t, f)
	msg := &MaterializeRequest{URL: testURL, Name: "Raspberry Pi OS Lite"}

	resp, err := runSteps(context.Background(), m, msg)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if resp.Status != db.StatusReady || resp.LocalPath != cache.PathFor(testURL) {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Digest != digest.FromString("image bytes").String() || resp.Size != 11 {
		t.Errorf("unexpected digest/size %s/%d", resp.Digest, resp.Size)
	}

	img, _ := repo.GetByURL(testURL)
	if img == nil || img.Status != db.StatusReady || img.Name != msg.Name || img.Digest != resp.Digest {
		t.Errorf("ledger not updated: %+v", img)
	}

	resp, err = runSteps(context.Background(), m, msg)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !resp.Cached {
		t.Error("second run should find the cached image")
	}
	if f.calls != 1 {
		t.Errorf("expected a single download, got %d", f.calls)
	}
}

func TestMaterializeAdoptsUntrackedFile(t *testing.T) {
	f := &countingFetcher{body: "unused"}
	m, repo, cache := newTestMachine(t, f)

	if err := os.MkdirAll(cache.Dir(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cache.PathFor(testURL), []byte("already here"), 0644); err != nil {
		t.Fatal(err)
	}

	resp, err := runSteps(context.Background(), m, &MaterializeRequest{URL: testURL, Name: "Lite"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if f.calls != 0 {
		t.Errorf("expected no download, got %d", f.calls)
	}
	if resp.Digest != digest.FromString("already here").String() {
		t.Errorf("expected digest of the existing file, got %s", resp.Digest)
	}

	img, _ := repo.GetByURL(testURL)
	if img.Status != db.StatusReady || img.Size != int64(len("already here")) {
		t.Errorf("unexpected ledger row %+v", img)
	}
}

func TestDownloadErrorsClassified(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"not found", &storage.StatusError{URL: testURL, Code: 404}, true},
		{"server error", &storage.StatusError{URL: testURL, Code: 503}, false},
		{"rate limited", &storage.StatusError{URL: testURL, Code: 429}, false},
		{"unsupported scheme", fmt.Errorf("%w: ftp", storage.ErrUnsupportedScheme), true},
		{"connection reset", errors.New("connection reset by peer"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := newTestMachine(t, &countingFetcher{err: tt.err})
			_, err := runSteps(context.Background(), m, &MaterializeRequest{URL: testURL})
			if err == nil {
				t.Fatal("expected error")
			}
			if isPermanent(err) != tt.permanent {
				t.Errorf("expected permanent=%v, got %v (%v)", tt.permanent, isPermanent(err), err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("cause lost: %v", err)
			}
		})
	}
}

func TestVerifyDetectsSizeChange(t *testing.T) {
	m, _, cache := newTestMachine(t, &countingFetcher{body: "image bytes"})
	msg := &MaterializeRequest{URL: testURL}

	resp := &MaterializeResponse{}
	for _, s := range []step{m.checkCache, m.download} {
		if err := s(context.Background(), msg, resp); err != nil {
			t.Fatalf("step failed: %v", err)
		}
	}

	if err := os.WriteFile(resp.LocalPath, []byte("truncated"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := m.verify(context.Background(), msg, resp); err == nil {
		t.Fatal("expected verify to reject a file whose size changed")
	}
	if p, _ := cache.Locate(testURL); p != "" {
		t.Error("corrupt cache entry should be removed so the next run downloads again")
	}
}

type urlFetcher struct {
	bodies map[string]string
	calls  int
}

func (f *urlFetcher) Fetch(_ context.Context, rawURL string, w io.Writer) (int64, error) {
	f.calls++
	body, ok := f.bodies[rawURL]
	if !ok {
		return 0, &storage.StatusError{URL: rawURL, Code: 404}
	}
	n, err := io.WriteString(w, body)
	return int64(n), err
}

func TestMaterializeSameBasenameDifferentURLs(t *testing.T) {
	const (
		urlA = "https://a.example.com/2024/raspios.img"
		urlB = "https://b.example.com/2025/raspios.img"
	)
	f := &urlFetcher{bodies: map[string]string{urlA: "IMAGE-A", urlB: "IMAGE-B"}}
	m, repo, _ := newTestMachine(t, f)

	respA, err := runSteps(context.Background(), m, &MaterializeRequest{URL: urlA, Name: "A"})
	if err != nil {
		t.Fatalf("materializing A failed: %v", err)
	}
	respB, err := runSteps(context.Background(), m, &MaterializeRequest{URL: urlB, Name: "B"})
	if err != nil {
		t.Fatalf("materializing B failed: %v", err)
	}

	if respB.Cached {
		t.Error("B must not be served from A's cache entry")
	}
	if f.calls != 2 {
		t.Errorf("expected one download per URL, got %d", f.calls)
	}
	if respA.LocalPath == respB.LocalPath {
		t.Fatalf("A and B share local path %s", respA.LocalPath)
	}

	for _, tt := range []struct {
		url, path, want string
	}{
		{urlA, respA.LocalPath, "IMAGE-A"},
		{urlB, respB.LocalPath, "IMAGE-B"},
	} {
		got, err := os.ReadFile(tt.path)
		if err != nil || string(got) != tt.want {
			t.Errorf("%s materialized to %q, want %q", tt.url, got, tt.want)
		}
		img, _ := repo.GetByURL(tt.url)
		if img == nil || img.LocalPath != tt.path || img.Digest != digest.FromString(tt.want).String() {
			t.Errorf("unexpected ledger row for %s: %+v", tt.url, img)
		}
	}
}
