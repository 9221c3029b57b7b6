package fsm

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/db"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/errors"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/storage"
	"github.com/opencontainers/go-digest"
	"github.com/superfly/fsm"
)

// Machine holds dependencies for FSM transitions
type Machine struct {
	repo       *db.Repository
	cache      *storage.Cache
	fetcher    storage.Fetcher
	maxRetries int
}

// NewMachine creates a new FSM machine with dependencies
func NewMachine(repo *db.Repository, cache *storage.Cache, fetcher storage.Fetcher, maxRetries int) *Machine {
	return &Machine{
		repo:       repo,
		cache:      cache,
		fetcher:    fetcher,
		maxRetries: maxRetries,
	}
}

type step func(ctx context.Context, msg *MaterializeRequest, resp *MaterializeResponse) error

// permanentError marks failures that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return stderrors.As(err, &p)
}

// handler adapts a step to an FSM transition: it enforces the retry limit and turns
// permanent failures into an abort.
func (m *Machine) handler(state string, s step) func(context.Context, *fsm.Request[MaterializeRequest, MaterializeResponse]) (*fsm.Response[MaterializeResponse], error) {
	return func(ctx context.Context, req *fsm.Request[MaterializeRequest, MaterializeResponse]) (*fsm.Response[MaterializeResponse], error) {
		slog.Info("fsm_state_"+state, "url", req.Msg.URL)

		// Check retry limit
		if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
			slog.Error("max_retries_exceeded", "url", req.Msg.URL, "state", state, "max_retries", m.maxRetries)
			m.markFailed(req.Msg.URL, fmt.Sprintf("max retries (%d) exceeded in %s", m.maxRetries, state))
			return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
		}

		resp := req.W.Msg
		if resp == nil {
			resp = &MaterializeResponse{}
		}

		if err := s(ctx, req.Msg, resp); err != nil {
			if isPermanent(err) {
				m.markFailed(req.Msg.URL, err.Error())
				return nil, fsm.Abort(err)
			}
			return nil, err
		}

		return fsm.NewResponse(resp), nil
	}
}

// checkCache creates or loads the ledger row and notices images already on disk.
func (m *Machine) checkCache(ctx context.Context, msg *MaterializeRequest, resp *MaterializeResponse) error {
	img, err := m.repo.GetByURL(msg.URL)
	if err != nil {
		return permanent(errors.Wrap(err, "database error"))
	}

	if img == nil {
		img = &db.Image{URL: msg.URL, Name: msg.Name, Status: db.StatusPending}
		if err := m.repo.Create(img); err != nil {
			slog.Error("create_image_failed", "url", msg.URL, "error", err)
			return errors.Wrap(err, "failed to create image record")
		}
	}
	resp.ImageID = img.ID
	resp.Status = img.Status

	path, err := m.cache.Locate(msg.URL)
	if err != nil {
		return permanent(errors.Wrap(err, "cache lookup failed"))
	}
	if path == "" {
		if img.Status == db.StatusReady {
			slog.Warn("cache_entry_missing", "url", msg.URL, "local_path", img.LocalPath)
		}
		return nil
	}

	resp.Cached = true
	resp.LocalPath = path
	if img.Status == db.StatusReady && img.LocalPath == path {
		resp.Digest = img.Digest
		resp.Size = img.Size
	}
	slog.Info("image_already_cached", "url", msg.URL, "local_path", path, "status", img.Status)
	return nil
}

// download fetches the image unless a complete copy is already in the cache.
func (m *Machine) download(ctx context.Context, msg *MaterializeRequest, resp *MaterializeResponse) error {
	if path, _ := m.cache.Locate(msg.URL); path != "" {
		slog.Info("download_skipped", "url", msg.URL, "local_path", path)
		resp.Cached = true
		resp.LocalPath = path
		return nil
	}

	if err := m.repo.UpdateStatus(resp.ImageID, db.StatusDownloading, ""); err != nil {
		return errors.Wrap(err, "failed to update status")
	}

	result, err := m.cache.Store(ctx, m.fetcher, msg.URL)
	if err != nil {
		slog.Error("download_failed", "url", msg.URL, "error", err)
		if !retryable(err) {
			return permanent(err)
		}
		return err
	}

	resp.LocalPath = result.LocalPath
	resp.Digest = result.Digest.String()
	resp.Size = result.Size
	return nil
}

// verify checks that the cached file is what was downloaded and fills in the digest
// for files found on disk without one.
func (m *Machine) verify(ctx context.Context, msg *MaterializeRequest, resp *MaterializeResponse) error {
	path := resp.LocalPath
	if path == "" {
		path, _ = m.cache.Locate(msg.URL)
	}
	if path == "" {
		return permanent(fmt.Errorf("image %s is not in the cache", msg.URL))
	}

	info, err := os.Stat(path)
	if err != nil {
		return permanent(errors.Wrap(err, "cached image unreadable"))
	}
	if !info.Mode().IsRegular() {
		return permanent(fmt.Errorf("cached image %s is not a regular file", path))
	}

	if resp.Size != 0 && info.Size() != resp.Size {
		slog.Error("cached_image_size_mismatch", "url", msg.URL, "expected", resp.Size, "actual", info.Size())
		storage.RemoveFile(path)
		return permanent(fmt.Errorf("cached image size %d does not match downloaded size %d", info.Size(), resp.Size))
	}

	if resp.Digest == "" {
		d, n, err := storage.DigestFile(path)
		if err != nil {
			return errors.Wrap(err, "failed to digest cached image")
		}
		resp.Digest = d.String()
		resp.Size = n
	}

	if err := digest.Digest(resp.Digest).Validate(); err != nil {
		return permanent(errors.Wrap(err, "invalid digest"))
	}

	resp.LocalPath = path
	slog.Info("cached_image_verified", "url", msg.URL, "size_mb", resp.Size/1024/1024, "digest", resp.Digest)
	return nil
}

// complete marks the image as ready.
func (m *Machine) complete(ctx context.Context, msg *MaterializeRequest, resp *MaterializeResponse) error {
	img, err := m.repo.GetByURL(msg.URL)
	if err != nil {
		return permanent(errors.Wrap(err, "failed to load image"))
	}
	if img == nil {
		return permanent(fmt.Errorf("image not found in database"))
	}

	if msg.Name != "" {
		img.Name = msg.Name
	}
	img.LocalPath = resp.LocalPath
	img.Digest = resp.Digest
	img.Size = resp.Size
	img.Status = db.StatusReady
	img.ErrorMessage = ""
	if err := m.repo.Update(img); err != nil {
		return errors.Wrap(err, "failed to update image")
	}
	resp.Status = db.StatusReady

	slog.Info("fsm_complete", "url", msg.URL, "status", db.StatusReady)
	return nil
}

func (m *Machine) markFailed(url, reason string) {
	img, err := m.repo.GetByURL(url)
	if err != nil || img == nil {
		return
	}
	if err := m.repo.UpdateStatus(img.ID, db.StatusFailed, reason); err != nil {
		slog.Error("status_update_failed", "image_id", img.ID, "status", db.StatusFailed, "error", err)
	}
}

// retryable reports whether a download error is worth another attempt. Client errors
// and unsupported schemes are not.
func retryable(err error) bool {
	if stderrors.Is(err, storage.ErrUnsupportedScheme) || stderrors.Is(err, context.Canceled) {
		return false
	}
	var se *storage.StatusError
	if stderrors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError || se.Code == http.StatusTooManyRequests
	}
	return true
}
