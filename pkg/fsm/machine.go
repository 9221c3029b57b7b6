// Package fsm implements the image materialization workflow. It makes sure the bytes
// behind a catalog URL exist in the local cache before a flash, using the
// superfly/fsm library so an interrupted download is retried from its last state.
package fsm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/db"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/errors"
	"github.com/oklog/ulid/v2"
	"github.com/superfly/fsm"
)

// Register registers the materialization FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[MaterializeRequest, MaterializeResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[MaterializeRequest, MaterializeResponse](manager, "image-materialize").
		Start(StateCheckCache, m.handler(StateCheckCache, m.checkCache)).
		To(StateDownload, m.handler(StateDownload, m.download)).
		To(StateVerify, m.handler(StateVerify, m.verify)).
		To(StateComplete, m.handler(StateComplete, m.complete)).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}

// Materializer runs the workflow to completion for one URL at a time.
type Materializer struct {
	manager *fsm.Manager
	start   fsm.Start[MaterializeRequest, MaterializeResponse]
	repo    *db.Repository
}

// NewMaterializer registers machine with manager.
func NewMaterializer(ctx context.Context, manager *fsm.Manager, machine *Machine) (*Materializer, error) {
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return nil, err
	}
	return &Materializer{manager: manager, start: start, repo: machine.repo}, nil
}

// Materialize ensures url is in the cache and returns its local path. It is a no-op
// apart from bookkeeping when the image is already present.
func (m *Materializer) Materialize(ctx context.Context, url, name string) (string, error) {
	req := &MaterializeRequest{URL: url, Name: name}
	resp := &MaterializeResponse{}

	version, err := m.start(ctx, ulid.Make().String(), fsm.NewRequest(req, resp))
	if err != nil {
		return "", errors.Wrap(err, "FSM start failed")
	}

	slog.Debug("fsm_started", "url", url, "version", version)

	if err := m.manager.Wait(ctx, version); err != nil {
		return "", errors.Wrap(err, "FSM execution failed")
	}

	img, err := m.repo.GetByURL(url)
	if err != nil {
		return "", err
	}
	if img == nil || img.Status != db.StatusReady {
		msg := "unknown error"
		if img != nil && img.ErrorMessage != "" {
			msg = img.ErrorMessage
		}
		return "", fmt.Errorf("materialize %s: %s", url, msg)
	}

	slog.Info("image_materialized", "url", url, "local_path", img.LocalPath, "digest", img.Digest)
	return img.LocalPath, nil
}
