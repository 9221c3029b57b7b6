// Package pipeline runs one flash from selection to history record: enumerate,
// resolve, confirm, flash. Every step runs in sequence and every failure is returned
// to the caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/db"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/device"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/flash"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/image"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/safety"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrNoSelection is returned when the image or the device was not chosen.
	ErrNoSelection = errors.New("no selection")

	// ErrDeviceNotFound is returned when the chosen device is not among the removable
	// devices attached right now.
	ErrDeviceNotFound = errors.New("device not attached or not removable")

	// ErrDeclined is returned when the operator did not approve the flash.
	ErrDeclined = errors.New("flash declined")
)

// Selection is what the operator chose.
type Selection struct {
	Image    image.Descriptor
	DeviceID string
}

// Materializer makes the bytes behind a remote image available locally.
type Materializer interface {
	Materialize(ctx context.Context, url, name string) (string, error)
}

// History records flash attempts.
type History interface {
	RecordFlash(f *db.Flash) error
}

// Result describes a completed run.
type Result struct {
	RunID   string
	Device  device.Descriptor
	Record  safety.Record
	Outcome *flash.Outcome
}

// Runner holds the collaborators of a flash. Materializer, Validator, Progress and
// History are optional.
type Runner struct {
	Enumerator   device.Enumerator
	Resolver     *image.Resolver
	Engine       *flash.Engine
	Confirm      safety.ConfirmFn
	Materializer Materializer
	Validator    *safety.Validator
	Progress     flash.ProgressFunc
	History      History
}

// Run flashes sel.Image onto sel.DeviceID once the operator approves.
//
// The device list is always queried fresh so a device unplugged since it was shown
// is never written. The engine is not invoked unless the confirmation approved.
func (r *Runner) Run(ctx context.Context, sel Selection) (*Result, error) {
	if sel.Image.Location == "" || sel.DeviceID == "" {
		return nil, ErrNoSelection
	}

	runID := ulid.Make().String()
	log := slog.With("run_id", runID)

	if sel.Image.Kind == image.KindRemote && r.Materializer != nil {
		if _, err := r.Materializer.Materialize(ctx, sel.Image.Location, sel.Image.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", sel.Image.DisplayName, err)
		}
	}

	devices, err := r.Enumerator.ListRemovable(ctx)
	if err != nil {
		return nil, err
	}
	dev, ok := device.Find(devices, sel.DeviceID)
	if !ok {
		log.Error("device_not_found", "device", sel.DeviceID, "available", len(devices))
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, sel.DeviceID)
	}

	if r.Validator != nil {
		if err := r.Validator.ValidateTarget(dev); err != nil {
			return nil, err
		}
	}

	src, err := r.Resolver.Resolve(sel.Image)
	if err != nil {
		return nil, err
	}

	if r.Validator != nil {
		if err := r.Validator.ValidateSource(src.Path(), dev); err != nil {
			src.Close()
			return nil, err
		}
	}

	result := &Result{RunID: runID, Device: dev}
	entry := &db.Flash{
		RunID:         runID,
		ImageName:     sel.Image.DisplayName,
		ImageLocation: src.Path(),
		Device:        dev.Identifier,
		DeviceLabel:   dev.Label,
		BytesTotal:    src.Size(),
	}

	result.Record = safety.ConfirmWithSize(sel.Image, dev, src.Size(), r.Confirm)
	if !result.Record.Approved {
		src.Close()
		log.Info("flash_declined", "image", sel.Image.DisplayName, "device", dev.Identifier)
		entry.Status = db.FlashDeclined
		r.record(entry)
		return result, ErrDeclined
	}

	job := flash.NewJob(src, dev)
	outcome, err := r.Engine.Flash(ctx, job, r.Progress)
	entry.BytesWritten = job.BytesWritten()
	if err != nil {
		entry.Status = db.FlashFailed
		entry.ErrorMessage = err.Error()
		r.record(entry)
		return result, err
	}

	result.Outcome = outcome
	entry.Status = db.FlashSuccess
	r.record(entry)

	log.Info("flash_run_complete", "image", sel.Image.DisplayName, "device", dev.Identifier, "bytes_written", outcome.TotalBytesWritten)
	return result, nil
}

func (r *Runner) record(entry *db.Flash) {
	if r.History == nil {
		return
	}
	if err := r.History.RecordFlash(entry); err != nil {
		slog.Warn("flash_history_write_failed", "run_id", entry.RunID, "error", err)
	}
}
