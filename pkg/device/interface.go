// Package device enumerates removable block devices that can be used as flash targets.
//
// Several host backends are available (lsblk, UDisks2 over D-Bus, sysfs via ghw). Every
// backend funnels its results through the same removability filter, so a fixed system
// disk can never be surfaced as a target regardless of which backend produced it.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Backend names accepted by New.
const (
	BackendLsblk  = "lsblk"
	BackendUDisks = "udisks"
	BackendGHW    = "ghw"
)

var (
	// ErrBackendUnavailable means the host device-listing facility could not be invoked.
	ErrBackendUnavailable = errors.New("device backend unavailable")
	// ErrParseFailure means the facility ran but its output could not be interpreted.
	ErrParseFailure = errors.New("device listing parse failure")
)

// Descriptor identifies one removable block device.
type Descriptor struct {
	// Identifier is the OS device node, e.g. /dev/sdb or /dev/mmcblk0.
	Identifier string
	Label      string
	// SizeBytes is the capacity of the whole device, not of a partition.
	SizeBytes uint64
	Removable bool
}

// Enumerator lists the removable block devices currently attached to the host.
// Results are built fresh on every call and are never cached.
type Enumerator interface {
	ListRemovable(ctx context.Context) ([]Descriptor, error)
}

// EnumError carries the failure kind (ErrBackendUnavailable or ErrParseFailure)
// together with the backend that produced it.
type EnumError struct {
	Backend string
	Kind    error
	Err     error
}

func (e *EnumError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Backend, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Backend, e.Kind, e.Err)
}

func (e *EnumError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unavailable(backend string, err error) error {
	return &EnumError{Backend: backend, Kind: ErrBackendUnavailable, Err: err}
}

func parseFailure(backend string, err error) error {
	return &EnumError{Backend: backend, Kind: ErrParseFailure, Err: err}
}

// Backends returns the backend names accepted by New.
func Backends() []string {
	return []string{BackendLsblk, BackendUDisks, BackendGHW}
}

// New returns the enumerator for the named backend. sysRoot is only used by the ghw
// backend, where it relocates /sys and /proc (empty means the live host).
func New(backend, sysRoot string) (Enumerator, error) {
	switch backend {
	case BackendLsblk, "":
		return NewLsblkEnumerator(nil), nil
	case BackendUDisks:
		return NewUDisksEnumerator(), nil
	case BackendGHW:
		return NewGHWEnumerator(sysRoot), nil
	default:
		return nil, fmt.Errorf("unknown device backend %q (want one of %s)", backend, strings.Join(Backends(), ", "))
	}
}

// Find returns the descriptor with the given identifier.
func Find(devices []Descriptor, identifier string) (Descriptor, bool) {
	for _, d := range devices {
		if d.Identifier == identifier {
			return d, true
		}
	}
	return Descriptor{}, false
}

// removableOnly keeps devices the host flagged removable that report media.
// A removable reader slot without a card reports zero bytes and cannot be flashed.
func removableOnly(backend string, devices []Descriptor) []Descriptor {
	out := make([]Descriptor, 0, len(devices))
	for _, d := range devices {
		if !d.Removable {
			slog.Debug("device_skipped", "backend", backend, "device", d.Identifier, "reason", "not_removable")
			continue
		}
		if d.SizeBytes == 0 {
			slog.Debug("device_skipped", "backend", backend, "device", d.Identifier, "reason", "no_media")
			continue
		}
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Identifier < out[j].Identifier
	})

	slog.Info("devices_enumerated", "backend", backend, "seen", len(devices), "removable", len(out))
	return out
}

// buildLabel joins the non-empty vendor/model parts and appends the transport, if any.
func buildLabel(name, vendor, model, transport string) string {
	var parts []string
	for _, p := range []string{vendor, model} {
		p = strings.TrimSpace(p)
		if p != "" && !strings.EqualFold(p, "unknown") {
			parts = append(parts, p)
		}
	}
	label := strings.Join(parts, " ")
	if label == "" {
		label = name
	}
	if t := strings.TrimSpace(transport); t != "" {
		label = fmt.Sprintf("%s (%s)", label, t)
	}
	return label
}
