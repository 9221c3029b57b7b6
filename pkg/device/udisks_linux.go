//go:build linux

package device

import (
	"context"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// UDisksEnumerator lists devices through the UDisks2 daemon on the system bus.
type UDisksEnumerator struct{}

// NewUDisksEnumerator creates a UDisks2 backend.
func NewUDisksEnumerator() *UDisksEnumerator {
	return &UDisksEnumerator{}
}

// ListRemovable implements Enumerator.
func (u *UDisksEnumerator) ListRemovable(ctx context.Context) ([]Descriptor, error) {
	// Private connection so closing it does not tear down the shared system bus.
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		slog.Error("udisks_connect_failed", "error", err)
		return nil, unavailable(BackendUDisks, err)
	}
	defer conn.Close()

	obj := conn.Object(udisksService, udisksRootPath)
	call := obj.CallWithContext(ctx, objectManagerMethod, 0)
	if call.Err != nil {
		slog.Error("udisks_call_failed", "method", objectManagerMethod, "error", call.Err)
		return nil, unavailable(BackendUDisks, call.Err)
	}

	var raw map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := call.Store(&raw); err != nil {
		slog.Error("udisks_decode_failed", "error", err)
		return nil, parseFailure(BackendUDisks, err)
	}

	devices, err := descriptorsFromUDisks(managedObjects(raw))
	if err != nil {
		slog.Error("udisks_parse_failed", "error", err)
		return nil, parseFailure(BackendUDisks, err)
	}

	return removableOnly(BackendUDisks, devices), nil
}
