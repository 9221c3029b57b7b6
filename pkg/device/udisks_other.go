//go:build !linux

package device

import (
	"context"
	"fmt"
	"runtime"
)

// UDisksEnumerator is unavailable outside Linux.
type UDisksEnumerator struct{}

// NewUDisksEnumerator creates a stub backend on non-Linux systems.
func NewUDisksEnumerator() *UDisksEnumerator {
	return &UDisksEnumerator{}
}

func (u *UDisksEnumerator) ListRemovable(ctx context.Context) ([]Descriptor, error) {
	return nil, unavailable(BackendUDisks, fmt.Errorf("udisks not supported on %s", runtime.GOOS))
}
