package device

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/jaypipes/ghw"
)

// GHWEnumerator reads block devices from sysfs through ghw.
type GHWEnumerator struct {
	root string
}

// NewGHWEnumerator creates a ghw backend. A non-empty root is used as the chroot for
// /sys and /proc lookups.
func NewGHWEnumerator(root string) *GHWEnumerator {
	return &GHWEnumerator{root: root}
}

// ListRemovable implements Enumerator.
func (g *GHWEnumerator) ListRemovable(ctx context.Context) ([]Descriptor, error) {
	opts := []*ghw.WithOption{ghw.WithDisableWarnings()}
	if g.root != "" {
		opts = append(opts, ghw.WithChroot(g.root))
	}

	info, err := ghw.Block(opts...)
	if err != nil {
		slog.Error("ghw_block_failed", "root", g.root, "error", err)
		return nil, unavailable(BackendGHW, err)
	}

	return removableOnly(BackendGHW, descriptorsFromGHW(info.Disks)), nil
}

func descriptorsFromGHW(disks []*ghw.Disk) []Descriptor {
	devices := make([]Descriptor, 0, len(disks))
	for _, d := range disks {
		if d == nil {
			continue
		}
		devices = append(devices, Descriptor{
			Identifier: filepath.Join("/dev", d.Name),
			Label:      buildLabel(d.Name, d.Vendor, d.Model, ""),
			SizeBytes:  d.SizeBytes,
			Removable:  d.IsRemovable,
		})
	}
	return devices
}
