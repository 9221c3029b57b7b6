package safety

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/device"
)

// ErrUnsafeTarget is returned when a flash target fails validation.
var ErrUnsafeTarget = errors.New("unsafe flash target")

// Validator performs the static checks that run before the operator is asked anything.
type Validator struct{}

// NewValidator creates a target validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTarget rejects descriptors that must never be written to.
func (v *Validator) ValidateTarget(dev device.Descriptor) error {
	if !dev.Removable {
		slog.Error("safety_target_rejected", "device", dev.Identifier, "reason", "not_removable")
		return fmt.Errorf("%w: %s is not a removable device", ErrUnsafeTarget, dev.Identifier)
	}

	if dev.SizeBytes == 0 {
		slog.Error("safety_target_rejected", "device", dev.Identifier, "reason", "zero_size")
		return fmt.Errorf("%w: %s reports no capacity", ErrUnsafeTarget, dev.Identifier)
	}

	if !filepath.IsAbs(dev.Identifier) || filepath.Clean(dev.Identifier) != dev.Identifier {
		slog.Error("safety_target_rejected", "device", dev.Identifier, "reason", "not_absolute")
		return fmt.Errorf("%w: %q is not an absolute device path", ErrUnsafeTarget, dev.Identifier)
	}

	return nil
}

// ValidateSource rejects an image path that resolves to the target device itself.
func (v *Validator) ValidateSource(imagePath string, dev device.Descriptor) error {
	if sameFile(imagePath, dev.Identifier) {
		slog.Error("safety_source_rejected", "image", imagePath, "device", dev.Identifier, "reason", "source_is_target")
		return fmt.Errorf("%w: image %s is the target device", ErrUnsafeTarget, imagePath)
	}
	return nil
}

func sameFile(a, b string) bool {
	ra, err := filepath.EvalSymlinks(a)
	if err != nil {
		ra = filepath.Clean(a)
	}
	rb, err := filepath.EvalSymlinks(b)
	if err != nil {
		rb = filepath.Clean(b)
	}
	return ra == rb
}
