// Package safety guards the destructive flash operation: it describes what is about to
// be overwritten and only approves when the operator explicitly says yes.
package safety

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/device"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/image"
	"github.com/dustin/go-humanize"
)

// ConfirmFn presents a yes/no question and returns the answer. It may be interactive,
// scripted or an automatic decline.
type ConfirmFn func(question string) (bool, error)

// Record is the outcome of one confirmation. It is consumed once and never persisted.
type Record struct {
	ImageName        string
	DeviceIdentifier string
	Approved         bool
}

// Confirm asks for approval to overwrite dev with img.
func Confirm(img image.Descriptor, dev device.Descriptor, ask ConfirmFn) Record {
	return ConfirmWithSize(img, dev, image.SizeUnknown, ask)
}

// ConfirmWithSize is Confirm with the image length known, which lets the message warn
// when the image cannot fit on the device.
//
// Anything other than an explicit affirmative answer declines: a nil ask, an error
// from ask, or a false answer.
func ConfirmWithSize(img image.Descriptor, dev device.Descriptor, imageSize int64, ask ConfirmFn) Record {
	rec := Record{
		ImageName:        img.DisplayName,
		DeviceIdentifier: dev.Identifier,
	}

	if ask == nil {
		slog.Warn("confirmation_declined", "device", dev.Identifier, "reason", "no_prompt")
		return rec
	}

	answer, err := ask(Message(img, dev, imageSize))
	if err != nil {
		slog.Warn("confirmation_declined", "device", dev.Identifier, "reason", "prompt_error", "error", err)
		return rec
	}

	rec.Approved = answer
	slog.Info("confirmation_answered", "image", img.DisplayName, "device", dev.Identifier, "approved", rec.Approved)
	return rec
}

// Message builds the human-readable description of the destructive operation.
func Message(img image.Descriptor, dev device.Descriptor, imageSize int64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Image:  %s", img.DisplayName)
	if img.Location != img.DisplayName {
		fmt.Fprintf(&b, " (%s)", img.Location)
	}
	if imageSize >= 0 {
		fmt.Fprintf(&b, ", %s", humanize.IBytes(uint64(imageSize)))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Device: %s - %s, %s\n", dev.Identifier, dev.Label, humanize.IBytes(dev.SizeBytes))

	if imageSize >= 0 && uint64(imageSize) > dev.SizeBytes {
		fmt.Fprintf(&b, "WARNING: the image is larger than %s; the write will fail part way and leave the device unusable.\n", dev.Identifier)
	}

	fmt.Fprintf(&b, "ALL DATA ON %s WILL BE IRRECOVERABLY OVERWRITTEN.", dev.Identifier)
	return b.String()
}
