package device

import (
	"testing"

	"github.com/jaypipes/ghw"
)

func TestDescriptorsFromGHW(t *testing.T) {
	disks := []*ghw.Disk{
		{Name: "sda", SizeBytes: 500107862016, IsRemovable: false, Vendor: "ATA", Model: "WDC"},
		{Name: "sdb", SizeBytes: 7780433920, IsRemovable: true, Vendor: "unknown", Model: "DataTraveler"},
		nil,
		{Name: "sdc", SizeBytes: 0, IsRemovable: true, Vendor: "Generic", Model: "Reader"},
	}

	got := removableOnly(BackendGHW, descriptorsFromGHW(disks))
	if len(got) != 1 {
		t.Fatalf("expected 1 device, got %d: %+v", len(got), got)
	}

	want := Descriptor{Identifier: "/dev/sdb", Label: "DataTraveler", SizeBytes: 7780433920, Removable: true}
	if got[0] != want {
		t.Errorf("expected %+v, got %+v", want, got[0])
	}
}

func TestBuildLabel(t *testing.T) {
	tests := []struct {
		name, vendor, model, transport string
		want                           string
	}{
		{"sda", "SanDisk ", " Ultra", "usb", "SanDisk Ultra (usb)"},
		{"sdb", "", "", "", "sdb"},
		{"mmcblk0", "unknown", "unknown", "", "mmcblk0"},
		{"sdc", "", "", "usb", "sdc (usb)"},
	}

	for _, tt := range tests {
		if got := buildLabel(tt.name, tt.vendor, tt.model, tt.transport); got != tt.want {
			t.Errorf("buildLabel(%q, %q, %q, %q) = %q, want %q", tt.name, tt.vendor, tt.model, tt.transport, got, tt.want)
		}
	}
}
