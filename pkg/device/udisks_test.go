package device

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func udisksFixture() managedObjects {
	return managedObjects{
		"/org/freedesktop/UDisks2/drives/SanDisk_Ultra_1234": {
			udisksDriveIface: {
				"Vendor":         dbus.MakeVariant("SanDisk"),
				"Model":          dbus.MakeVariant("Ultra"),
				"ConnectionBus":  dbus.MakeVariant("usb"),
				"Removable":      dbus.MakeVariant(true),
				"MediaRemovable": dbus.MakeVariant(false),
			},
		},
		"/org/freedesktop/UDisks2/drives/Samsung_SSD": {
			udisksDriveIface: {
				"Vendor":    dbus.MakeVariant(""),
				"Model":     dbus.MakeVariant("Samsung SSD 970"),
				"Removable": dbus.MakeVariant(false),
			},
		},
		"/org/freedesktop/UDisks2/drives/Generic_SD": {
			udisksDriveIface: {
				"Model":          dbus.MakeVariant("SD Card Reader"),
				"Removable":      dbus.MakeVariant(false),
				"MediaRemovable": dbus.MakeVariant(true),
			},
		},
		"/org/freedesktop/UDisks2/block_devices/sdb": {
			udisksBlockIface: {
				"Device":     dbus.MakeVariant([]byte("/dev/sdb\x00")),
				"Size":       dbus.MakeVariant(uint64(31914983424)),
				"Drive":      dbus.MakeVariant(dbus.ObjectPath("/org/freedesktop/UDisks2/drives/SanDisk_Ultra_1234")),
				"HintSystem": dbus.MakeVariant(false),
			},
		},
		"/org/freedesktop/UDisks2/block_devices/sdb1": {
			udisksBlockIface: {
				"Device": dbus.MakeVariant([]byte("/dev/sdb1\x00")),
				"Size":   dbus.MakeVariant(uint64(31913934848)),
				"Drive":  dbus.MakeVariant(dbus.ObjectPath("/org/freedesktop/UDisks2/drives/SanDisk_Ultra_1234")),
			},
			udisksPartitionIface: {
				"Number": dbus.MakeVariant(uint32(1)),
			},
		},
		"/org/freedesktop/UDisks2/block_devices/nvme0n1": {
			udisksBlockIface: {
				"Device":     dbus.MakeVariant([]byte("/dev/nvme0n1\x00")),
				"Size":       dbus.MakeVariant(uint64(512110190592)),
				"Drive":      dbus.MakeVariant(dbus.ObjectPath("/org/freedesktop/UDisks2/drives/Samsung_SSD")),
				"HintSystem": dbus.MakeVariant(true),
			},
		},
		"/org/freedesktop/UDisks2/block_devices/mmcblk0": {
			udisksBlockIface: {
				"Device": dbus.MakeVariant([]byte("/dev/mmcblk0\x00")),
				"Size":   dbus.MakeVariant(uint64(15931539456)),
				"Drive":  dbus.MakeVariant(dbus.ObjectPath("/org/freedesktop/UDisks2/drives/Generic_SD")),
			},
		},
		"/org/freedesktop/UDisks2/block_devices/loop0": {
			udisksBlockIface: {
				"Device": dbus.MakeVariant([]byte("/dev/loop0\x00")),
				"Size":   dbus.MakeVariant(uint64(4096)),
				"Drive":  dbus.MakeVariant(dbus.ObjectPath("/")),
			},
		},
	}
}

func TestDescriptorsFromUDisks(t *testing.T) {
	devices, err := descriptorsFromUDisks(udisksFixture())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := removableOnly(BackendUDisks, devices)
	want := []Descriptor{
		{Identifier: "/dev/mmcblk0", Label: "SD Card Reader", SizeBytes: 15931539456, Removable: true},
		{Identifier: "/dev/sdb", Label: "SanDisk Ultra (usb)", SizeBytes: 31914983424, Removable: true},
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d devices, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("device %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestDescriptorsFromUDisksSkipsSystemDisk(t *testing.T) {
	objects := udisksFixture()
	// A system booted from a USB stick: removable drive, but the block carries HintSystem.
	objects["/org/freedesktop/UDisks2/block_devices/sdb"][udisksBlockIface]["HintSystem"] = dbus.MakeVariant(true)

	devices, err := descriptorsFromUDisks(objects)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := Find(devices, "/dev/sdb"); ok {
		t.Error("system disk must not be listed")
	}
}

func TestDescriptorsFromUDisksTypeMismatch(t *testing.T) {
	objects := managedObjects{
		"/org/freedesktop/UDisks2/drives/X": {
			udisksDriveIface: {"Removable": dbus.MakeVariant(true)},
		},
		"/org/freedesktop/UDisks2/block_devices/sdx": {
			udisksBlockIface: {
				"Device": dbus.MakeVariant("/dev/sdx"),
				"Size":   dbus.MakeVariant(uint64(1)),
				"Drive":  dbus.MakeVariant(dbus.ObjectPath("/org/freedesktop/UDisks2/drives/X")),
			},
		},
	}

	if _, err := descriptorsFromUDisks(objects); err == nil {
		t.Error("expected error for string Device property")
	}
}
