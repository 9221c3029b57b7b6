package device

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	udisksService        = "org.freedesktop.UDisks2"
	udisksRootPath       = "/org/freedesktop/UDisks2"
	udisksBlockIface     = "org.freedesktop.UDisks2.Block"
	udisksDriveIface     = "org.freedesktop.UDisks2.Drive"
	udisksPartitionIface = "org.freedesktop.UDisks2.Partition"
	objectManagerMethod  = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// descriptorsFromUDisks converts the UDisks2 object tree into descriptors. Only whole
// block devices backed by a drive are considered; partitions and loop devices are skipped.
// Blocks carrying HintSystem are dropped as well, even when their drive is removable,
// because that is the disk the running system lives on.
func descriptorsFromUDisks(objects managedObjects) ([]Descriptor, error) {
	var devices []Descriptor

	for path, ifaces := range objects {
		block, ok := ifaces[udisksBlockIface]
		if !ok {
			continue
		}
		if _, isPartition := ifaces[udisksPartitionIface]; isPartition {
			continue
		}

		drivePath, err := propObjectPath(block, "Drive")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if drivePath == "/" || drivePath == "" {
			continue
		}
		drive, ok := objects[drivePath][udisksDriveIface]
		if !ok {
			continue
		}

		hintSystem, err := propBool(block, "HintSystem")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if hintSystem {
			continue
		}

		node, err := propBytes(block, "Device")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		size, err := propUint64(block, "Size")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		removable, err := propBool(drive, "Removable")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", drivePath, err)
		}
		mediaRemovable, err := propBool(drive, "MediaRemovable")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", drivePath, err)
		}
		vendor, _ := propString(drive, "Vendor")
		model, _ := propString(drive, "Model")
		bus, _ := propString(drive, "ConnectionBus")

		identifier := strings.TrimRight(string(node), "\x00")
		if identifier == "" {
			return nil, fmt.Errorf("%s: empty device node", path)
		}

		devices = append(devices, Descriptor{
			Identifier: identifier,
			Label:      buildLabel(strings.TrimPrefix(identifier, "/dev/"), vendor, model, bus),
			SizeBytes:  size,
			Removable:  removable || mediaRemovable,
		})
	}

	return devices, nil
}

func propBytes(props map[string]dbus.Variant, key string) ([]byte, error) {
	v, ok := props[key]
	if !ok {
		return nil, fmt.Errorf("missing property %s", key)
	}
	b, ok := v.Value().([]byte)
	if !ok {
		return nil, fmt.Errorf("property %s has type %s, want ay", key, v.Signature())
	}
	return b, nil
}

func propUint64(props map[string]dbus.Variant, key string) (uint64, error) {
	v, ok := props[key]
	if !ok {
		return 0, fmt.Errorf("missing property %s", key)
	}
	n, ok := v.Value().(uint64)
	if !ok {
		return 0, fmt.Errorf("property %s has type %s, want t", key, v.Signature())
	}
	return n, nil
}

// propBool treats a missing property as false.
func propBool(props map[string]dbus.Variant, key string) (bool, error) {
	v, ok := props[key]
	if !ok {
		return false, nil
	}
	b, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s has type %s, want b", key, v.Signature())
	}
	return b, nil
}

func propString(props map[string]dbus.Variant, key string) (string, error) {
	v, ok := props[key]
	if !ok {
		return "", nil
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("property %s has type %s, want s", key, v.Signature())
	}
	return s, nil
}

func propObjectPath(props map[string]dbus.Variant, key string) (dbus.ObjectPath, error) {
	v, ok := props[key]
	if !ok {
		return "", nil
	}
	p, ok := v.Value().(dbus.ObjectPath)
	if !ok {
		return "", fmt.Errorf("property %s has type %s, want o", key, v.Signature())
	}
	return p, nil
}
