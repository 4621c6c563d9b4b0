//go:build linux

package keyboard

import (
	"fmt"
	"log/slog"
	"os"

	evdev "github.com/holoplot/go-evdev"
)

// ListDevices inspects every input device the process can open. Devices that
// cannot be opened are skipped.
func ListDevices() ([]DeviceInfo, error) {
	return scanDevices(buildOptions(nil).log)
}

func scanDevices(log *slog.Logger) ([]DeviceInfo, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, ioError("enumerate devices", err)
	}

	devices := make([]DeviceInfo, 0, len(paths))
	for _, p := range paths {
		info, err := inspectDevice(p.Path)
		if err != nil {
			log.Debug("cannot inspect input device", "path", p.Path, "error", err)
			continue
		}
		devices = append(devices, info)
	}
	return devices, nil
}

// inspectDevice only needs read access; keyboards the user may read but not
// write are still listened to.
func inspectDevice(path string) (DeviceInfo, error) {
	dev, err := evdev.OpenWithFlags(path, os.O_RDONLY)
	if err != nil {
		return DeviceInfo{}, err
	}
	defer dev.Close()

	name, err := dev.Name()
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("read name: %w", err)
	}
	id, err := dev.InputID()
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("read input id: %w", err)
	}

	return DeviceInfo{
		Path: path,
		Name: name,
		ID:   id,
		Keys: dev.CapableEvents(evdev.EvType(evdev.EV_KEY)),
	}, nil
}
