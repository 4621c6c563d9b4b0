//go:build linux

package keyboard

import (
	evdev "github.com/holoplot/go-evdev"
)

// NewVirtualKeyboard creates a uinput keyboard. It needs write access to
// /dev/uinput.
func NewVirtualKeyboard(opts ...Option) (*VirtualKeyboard, error) {
	o := buildOptions(opts)

	dev, err := evdev.CreateDevice(o.virtualName, VirtualInputID, catalogCapabilities())
	if err != nil {
		return nil, ioError("create virtual device", err)
	}
	o.log.Info("created virtual keyboard", "name", o.virtualName)
	return newVirtualKeyboard(dev, o.virtualName), nil
}
