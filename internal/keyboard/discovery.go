package keyboard

import (
	"log/slog"
	"slices"
	"strings"

	evdev "github.com/holoplot/go-evdev"

	"dhe/internal/logging"
)

const busVirtual = 0x06

// VirtualInputID identifies virtual keyboards created by this package.
// Discovery never selects a device carrying it, whatever it advertises,
// so injected keystrokes cannot feed back into a listener.
var VirtualInputID = evdev.InputID{
	BusType: busVirtual,
	Vendor:  0x6468,
	Product: 0x0001,
	Version: 1,
}

// DefaultVirtualName is the name given to virtual keyboards.
const DefaultVirtualName = "dhe virtual keyboard"

// DeviceInfo describes an input device seen during discovery.
type DeviceInfo struct {
	Path string
	Name string
	ID   evdev.InputID
	Keys []evdev.EvCode
}

// IsVirtualKeyboard reports whether the device was created by NewVirtualKeyboard.
func (d DeviceInfo) IsVirtualKeyboard() bool {
	return d.ID.BusType == VirtualInputID.BusType &&
		d.ID.Vendor == VirtualInputID.Vendor &&
		d.ID.Product == VirtualInputID.Product
}

// eligible decides whether a device should be listened to. It returns a
// short reason when the device is rejected.
func eligible(d DeviceInfo, reference evdev.EvCode) (bool, string) {
	if d.IsVirtualKeyboard() {
		return false, "own virtual device"
	}
	if !slices.Contains(d.Keys, reference) {
		return false, "missing reference key"
	}
	return true, ""
}

// filterDevices keeps the eligible devices, logging every rejection.
func filterDevices(all []DeviceInfo, reference evdev.EvCode, log *slog.Logger) []DeviceInfo {
	kept := make([]DeviceInfo, 0, len(all))
	for _, d := range all {
		ok, reason := eligible(d, reference)
		if !ok {
			log.Debug("skipping input device", "path", d.Path, "name", d.Name, "reason", reason)
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

type options struct {
	reference   evdev.EvCode
	virtualName string
	log         *slog.Logger
}

// Option configures readers, listeners and virtual keyboards.
type Option func(*options)

// WithReferenceKey sets the capability a device must advertise to be
// treated as a keyboard. The default is Enter.
func WithReferenceKey(k Key) Option {
	return func(o *options) { o.reference = k.Code() }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithVirtualName sets the name of the virtual keyboard device.
func WithVirtualName(name string) Option {
	return func(o *options) {
		if name = strings.TrimSpace(name); name != "" {
			o.virtualName = name
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		reference:   Enter.Code(),
		virtualName: DefaultVirtualName,
		log:         logging.Default().WithComponent("keyboard").Logger,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
