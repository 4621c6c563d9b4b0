package keyboard

import (
	"sync/atomic"

	evdev "github.com/holoplot/go-evdev"
)

// emitter is the write side of a uinput device.
type emitter interface {
	WriteOne(event *evdev.InputEvent) error
	Close() error
}

// VirtualKeyboard is a synthetic input device advertising the whole key
// catalog. It is not safe for concurrent use; callers serialize emissions.
type VirtualKeyboard struct {
	dev       emitter
	name      string
	emissions atomic.Uint64
}

func newVirtualKeyboard(dev emitter, name string) *VirtualKeyboard {
	return &VirtualKeyboard{dev: dev, name: name}
}

// Name returns the device name.
func (v *VirtualKeyboard) Name() string { return v.name }

// Emissions returns the number of batches written.
func (v *VirtualKeyboard) Emissions() uint64 { return v.emissions.Load() }

// Emit writes events as one batch terminated by a single SYN_REPORT, so
// readers observe them as simultaneous. Nothing is written when any event
// carries a key outside the catalog.
func (v *VirtualKeyboard) Emit(events []KeyEvent) error {
	for _, ev := range events {
		if !ev.Key.Valid() {
			return &InvalidKeyError{Key: ev.Key}
		}
	}
	for _, ev := range events {
		raw := ev.Raw()
		if err := v.dev.WriteOne(&evdev.InputEvent{Type: raw.Type, Code: raw.Code, Value: raw.Value}); err != nil {
			return ioError("emit event", err)
		}
	}
	syn := &evdev.InputEvent{Type: evdev.EvType(evdev.EV_SYN), Code: evdev.EvCode(evdev.SYN_REPORT)}
	if err := v.dev.WriteOne(syn); err != nil {
		return ioError("emit event", err)
	}
	v.emissions.Add(1)
	return nil
}

// PressKeys emits one batch pressing every key.
func (v *VirtualKeyboard) PressKeys(keys ...Key) error {
	return v.Emit(PressEvents(keys))
}

// ReleaseKeys emits one batch releasing every key.
func (v *VirtualKeyboard) ReleaseKeys(keys ...Key) error {
	return v.Emit(ReleaseEvents(keys))
}

// Close destroys the virtual device.
func (v *VirtualKeyboard) Close() error {
	if err := v.dev.Close(); err != nil {
		return ioError("destroy virtual device", err)
	}
	return nil
}

func catalogCapabilities() map[evdev.EvType][]evdev.EvCode {
	codes := make([]evdev.EvCode, 0, numKeys)
	for _, k := range AllKeys() {
		codes = append(codes, k.Code())
	}
	return map[evdev.EvType][]evdev.EvCode{
		evdev.EvType(evdev.EV_KEY): codes,
	}
}
