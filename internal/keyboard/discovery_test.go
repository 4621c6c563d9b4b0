package keyboard

import (
	"io"
	"log/slog"
	"testing"

	evdev "github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFilterDevicesByReferenceKey(t *testing.T) {
	keyboard := DeviceInfo{
		Path: "/dev/input/event3",
		Name: "AT Translated Set 2 keyboard",
		ID:   evdev.InputID{BusType: 0x11, Vendor: 0x1, Product: 0x1},
		Keys: []evdev.EvCode{A.Code(), Enter.Code(), LCtrl.Code()},
	}
	mouse := DeviceInfo{
		Path: "/dev/input/event5",
		Name: "Logitech Mouse",
		ID:   evdev.InputID{BusType: 0x03, Vendor: 0x46d, Product: 0xc52b},
		Keys: []evdev.EvCode{evdev.EvCode(evdev.BTN_LEFT), evdev.EvCode(evdev.BTN_RIGHT)},
	}

	kept := filterDevices([]DeviceInfo{mouse, keyboard}, Enter.Code(), discardLogger())
	assert.Equal(t, []DeviceInfo{keyboard}, kept)

	assert.Empty(t, filterDevices([]DeviceInfo{mouse}, Enter.Code(), discardLogger()))
}

func TestFilterExcludesOwnVirtualKeyboard(t *testing.T) {
	virtual := DeviceInfo{
		Path: "/dev/input/event20",
		Name: DefaultVirtualName,
		ID:   VirtualInputID,
		Keys: catalogCapabilities()[evdev.EvType(evdev.EV_KEY)],
	}
	assert.True(t, virtual.IsVirtualKeyboard())

	ok, reason := eligible(virtual, Enter.Code())
	assert.False(t, ok, "virtual keyboard advertises Enter but must never be selected")
	assert.Equal(t, "own virtual device", reason)
}

func TestWithReferenceKey(t *testing.T) {
	o := buildOptions([]Option{WithReferenceKey(A), WithVirtualName("  "), WithLogger(nil)})
	assert.Equal(t, A.Code(), o.reference)
	assert.Equal(t, DefaultVirtualName, o.virtualName)
	assert.NotNil(t, o.log)
}
