package keyboard

// keyWriter emits press and release batches.
type keyWriter interface {
	PressKeys(keys ...Key) error
	ReleaseKeys(keys ...Key) error
	Close() error
}

// Emulator scripts gestures on a virtual keyboard.
type Emulator struct {
	kw keyWriter
}

// NewEmulator creates a virtual keyboard and an emulator over it.
func NewEmulator(opts ...Option) (*Emulator, error) {
	kw, err := NewVirtualKeyboard(opts...)
	if err != nil {
		return nil, err
	}
	return &Emulator{kw: kw}, nil
}

// NewEmulatorWith returns an emulator over an existing virtual keyboard.
func NewEmulatorWith(v *VirtualKeyboard) *Emulator {
	return &Emulator{kw: v}
}

// PressKeys presses keys in one batch.
func (e *Emulator) PressKeys(keys ...Key) error { return e.kw.PressKeys(keys...) }

// ReleaseKeys releases keys in one batch.
func (e *Emulator) ReleaseKeys(keys ...Key) error { return e.kw.ReleaseKeys(keys...) }

// Tap presses keys together and then releases them. The press batch is
// written completely before the release batch starts.
func (e *Emulator) Tap(keys ...Key) error {
	if err := e.kw.PressKeys(keys...); err != nil {
		return err
	}
	return e.kw.ReleaseKeys(keys...)
}

// CtrlV simulates the paste shortcut.
func (e *Emulator) CtrlV() error {
	return e.Tap(LCtrl, V)
}

// Close destroys the underlying device.
func (e *Emulator) Close() error { return e.kw.Close() }
