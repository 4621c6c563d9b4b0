package keyboard

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyboardNotFound is returned when discovery finds no eligible device.
	ErrKeyboardNotFound = errors.New("keyboard not found (possibly insufficient permissions to access /dev/input)")

	// ErrInterrupted is returned by a read that was woken by Interrupt.
	ErrInterrupted = errors.New("keyboard read interrupted")

	// ErrNotAvailable is returned on platforms without evdev/uinput.
	ErrNotAvailable = errors.New("keyboard devices not available on this platform")

	// ErrClosed is returned when reading from a closed reader.
	ErrClosed = errors.New("keyboard reader closed")
)

// IOError wraps an operating-system failure with the step that produced it.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("i/o error during %q: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func ioError(op string, err error) error {
	return &IOError{Op: op, Err: err}
}

// KeyNotSupportedError reports an OS key code with no catalog entry.
type KeyNotSupportedError struct {
	Code uint16
}

func (e *KeyNotSupportedError) Error() string {
	return fmt.Sprintf("key %d not supported", e.Code)
}

// InvalidKeyError reports a Key value with no catalog entry.
type InvalidKeyError struct {
	Key Key
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("key %d is outside the key catalog", uint8(e.Key))
}

// KeyPositionNotSupportedError reports an event value that is neither press nor release.
type KeyPositionNotSupportedError struct {
	Value int32
}

func (e *KeyPositionNotSupportedError) Error() string {
	return fmt.Sprintf("key position %d not supported", e.Value)
}

// EventKindNotSupportedError reports a raw event that is not a key event.
type EventKindNotSupportedError struct {
	Type uint16
}

func (e *EventKindNotSupportedError) Error() string {
	return fmt.Sprintf("input event kind %d not supported", e.Type)
}

// ParseError is returned by ParseKey for an unknown key name.
type ParseError struct {
	Name string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unknown key name %q", e.Name)
}
