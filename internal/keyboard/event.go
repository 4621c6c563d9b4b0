package keyboard

import (
	"encoding/binary"
	"fmt"

	evdev "github.com/holoplot/go-evdev"
)

// Position is the direction of a key transition. Auto-repeat is not a
// position; repeat events are dropped during decoding.
type Position uint8

const (
	Press Position = iota
	Release
)

func (p Position) String() string {
	switch p {
	case Press:
		return "press"
	case Release:
		return "release"
	default:
		return fmt.Sprintf("Position(%d)", uint8(p))
	}
}

// Value returns the evdev event value for the position.
func (p Position) Value() int32 {
	if p == Press {
		return 1
	}
	return 0
}

// PositionFromValue maps an evdev key event value to a Position.
func PositionFromValue(value int32) (Position, error) {
	switch value {
	case 0:
		return Release, nil
	case 1:
		return Press, nil
	default:
		return 0, &KeyPositionNotSupportedError{Value: value}
	}
}

// KeyEvent is a single decoded key transition.
type KeyEvent struct {
	Key      Key
	Position Position
}

func (e KeyEvent) String() string {
	return e.Key.String() + " " + e.Position.String()
}

// PressEvents returns a Press event for every key.
func PressEvents(keys []Key) []KeyEvent {
	return eventsFor(keys, Press)
}

// ReleaseEvents returns a Release event for every key.
func ReleaseEvents(keys []Key) []KeyEvent {
	return eventsFor(keys, Release)
}

func eventsFor(keys []Key, pos Position) []KeyEvent {
	events := make([]KeyEvent, len(keys))
	for i, k := range keys {
		events[i] = KeyEvent{Key: k, Position: pos}
	}
	return events
}

// RawEvent is the (kind, code, value) triple of a kernel input event.
type RawEvent struct {
	Type  evdev.EvType
	Code  evdev.EvCode
	Value int32
}

// rawEventSize is sizeof(struct input_event) with a 64-bit timeval.
const rawEventSize = 24

// Decode converts a raw event into a KeyEvent. Non-key kinds, codes outside
// the catalog and values other than press/release are rejected.
func (r RawEvent) Decode() (KeyEvent, error) {
	if r.Type != evdev.EvType(evdev.EV_KEY) {
		return KeyEvent{}, &EventKindNotSupportedError{Type: uint16(r.Type)}
	}
	k, err := KeyFromCode(r.Code)
	if err != nil {
		return KeyEvent{}, err
	}
	pos, err := PositionFromValue(r.Value)
	if err != nil {
		return KeyEvent{}, err
	}
	return KeyEvent{Key: k, Position: pos}, nil
}

// Raw returns the kernel representation of the event.
func (e KeyEvent) Raw() RawEvent {
	return RawEvent{
		Type:  evdev.EvType(evdev.EV_KEY),
		Code:  e.Key.Code(),
		Value: e.Position.Value(),
	}
}

// parseRawEvents splits buf into input_event records. Timestamps are ignored.
func parseRawEvents(buf []byte) []RawEvent {
	events := make([]RawEvent, 0, len(buf)/rawEventSize)
	for off := 0; off+rawEventSize <= len(buf); off += rawEventSize {
		rec := buf[off : off+rawEventSize]
		events = append(events, RawEvent{
			Type:  evdev.EvType(binary.LittleEndian.Uint16(rec[16:18])),
			Code:  evdev.EvCode(binary.LittleEndian.Uint16(rec[18:20])),
			Value: int32(binary.LittleEndian.Uint32(rec[20:24])),
		})
	}
	return events
}
