package keyboard

import (
	"math/bits"
	"strings"
)

// State is a bitmap of the keys currently held down, one bit per catalog
// ordinal. It is comparable and is used directly as the action registry key,
// so two states match only when exactly the same keys are held.
type State [2]uint64

// StateOf returns the state with every given key pressed.
func StateOf(keys ...Key) State {
	var s State
	s.ApplyKeys(keys)
	return s
}

// ApplyEvent sets the key bit on Press and clears it on Release. Keys outside
// the catalog are ignored.
func (s *State) ApplyEvent(ev KeyEvent) {
	if !ev.Key.Valid() {
		return
	}
	word, bit := ev.Key/64, ev.Key%64
	switch ev.Position {
	case Press:
		s[word] |= 1 << bit
	case Release:
		s[word] &^= 1 << bit
	}
}

// ApplyEvents applies events in order.
func (s *State) ApplyEvents(events []KeyEvent) {
	for _, ev := range events {
		s.ApplyEvent(ev)
	}
}

// ApplyKeys marks every key as pressed. It builds lookup combinations and is
// not used for live input.
func (s *State) ApplyKeys(keys []Key) {
	for _, k := range keys {
		s.ApplyEvent(KeyEvent{Key: k, Position: Press})
	}
}

// IsPressed reports whether k is held.
func (s State) IsPressed(k Key) bool {
	if !k.Valid() {
		return false
	}
	return s[k/64]&(1<<(k%64)) != 0
}

// Empty reports whether no key is held.
func (s State) Empty() bool {
	return s[0] == 0 && s[1] == 0
}

// Len returns the number of held keys.
func (s State) Len() int {
	return bits.OnesCount64(s[0]) + bits.OnesCount64(s[1])
}

// Pressed returns the held keys in ordinal order.
func (s State) Pressed() []Key {
	keys := make([]Key, 0, s.Len())
	for w, word := range s {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			keys = append(keys, Key(w*64+b))
			word &^= 1 << b
		}
	}
	return keys
}

func (s State) String() string {
	pressed := s.Pressed()
	if len(pressed) == 0 {
		return "<none>"
	}
	names := make([]string, len(pressed))
	for i, k := range pressed {
		names[i] = k.String()
	}
	return strings.Join(names, "+")
}
