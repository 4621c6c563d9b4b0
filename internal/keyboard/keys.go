package keyboard

import (
	"strconv"
	"strings"

	evdev "github.com/holoplot/go-evdev"
)

// Key is a physical key from the closed catalog. Its value is the ordinal
// used as the bit index in State.
type Key uint8

const (
	A Key = iota
	B
	C
	D
	E
	F
	G
	H
	I
	J
	K
	L
	M
	N
	O
	P
	Q
	R
	S
	T
	U
	V
	W
	X
	Y
	Z
	K1
	K2
	K3
	K4
	K5
	K6
	K7
	K8
	K9
	K0
	Enter
	Escape
	BackSpace
	Tab
	Space
	Minus
	Equal
	LBrace
	RBrace
	Backslash
	Semicolon
	Apostrophe
	Grave
	Comma
	Dot
	Slash
	CapsLock
	LCtrl
	LShift
	LAlt
	LWin
	RCtrl
	RShift
	RAlt
	RWin
	F1
	F2
	F3
	F4
	F5
	F6
	F7
	F8
	F9
	F10
	F11
	F12
	PrintScreen
	ScrollLock
	Pause
	Insert
	Home
	PageUp
	Delete
	End
	PageDown
	Right
	Left
	Down
	Up
	NumLock
	KeypadSlash
	KeypadAsterisk
	KeypadMinus
	KeypadPlus
	KeypadEnter
	Keypad1
	Keypad2
	Keypad3
	Keypad4
	Keypad5
	Keypad6
	Keypad7
	Keypad8
	Keypad9
	Keypad0
	KeypadDot

	numKeys = int(iota)
)

type keyInfo struct {
	name string
	code evdev.EvCode
}

var keyTable = [numKeys]keyInfo{
	A: {"A", evdev.KEY_A},
	B: {"B", evdev.KEY_B},
	C: {"C", evdev.KEY_C},
	D: {"D", evdev.KEY_D},
	E: {"E", evdev.KEY_E},
	F: {"F", evdev.KEY_F},
	G: {"G", evdev.KEY_G},
	H: {"H", evdev.KEY_H},
	I: {"I", evdev.KEY_I},
	J: {"J", evdev.KEY_J},
	K: {"K", evdev.KEY_K},
	L: {"L", evdev.KEY_L},
	M: {"M", evdev.KEY_M},
	N: {"N", evdev.KEY_N},
	O: {"O", evdev.KEY_O},
	P: {"P", evdev.KEY_P},
	Q: {"Q", evdev.KEY_Q},
	R: {"R", evdev.KEY_R},
	S: {"S", evdev.KEY_S},
	T: {"T", evdev.KEY_T},
	U: {"U", evdev.KEY_U},
	V: {"V", evdev.KEY_V},
	W: {"W", evdev.KEY_W},
	X: {"X", evdev.KEY_X},
	Y: {"Y", evdev.KEY_Y},
	Z: {"Z", evdev.KEY_Z},

	K1: {"K1", evdev.KEY_1},
	K2: {"K2", evdev.KEY_2},
	K3: {"K3", evdev.KEY_3},
	K4: {"K4", evdev.KEY_4},
	K5: {"K5", evdev.KEY_5},
	K6: {"K6", evdev.KEY_6},
	K7: {"K7", evdev.KEY_7},
	K8: {"K8", evdev.KEY_8},
	K9: {"K9", evdev.KEY_9},
	K0: {"K0", evdev.KEY_0},

	Enter:     {"Enter", evdev.KEY_ENTER},
	Escape:    {"Escape", evdev.KEY_ESC},
	BackSpace: {"BackSpace", evdev.KEY_BACKSPACE},
	Tab:       {"Tab", evdev.KEY_TAB},
	Space:     {"Space", evdev.KEY_SPACE},

	Minus:      {"Minus", evdev.KEY_MINUS},
	Equal:      {"Equal", evdev.KEY_EQUAL},
	LBrace:     {"LBrace", evdev.KEY_LEFTBRACE},
	RBrace:     {"RBrace", evdev.KEY_RIGHTBRACE},
	Backslash:  {"Backslash", evdev.KEY_BACKSLASH},
	Semicolon:  {"Semicolon", evdev.KEY_SEMICOLON},
	Apostrophe: {"Apostrophe", evdev.KEY_APOSTROPHE},
	Grave:      {"Grave", evdev.KEY_GRAVE},
	Comma:      {"Comma", evdev.KEY_COMMA},
	Dot:        {"Dot", evdev.KEY_DOT},
	Slash:      {"Slash", evdev.KEY_SLASH},

	CapsLock: {"CapsLock", evdev.KEY_CAPSLOCK},
	LCtrl:    {"LCtrl", evdev.KEY_LEFTCTRL},
	LShift:   {"LShift", evdev.KEY_LEFTSHIFT},
	LAlt:     {"LAlt", evdev.KEY_LEFTALT},
	LWin:     {"LWin", evdev.KEY_LEFTMETA},
	RCtrl:    {"RCtrl", evdev.KEY_RIGHTCTRL},
	RShift:   {"RShift", evdev.KEY_RIGHTSHIFT},
	RAlt:     {"RAlt", evdev.KEY_RIGHTALT},
	RWin:     {"RWin", evdev.KEY_RIGHTMETA},

	F1:  {"F1", evdev.KEY_F1},
	F2:  {"F2", evdev.KEY_F2},
	F3:  {"F3", evdev.KEY_F3},
	F4:  {"F4", evdev.KEY_F4},
	F5:  {"F5", evdev.KEY_F5},
	F6:  {"F6", evdev.KEY_F6},
	F7:  {"F7", evdev.KEY_F7},
	F8:  {"F8", evdev.KEY_F8},
	F9:  {"F9", evdev.KEY_F9},
	F10: {"F10", evdev.KEY_F10},
	F11: {"F11", evdev.KEY_F11},
	F12: {"F12", evdev.KEY_F12},

	PrintScreen: {"PrintScreen", evdev.KEY_SYSRQ},
	ScrollLock:  {"ScrollLock", evdev.KEY_SCROLLLOCK},
	Pause:       {"Pause", evdev.KEY_PAUSE},
	Insert:      {"Insert", evdev.KEY_INSERT},
	Home:        {"Home", evdev.KEY_HOME},
	PageUp:      {"PageUp", evdev.KEY_PAGEUP},
	Delete:      {"Delete", evdev.KEY_DELETE},
	End:         {"End", evdev.KEY_END},
	PageDown:    {"PageDown", evdev.KEY_PAGEDOWN},

	Right: {"Right", evdev.KEY_RIGHT},
	Left:  {"Left", evdev.KEY_LEFT},
	Down:  {"Down", evdev.KEY_DOWN},
	Up:    {"Up", evdev.KEY_UP},

	NumLock:        {"NumLock", evdev.KEY_NUMLOCK},
	KeypadSlash:    {"KeypadSlash", evdev.KEY_KPSLASH},
	KeypadAsterisk: {"KeypadAsterisk", evdev.KEY_KPASTERISK},
	KeypadMinus:    {"KeypadMinus", evdev.KEY_KPMINUS},
	KeypadPlus:     {"KeypadPlus", evdev.KEY_KPPLUS},
	KeypadEnter:    {"KeypadEnter", evdev.KEY_KPENTER},
	Keypad1:        {"Keypad1", evdev.KEY_KP1},
	Keypad2:        {"Keypad2", evdev.KEY_KP2},
	Keypad3:        {"Keypad3", evdev.KEY_KP3},
	Keypad4:        {"Keypad4", evdev.KEY_KP4},
	Keypad5:        {"Keypad5", evdev.KEY_KP5},
	Keypad6:        {"Keypad6", evdev.KEY_KP6},
	Keypad7:        {"Keypad7", evdev.KEY_KP7},
	Keypad8:        {"Keypad8", evdev.KEY_KP8},
	Keypad9:        {"Keypad9", evdev.KEY_KP9},
	Keypad0:        {"Keypad0", evdev.KEY_KP0},
	KeypadDot:      {"KeypadDot", evdev.KEY_KPDOT},
}

var (
	keysByCode = make(map[evdev.EvCode]Key, numKeys)
	keysByName = make(map[string]Key, numKeys)
)

func init() {
	for i := range keyTable {
		info := keyTable[i]
		if _, dup := keysByCode[info.code]; dup {
			panic("keyboard: duplicate os code for " + info.name)
		}
		keysByCode[info.code] = Key(i)
		keysByName[strings.ToLower(info.name)] = Key(i)
	}
}

// NumKeys returns the size of the catalog.
func NumKeys() int { return numKeys }

// AllKeys returns every catalog key in ordinal order.
func AllKeys() []Key {
	keys := make([]Key, numKeys)
	for i := range keys {
		keys[i] = Key(i)
	}
	return keys
}

// Valid reports whether k is a catalog key.
func (k Key) Valid() bool { return int(k) < numKeys }

// String returns the catalog name of the key.
func (k Key) String() string {
	if !k.Valid() {
		return "Key(" + strconv.Itoa(int(k)) + ")"
	}
	return keyTable[k].name
}

// Code returns the Linux input key code for k, or KEY_RESERVED when k is
// outside the catalog.
func (k Key) Code() evdev.EvCode {
	if !k.Valid() {
		return evdev.KEY_RESERVED
	}
	return keyTable[k].code
}

// KeyFromCode maps a Linux input key code back to the catalog.
func KeyFromCode(code evdev.EvCode) (Key, error) {
	k, ok := keysByCode[code]
	if !ok {
		return 0, &KeyNotSupportedError{Code: uint16(code)}
	}
	return k, nil
}

// ParseKey resolves a key by its catalog name ("LCtrl", case-insensitive)
// or by its kernel name ("KEY_LEFTCTRL").
func ParseKey(name string) (Key, error) {
	trimmed := strings.TrimSpace(name)
	if k, ok := keysByName[strings.ToLower(trimmed)]; ok {
		return k, nil
	}
	if code, ok := evdev.KEYFromString[strings.ToUpper(trimmed)]; ok {
		if k, ok := keysByCode[code]; ok {
			return k, nil
		}
	}
	return 0, &ParseError{Name: name}
}

// ParseKeys parses every name, failing on the first unknown one.
func ParseKeys(names []string) ([]Key, error) {
	keys := make([]Key, 0, len(names))
	for _, name := range names {
		k, err := ParseKey(name)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
