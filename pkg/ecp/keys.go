package ecp

import "strings"

// Key is a remote control key name as understood by the keypress endpoint.
type Key string

// Remote keys.
const (
	KeyBack      Key = "Back"
	KeyBackspace Key = "Backspace"
	KeyDown      Key = "Down"
	KeyEnter     Key = "Enter"
	KeyForward   Key = "Fwd"
	KeyHome      Key = "Home"
	KeyLeft      Key = "Left"
	KeyOK        Key = "Select"
	KeyOptions   Key = "Info"
	KeyPlay      Key = "Play"
	KeyReplay    Key = "InstantReplay"
	KeyRewind    Key = "Rev"
	KeyRight     Key = "Right"
	KeySearch    Key = "Search"
	KeyUp        Key = "Up"
)

var keyNames = map[string]Key{
	"back":      KeyBack,
	"backspace": KeyBackspace,
	"down":      KeyDown,
	"enter":     KeyEnter,
	"forward":   KeyForward,
	"fwd":       KeyForward,
	"home":      KeyHome,
	"left":      KeyLeft,
	"ok":        KeyOK,
	"select":    KeyOK,
	"options":   KeyOptions,
	"info":      KeyOptions,
	"play":      KeyPlay,
	"replay":    KeyReplay,
	"rewind":    KeyRewind,
	"rev":       KeyRewind,
	"right":     KeyRight,
	"search":    KeySearch,
	"up":        KeyUp,
}

// ParseKey returns the key for a case-insensitive name such as "ok" or
// "Select". Unknown names are passed through unchanged.
func ParseKey(name string) Key {
	if k, ok := keyNames[strings.ToLower(name)]; ok {
		return k
	}
	return Key(name)
}

// Literal returns the key that types r.
func Literal(r rune) Key {
	return Key("LIT_" + string(r))
}
