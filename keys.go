package clidrive

import "strings"

// Key is a raw byte sequence a terminal sends for a keypress. Keys are plain
// strings and can be used directly as Step.Input chunks.
type Key = string

// Special key sequences for use as input chunks.
const (
	Enter     Key = "\r"
	Escape    Key = "\x1b"
	Tab       Key = "\t"
	Backspace Key = "\x7f"
	Space     Key = " "
	Up        Key = "\x1b[A"
	Down      Key = "\x1b[B"
	Right     Key = "\x1b[C"
	Left      Key = "\x1b[D"
	Home      Key = "\x1b[H"
	End       Key = "\x1b[F"
	PageUp    Key = "\x1b[5~"
	PageDown  Key = "\x1b[6~"
	Delete    Key = "\x1b[3~"
	CtrlC     Key = "\x03"
	CtrlD     Key = "\x04"
)

// Ctrl returns the key sequence for Ctrl+<char>.
func Ctrl(c byte) Key {
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	return Key([]byte{c & 0x1f})
}

// Alt returns the key sequence for Alt+<char>.
func Alt(c byte) Key {
	return Key([]byte{0x1b, c})
}

var namedKeys = map[string]Key{
	"enter":     Enter,
	"return":    Enter,
	"escape":    Escape,
	"esc":       Escape,
	"tab":       Tab,
	"backspace": Backspace,
	"space":     Space,
	"up":        Up,
	"down":      Down,
	"right":     Right,
	"left":      Left,
	"home":      Home,
	"end":       End,
	"pageup":    PageUp,
	"pagedown":  PageDown,
	"delete":    Delete,
	"ctrl-c":    CtrlC,
	"ctrl-d":    CtrlD,
}

// LookupKey returns the sequence for a key name such as "enter", "down" or
// "ctrl-x". Names are case-insensitive.
func LookupKey(name string) (Key, bool) {
	name = strings.ToLower(name)
	if k, ok := namedKeys[name]; ok {
		return k, true
	}
	if rest, ok := strings.CutPrefix(name, "ctrl-"); ok && len(rest) == 1 {
		return Ctrl(rest[0]), true
	}
	if rest, ok := strings.CutPrefix(name, "alt-"); ok && len(rest) == 1 {
		return Alt(rest[0]), true
	}
	return "", false
}
