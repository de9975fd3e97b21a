package input

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKey marks a key name or character with no virtual key code
// mapping. Typing such a character fails the whole intent rather than
// silently skipping it.
var ErrUnknownKey = errors.New("unknown key")

// keyStroke pairs a virtual key code with the modifiers needed to
// produce a character on the standard US layout.
type keyStroke struct {
	code  KeyCode
	shift bool
}

// charCodes maps typeable characters to virtual key codes (ANSI layout).
var charCodes = map[rune]keyStroke{
	'a': {code: 0}, 's': {code: 1}, 'd': {code: 2}, 'f': {code: 3},
	'h': {code: 4}, 'g': {code: 5}, 'z': {code: 6}, 'x': {code: 7},
	'c': {code: 8}, 'v': {code: 9}, 'b': {code: 11}, 'q': {code: 12},
	'w': {code: 13}, 'e': {code: 14}, 'r': {code: 15}, 'y': {code: 16},
	't': {code: 17}, '1': {code: 18}, '2': {code: 19}, '3': {code: 20},
	'4': {code: 21}, '6': {code: 22}, '5': {code: 23}, '=': {code: 24},
	'9': {code: 25}, '7': {code: 26}, '-': {code: 27}, '8': {code: 28},
	'0': {code: 29}, ']': {code: 30}, 'o': {code: 31}, 'u': {code: 32},
	'[': {code: 33}, 'i': {code: 34}, 'p': {code: 35}, 'l': {code: 37},
	'j': {code: 38}, '\'': {code: 39}, 'k': {code: 40}, ';': {code: 41},
	'\\': {code: 42}, ',': {code: 43}, '/': {code: 44}, 'n': {code: 45},
	'm': {code: 46}, '.': {code: 47}, '`': {code: 50}, ' ': {code: 49},
	'\n': {code: 36}, '\t': {code: 48},

	'!': {code: 18, shift: true}, '@': {code: 19, shift: true},
	'#': {code: 20, shift: true}, '$': {code: 21, shift: true},
	'%': {code: 23, shift: true}, '^': {code: 22, shift: true},
	'&': {code: 26, shift: true}, '*': {code: 28, shift: true},
	'(': {code: 25, shift: true}, ')': {code: 29, shift: true},
	'_': {code: 27, shift: true}, '+': {code: 24, shift: true},
	'{': {code: 33, shift: true}, '}': {code: 30, shift: true},
	'|': {code: 42, shift: true}, ':': {code: 41, shift: true},
	'"': {code: 39, shift: true}, '<': {code: 43, shift: true},
	'>': {code: 47, shift: true}, '?': {code: 44, shift: true},
	'~': {code: 50, shift: true},
}

// namedKeys maps key names used in planner key chords to codes.
var namedKeys = map[string]KeyCode{
	"return": 36, "enter": 36,
	"tab":    48,
	"space":  49,
	"delete": 51, "backspace": 51,
	"escape": 53, "esc": 53,
	"left": 123, "right": 124, "down": 125, "up": 126,
	"home": 115, "end": 119, "pageup": 116, "pagedown": 121,
	"f1": 122, "f2": 120, "f3": 99, "f4": 118, "f5": 96, "f6": 97,
	"f7": 98, "f8": 100, "f9": 101, "f10": 109, "f11": 103, "f12": 111,
}

// modifierNames maps planner modifier tokens to the Modifier mask.
var modifierNames = map[string]Modifier{
	"shift":   ModShift,
	"ctrl":    ModControl,
	"control": ModControl,
	"alt":     ModOption,
	"opt":     ModOption,
	"option":  ModOption,
	"cmd":     ModCommand,
	"command": ModCommand,
	"meta":    ModCommand,
	"fn":      ModFn,
}

// StrokeForRune returns the key code and modifier needed to type r.
// Uppercase letters resolve to their lowercase code plus shift.
func StrokeForRune(r rune) (KeyCode, Modifier, error) {
	if r >= 'A' && r <= 'Z' {
		ks, ok := charCodes[r+('a'-'A')]
		if !ok {
			return 0, 0, fmt.Errorf("%w: character %q", ErrUnknownKey, r)
		}
		return ks.code, ModShift, nil
	}
	ks, ok := charCodes[r]
	if !ok {
		return 0, 0, fmt.Errorf("%w: character %q", ErrUnknownKey, r)
	}
	var mods Modifier
	if ks.shift {
		mods = ModShift
	}
	return ks.code, mods, nil
}

// ParseChord parses a compound key expression like "cmd+shift+s" or a
// bare key like "escape". The trailing token is the primary key; every
// leading token must be a modifier name. An unrecognized primary key is
// a hard failure.
func ParseChord(expr string) (KeyCode, Modifier, error) {
	tokens := strings.Split(strings.TrimSpace(expr), "+")
	if len(tokens) == 0 || tokens[len(tokens)-1] == "" {
		return 0, 0, fmt.Errorf("%w: empty key expression", ErrUnknownKey)
	}

	var mods Modifier
	for _, tok := range tokens[:len(tokens)-1] {
		mod, ok := modifierNames[strings.ToLower(strings.TrimSpace(tok))]
		if !ok {
			return 0, 0, fmt.Errorf("%w: modifier %q", ErrUnknownKey, tok)
		}
		mods |= mod
	}

	primary := strings.ToLower(strings.TrimSpace(tokens[len(tokens)-1]))
	if code, ok := namedKeys[primary]; ok {
		return code, mods, nil
	}
	if len([]rune(primary)) == 1 {
		code, charMods, err := StrokeForRune([]rune(primary)[0])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: key %q", ErrUnknownKey, primary)
		}
		return code, mods | charMods, nil
	}
	return 0, 0, fmt.Errorf("%w: key %q", ErrUnknownKey, primary)
}
