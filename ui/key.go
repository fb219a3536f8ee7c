// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package ui

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// KeyKind classifies a decoded keystroke.
type KeyKind int

const (
	// KeyRune: a printable character, in Key.Rune.
	KeyRune KeyKind = iota
	// KeyCtrl: a control chord; Key.Rune holds the letter ('a'..'z').
	KeyCtrl
	KeyEnter
	KeyBackspace
	KeyTab
	KeyEsc
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
)

// Key is one decoded keystroke.
type Key struct {
	Kind KeyKind
	Rune rune
}

func (k Key) String() string {
	switch k.Kind {
	case KeyRune:
		return string(k.Rune)
	case KeyCtrl:
		return "ctrl+" + string(k.Rune)
	case KeyEnter:
		return "enter"
	case KeyBackspace:
		return "backspace"
	case KeyTab:
		return "tab"
	case KeyEsc:
		return "esc"
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeyLeft:
		return "left"
	case KeyRight:
		return "right"
	}
	return "unknown"
}

var namedKeys = map[string]Key{
	"enter":     {Kind: KeyEnter},
	"backspace": {Kind: KeyBackspace},
	"tab":       {Kind: KeyTab},
	"esc":       {Kind: KeyEsc},
	"escape":    {Kind: KeyEsc},
	"up":        {Kind: KeyUp},
	"down":      {Kind: KeyDown},
	"left":      {Kind: KeyLeft},
	"right":     {Kind: KeyRight},
}

// ParseKeyName parses a configuration key name: "ctrl+q", "esc",
// "enter", or a single character.
func ParseKeyName(name string) (Key, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Key{}, fmt.Errorf("ui: empty key name")
	}

	if letter, ok := strings.CutPrefix(name, "ctrl+"); ok {
		if len(letter) != 1 || letter[0] < 'a' || letter[0] > 'z' {
			return Key{}, fmt.Errorf("ui: invalid control key %q: want ctrl+<letter>", name)
		}
		return Key{Kind: KeyCtrl, Rune: rune(letter[0])}, nil
	}

	if key, ok := namedKeys[name]; ok {
		return key, nil
	}

	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		return Key{Kind: KeyRune, Rune: r}, nil
	}

	return Key{}, fmt.Errorf("ui: unknown key name %q", name)
}

// DecodeKey decodes one keystroke from the front of buf, returning the
// key and the number of bytes consumed. ok is false when buf holds an
// incomplete sequence and more bytes are needed.
func DecodeKey(buf []byte) (key Key, consumed int, ok bool) {
	if len(buf) == 0 {
		return Key{}, 0, false
	}

	switch b := buf[0]; {
	case b == 0x1b:
		// A lone escape byte is the Esc key; raw-mode terminals
		// deliver CSI sequences in one read.
		if len(buf) == 1 {
			return Key{Kind: KeyEsc}, 1, true
		}
		if buf[1] == '[' {
			if len(buf) < 3 {
				return Key{}, 0, false
			}
			switch buf[2] {
			case 'A':
				return Key{Kind: KeyUp}, 3, true
			case 'B':
				return Key{Kind: KeyDown}, 3, true
			case 'C':
				return Key{Kind: KeyRight}, 3, true
			case 'D':
				return Key{Kind: KeyLeft}, 3, true
			}
			// Unrecognized CSI final byte: swallow the sequence.
			return Key{Kind: KeyEsc}, 3, true
		}
		// Alt-modified key or stray escape: report Esc, keep the tail.
		return Key{Kind: KeyEsc}, 1, true

	case b == '\r' || b == '\n':
		return Key{Kind: KeyEnter}, 1, true
	case b == 0x7f || b == 0x08:
		return Key{Kind: KeyBackspace}, 1, true
	case b == '\t':
		return Key{Kind: KeyTab}, 1, true
	case b < 0x20:
		// Control chords map back to their letter: 0x01 is ctrl+a.
		return Key{Kind: KeyCtrl, Rune: rune('a' + b - 1)}, 1, true
	}

	r, size := utf8.DecodeRune(buf)
	if r == utf8.RuneError && size == 1 && !utf8.FullRune(buf) {
		return Key{}, 0, false
	}
	return Key{Kind: KeyRune, Rune: r}, size, true
}
