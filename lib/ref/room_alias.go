// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// RoomAlias is a validated Matrix room alias (e.g., "#lobby:example.org").
//
// Aliases are the human-readable names users type to join rooms; the
// homeserver resolves them to room IDs. An alias always starts with
// '#' and contains a ':' separating the localpart from the server name.
//
// RoomAlias is an immutable value type. The zero value is not valid;
// use IsZero to check.
type RoomAlias struct {
	alias string
}

// ParseRoomAlias validates and wraps a raw Matrix room alias string.
// Returns an error if the string is empty, doesn't start with '#',
// has an empty localpart, or is missing the ':server' suffix.
func ParseRoomAlias(raw string) (RoomAlias, error) {
	_, _, err := parseRoomAlias(raw)
	if err != nil {
		return RoomAlias{}, err
	}
	return RoomAlias{alias: raw}, nil
}

// MustParseRoomAlias is like ParseRoomAlias but panics on error. Use
// in tests and static initialization where the input is known-valid.
func MustParseRoomAlias(raw string) RoomAlias {
	a, err := ParseRoomAlias(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomAlias(%q): %v", raw, err))
	}
	return a
}

// String returns the full alias string (e.g., "#lobby:example.org").
func (a RoomAlias) String() string { return a.alias }

// IsZero reports whether the RoomAlias is the zero value (uninitialized).
func (a RoomAlias) IsZero() bool { return a.alias == "" }

// Localpart returns the alias localpart (without the '#' prefix or
// ':server' suffix). Panics if called on a zero-value RoomAlias.
func (a RoomAlias) Localpart() string {
	if a.alias == "" {
		panic("RoomAlias.Localpart called on zero value")
	}
	localpart, _, err := parseRoomAlias(a.alias)
	if err != nil {
		// RoomAlias was validated at construction — this is unreachable.
		panic(fmt.Sprintf("RoomAlias.Localpart: internal error parsing %q: %v", a.alias, err))
	}
	return localpart
}

// MarshalText implements encoding.TextMarshaler for JSON and other
// text-based serialization formats.
func (a RoomAlias) MarshalText() ([]byte, error) {
	if a.alias == "" {
		return []byte{}, nil
	}
	return []byte(a.alias), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for JSON and other
// text-based serialization formats. Validates the alias format.
// An empty input produces the zero value (unset alias).
func (a *RoomAlias) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = RoomAlias{}
		return nil
	}
	parsed, err := ParseRoomAlias(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
