// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package ui

import (
	"io"
)

// InputSource delivers decoded keystrokes. ReadKey blocks until a key
// is available; it returns an error (conventionally io.EOF) when the
// source is exhausted.
type InputSource interface {
	ReadKey() (Key, error)
}

// TerminalSource decodes keystrokes from a reader, typically stdin in
// raw mode (the caller owns entering and restoring raw mode).
type TerminalSource struct {
	reader io.Reader
	buf    []byte
	have   int
}

// NewTerminalSource creates a TerminalSource over reader.
func NewTerminalSource(reader io.Reader) *TerminalSource {
	return &TerminalSource{
		reader: reader,
		buf:    make([]byte, 64),
	}
}

// ReadKey decodes the next keystroke. Escape sequences (arrow keys)
// arrive as a single read from a raw-mode terminal, so a lone escape
// byte with nothing buffered behind it decodes as the Esc key.
func (s *TerminalSource) ReadKey() (Key, error) {
	for {
		if s.have > 0 {
			if key, consumed, ok := DecodeKey(s.buf[:s.have]); ok {
				s.have = copy(s.buf, s.buf[consumed:s.have])
				return key, nil
			}
		}

		n, err := s.reader.Read(s.buf[s.have:])
		if n > 0 {
			s.have += n
			continue
		}
		if err != nil {
			// A truncated trailing sequence is dropped with the stream.
			return Key{}, err
		}
	}
}
