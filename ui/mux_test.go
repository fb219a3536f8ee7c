// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package ui

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/perch-chat/perch/lib/clock"
)

// scriptedSource replays keys from a channel; once the channel is
// closed, ReadKey reports io.EOF like an exhausted terminal.
type scriptedSource struct {
	keys chan Key
}

func newScriptedSource(keys ...Key) *scriptedSource {
	source := &scriptedSource{keys: make(chan Key, len(keys)+8)}
	for _, key := range keys {
		source.keys <- key
	}
	return source
}

func (s *scriptedSource) ReadKey() (Key, error) {
	key, ok := <-s.keys
	if !ok {
		return Key{}, io.EOF
	}
	return key, nil
}

var testEpoch = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func mustNext(t *testing.T, m *Mux) Event {
	t.Helper()
	type result struct {
		event Event
		err   error
	}
	results := make(chan result, 1)
	go func() {
		event, err := m.Next()
		results <- result{event, err}
	}()
	select {
	case r := <-results:
		if r.err != nil {
			t.Fatalf("Next failed: %v", r.err)
		}
		return r.event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Next")
	}
	panic("unreachable")
}

func TestMuxForwardsInputInOrder(t *testing.T) {
	source := newScriptedSource(
		Key{Kind: KeyRune, Rune: 'a'},
		Key{Kind: KeyRune, Rune: 'b'},
		Key{Kind: KeyEnter},
	)
	close(source.keys)

	clk := clock.Fake(testEpoch)
	m, err := StartMux(MuxConfig{
		ExitKey: Key{Kind: KeyCtrl, Rune: 'q'},
		Source:  source,
		Clock:   clk,
	})
	if err != nil {
		t.Fatalf("StartMux failed: %v", err)
	}

	want := []Key{
		{Kind: KeyRune, Rune: 'a'},
		{Kind: KeyRune, Rune: 'b'},
		{Kind: KeyEnter},
	}
	for index, wantKey := range want {
		event := mustNext(t, m)
		input, ok := event.(InputEvent)
		if !ok {
			t.Fatalf("event %d = %T, want InputEvent", index, event)
		}
		if input.Key != wantKey {
			t.Errorf("event %d key = %v, want %v", index, input.Key, wantKey)
		}
	}

	m.Shutdown()
	if _, err := m.Next(); !errors.Is(err, ErrMuxClosed) {
		t.Fatalf("Next after shutdown = %v, want ErrMuxClosed", err)
	}
}

func TestExitKeyStopsInputProducerOnly(t *testing.T) {
	exitKey := Key{Kind: KeyCtrl, Rune: 'q'}
	source := newScriptedSource(
		Key{Kind: KeyRune, Rune: 'a'},
		exitKey,
		Key{Kind: KeyRune, Rune: 'b'}, // never read: the producer stops at the exit key
	)

	clk := clock.Fake(testEpoch)
	m, err := StartMux(MuxConfig{
		ExitKey:      exitKey,
		TickInterval: 100 * time.Millisecond,
		Source:       source,
		Clock:        clk,
	})
	if err != nil {
		t.Fatalf("StartMux failed: %v", err)
	}

	event := mustNext(t, m)
	if input, ok := event.(InputEvent); !ok || input.Key.Rune != 'a' {
		t.Fatalf("first event = %#v, want input 'a'", event)
	}

	// The tick producer keeps running after the exit key: every
	// subsequent event must be a tick, never the 'b' that followed the
	// exit key in the script.
	clk.BlockUntil(1)
	for i := 0; i < 3; i++ {
		clk.Advance(100 * time.Millisecond)
		event := mustNext(t, m)
		if _, ok := event.(TickEvent); !ok {
			t.Fatalf("post-exit event = %#v, want TickEvent", event)
		}
	}

	m.Shutdown()
	if _, err := m.Next(); !errors.Is(err, ErrMuxClosed) {
		t.Fatalf("Next after shutdown = %v, want ErrMuxClosed", err)
	}
}

func TestShutdownJoinsProducers(t *testing.T) {
	source := newScriptedSource()
	close(source.keys)

	clk := clock.Fake(testEpoch)
	m, err := StartMux(MuxConfig{Source: source, Clock: clk})
	if err != nil {
		t.Fatalf("StartMux failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		m.Shutdown()
		m.Shutdown() // idempotent
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}

	// Both producers have stopped: advancing the clock produces
	// nothing and the channel reports closure.
	clk.Advance(time.Hour)
	if _, err := m.Next(); !errors.Is(err, ErrMuxClosed) {
		t.Fatalf("Next after shutdown = %v, want ErrMuxClosed", err)
	}
}

func TestStartMuxRequiresSource(t *testing.T) {
	if _, err := StartMux(MuxConfig{}); err == nil {
		t.Fatal("expected error for missing Source")
	}
}
