// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package ui

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/perch-chat/perch/lib/clock"
)

// muxBuffer is the consumer channel capacity. The render loop drains
// on every iteration, so the buffer only has to absorb short bursts of
// typed characters between redraws.
const muxBuffer = 128

// DefaultTickInterval drives redraws when MuxConfig.TickInterval is
// zero.
const DefaultTickInterval = 250 * time.Millisecond

// ErrMuxClosed is returned by Next once the multiplexer has shut down
// and the channel is drained.
var ErrMuxClosed = errors.New("ui: multiplexer closed")

// Event is one entry in the multiplexed UI stream.
type Event interface {
	uiEvent()
}

// InputEvent carries one decoded keystroke.
type InputEvent struct {
	Key Key
}

// TickEvent is a periodic redraw signal.
type TickEvent struct{}

func (InputEvent) uiEvent() {}
func (TickEvent) uiEvent()  {}

// MuxConfig configures a Mux.
type MuxConfig struct {
	// ExitKey silently stops the input producer when pressed. The
	// event is not forwarded; the tick producer is unaffected.
	ExitKey Key
	// TickInterval between TickEvents. Defaults to
	// DefaultTickInterval.
	TickInterval time.Duration
	// Source of keystrokes. Required.
	Source InputSource
	// Clock drives the ticker. If nil, the real clock.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// Mux fans keyboard input and redraw ticks into one consumer channel.
// Each producer is individually FIFO; no ordering holds between them.
type Mux struct {
	logger  *slog.Logger
	exitKey Key

	events chan Event
	done   chan struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// StartMux starts the input and tick producers and returns the
// multiplexer handle.
func StartMux(config MuxConfig) (*Mux, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("ui: MuxConfig.Source is required")
	}

	interval := config.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Mux{
		logger:  logger,
		exitKey: config.ExitKey,
		events:  make(chan Event, muxBuffer),
		done:    make(chan struct{}),
	}

	m.wg.Add(2)
	go m.readInput(config.Source)
	go m.tick(clk, interval)
	return m, nil
}

// Next blocks until an event is available. It returns ErrMuxClosed
// once the multiplexer has shut down and all buffered events have
// been consumed.
func (m *Mux) Next() (Event, error) {
	event, ok := <-m.events
	if !ok {
		return nil, ErrMuxClosed
	}
	return event, nil
}

// Shutdown stops both producers and closes the event channel. It is
// cooperative: a producer blocked on a long input read is not
// interrupted — it ends when its read returns, via the exit key, or
// when its source is exhausted. Shutdown waits for both, so callers
// needing bounded latency must close the input source (or rely on the
// exit key) first. Idempotent.
func (m *Mux) Shutdown() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		close(m.events)
	})
}

// readInput forwards keystrokes until the source is exhausted, the
// exit key is pressed, or the consumer goes away. The exit key stops
// this producer without signaling the consumer: it is the local quit
// gesture, independent of Shutdown.
func (m *Mux) readInput(source InputSource) {
	defer m.wg.Done()
	for {
		key, err := source.ReadKey()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.logger.Debug("input source ended", "error", err)
			}
			return
		}
		if key == m.exitKey {
			return
		}
		select {
		case m.events <- InputEvent{Key: key}:
		case <-m.done:
			return
		}
	}
}

// tick forwards one TickEvent per interval until the consumer goes
// away.
func (m *Mux) tick(clk clock.Clock, interval time.Duration) {
	defer m.wg.Done()
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case m.events <- TickEvent{}:
			case <-m.done:
				return
			}
		case <-m.done:
			return
		}
	}
}
