// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

// Package ui owns the terminal side of perch: decoding raw keyboard
// input, multiplexing it with redraw ticks into one event stream, and
// rendering message bodies and chrome.
//
// [Mux] fans two producers into a single consumer channel: an input
// goroutine reading an [InputSource] and a tick goroutine driven by a
// clock. The configured exit key silently stops the input producer —
// that is the local quit gesture — while ticks continue until
// [Mux.Shutdown]. Shutdown is cooperative: it joins both producers and
// then closes the consumer channel, after which [Mux.Next] reports
// [ErrMuxClosed].
//
// [RenderMarkdown] converts a message body to styled terminal text via
// a goldmark AST walk, with chroma-highlighted code fences. The
// renderer reflows soft line breaks so hard-wrapped source text wraps
// at the terminal width.
//
// [App] is the chat loop itself: it drains the canonical event stream
// and the multiplexer as independent sources, keeps per-room
// transcripts, and drives the outbound side (sending, backfill, read
// markers, typing) through the [Conversation] interface.
package ui
