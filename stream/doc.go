// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream is the boundary between the sync engine and the UI:
// it translates protocol-level notifications into a small canonical
// event vocabulary delivered over a bounded channel.
//
// The sync engine calls [Ingestor.HandleNotification] with one
// [Notification] per protocol event. Notifications the client reacts
// to (room renamed, member changed, text message, typing list,
// fully-read marker) become exactly one [Event] each on the bounded
// channel; the remaining categories are accepted and deliberately
// produce nothing, which keeps the dispatch exhaustive and the
// ignored surface visible.
//
// [ResolveTransition] classifies membership changes as a pure function
// of (previous state, next state, same actor). Stripped invite-preview
// events carry no history, so their previous state is fixed at
// [StrippedPreviousMembership].
//
// The channel send is the sole backpressure mechanism: a handler
// blocks until capacity is available or the ingestor is closed. A send
// that loses that race trips the one-shot failure hook instead of
// aborting the process, so the caller can shut down cleanly.
package stream
