// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the synchronization engine: it owns the /sync
// long-poll loop, maintains room state, and feeds protocol events into
// a notification sink (the stream ingestor).
//
// [MatrixClient.Run] polls /sync with a 30-second server hold. Each
// response is dispatched in server order: invite sections first
// (stripped member previews), then per joined room the state block,
// the timeline, ephemeral events (typing), and room account data
// (fully-read markers). Timeline member events look up the prior
// membership in the roster before applying the change, so the
// transition classification sees the state as it was.
//
// Sync failures are retried up to five times with a short server
// timeout and a fresh connection; a sixth consecutive failure ends the
// run. There is no other resilience machinery: this is a single-user
// client and a dead homeserver connection is a reason to exit, not to
// queue.
package client
