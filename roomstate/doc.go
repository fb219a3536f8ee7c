// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

// Package roomstate tracks the client's view of room state: membership
// rosters, display names, and naming metadata accumulated from sync
// responses.
//
// [Store] holds one [Room] per room the client knows about. Room is
// safe for concurrent use; the sync engine writes to it from its poll
// goroutine while the UI reads from the render loop.
//
// A room's display name is computed, not stored: an explicit
// m.room.name wins, then the canonical alias, then a roster-derived
// name built from up to three joined peers, and finally the raw room
// ID. This mirrors the common client heuristic for unnamed direct
// chats.
package roomstate
