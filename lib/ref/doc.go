// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable Matrix identifier
// types: user IDs, room IDs, room aliases, event IDs, server names,
// and event types.
//
// Identifiers arrive from the homeserver (login responses, /sync
// payloads, alias resolution) and from user configuration. They are
// validated once at the boundary and passed through the rest of the
// client as typed values — no package above this one re-parses sigils
// or server suffixes.
//
// All constructors validate their inputs and return errors for invalid
// identifiers. Once constructed, a ref is immutable. JSON marshaling
// uses the canonical Matrix form (@localpart:server, !opaque:server,
// #localpart:server, $opaque) via encoding.TextMarshaler.
package ref
