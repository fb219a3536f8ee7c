// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the subset of the Matrix client-server API
// that perch uses.
//
// The package provides two core types. [Client] is an unauthenticated
// Matrix client that handles password login, returning an
// authenticated [Session]. Client holds the homeserver URL and HTTP
// transport, shared by the Session derived from it.
//
// [Session] wraps a Client with an access token for authenticated
// operations: joining and leaving rooms, sending messages (idempotent
// PUT with transaction IDs), paginated history fetches, room member
// listings, typing notifications, read markers, alias resolution, and
// incremental /sync with long-polling. Perch is a single-user client:
// there is exactly one Session per process and the access token lives
// in ordinary process memory for the lifetime of the run.
//
// All API errors are returned as [*MatrixError] with the standard
// Matrix error code (M_FORBIDDEN, M_NOT_FOUND, etc.) and HTTP status
// code. [IsMatrixError] tests for a specific error code. Request URLs
// are built by string concatenation rather than url.URL to avoid
// double-encoding of path segments that contain URL-encoded
// characters.
//
// The sync-response types deliberately include the ephemeral and
// per-room account-data sections: typing notifications and fully-read
// markers are part of the client's event vocabulary, not filtered
// noise.
package messaging
