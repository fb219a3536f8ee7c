// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for channel-based
// assertions.
//
// The event pipeline and the input multiplexer communicate entirely
// over channels, so their tests spend most of their time waiting for
// values to arrive or proving that none will. These helpers wrap the
// select-with-timeout pattern so individual tests never write raw
// time.After safety valves.
package testutil
