// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source with a
// deterministic fake for tests.
//
// The redraw ticker in the UI multiplexer and the retry pauses in the
// sync loop are driven through Clock so that tests can advance time
// explicitly instead of sleeping. Production code passes Real();
// tests pass Fake(initial) and call Advance.
//
// The fake fires pending waiters in deadline order when the clock
// advances past their deadline; tickers reschedule themselves at
// deadline + interval. BlockUntil lets a test wait for a goroutine
// under test to register its timer before advancing.
package clock
