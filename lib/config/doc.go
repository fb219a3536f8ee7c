// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the perch client.
//
// Configuration is loaded from a single YAML file specified by:
//   - the --config flag passed to the command, or
//   - the PERCH_CONFIG environment variable.
//
// There is no search path or automatic discovery. When neither source
// names a file, the built-in defaults apply and the homeserver must be
// supplied on the command line. This keeps the effective configuration
// deterministic: one file, one set of defaults, no hidden overrides.
package config
