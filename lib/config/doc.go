// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the dropship daemon configuration.
//
// Configuration is loaded from a single file specified by:
//   - the DROPSHIP_CONFIG environment variable, or
//   - the --config flag passed to the command
//
// There are no fallbacks or automatic discovery.
//
// The file is YAML. Legacy options files ending in .json or .jsonc are
// accepted too: comments and trailing commas are stripped first, and
// the result is decoded by the same YAML decoder.
//
// Loading proceeds in a fixed order:
//
//  1. Defaults, then the file on top of them.
//  2. The environment section (development, staging, production)
//     matching the environment field.
//  3. The optional env_file, read with godotenv. Its values feed
//     variable expansion but never modify the process environment.
//  4. ${VAR} and ${VAR:-default} expansion in paths and credentials.
//     The process environment wins over env_file values.
//  5. Credentials of the form "age:<base64>" are decrypted with the
//     identity named by age_identity_file.
package config
