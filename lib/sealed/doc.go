// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption for credentials stored in the
// dropship configuration file: FTP passwords and object store secret
// keys.
//
// A sealed value is written into the config as "age:" followed by the
// base64 ciphertext. The daemon decrypts it at load time with the x25519
// identity read from the file named by age_identity_file. Operators
// produce sealed values with "dropship seal --recipient age1...".
//
// Ciphertext is base64-encoded so it fits in a YAML scalar; callers pass
// plaintext in and get strings out (and vice versa for decryption).
package sealed
