// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checksum

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 keyed digest.
type Digest [32]byte

const prefix = "blake3:"

// artifactDomainKey is the ASCII domain name zero-padded to 32 bytes.
// Changing it invalidates every checksum already in a tracking store.
var artifactDomainKey = [32]byte{
	'd', 'r', 'o', 'p', 's', 'h', 'i', 'p', '.', 'a', 'r', 't', 'i', 'f', 'a', 'c',
	't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Reader streams r through the keyed hasher.
func Reader(r io.Reader) (Digest, error) {
	hasher, err := blake3.NewKeyed(artifactDomainKey[:])
	if err != nil {
		// Only fails for a key that is not 32 bytes.
		panic("checksum: blake3.NewKeyed: " + err.Error())
	}
	if _, err := io.Copy(hasher, r); err != nil {
		return Digest{}, err
	}
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// HashFile computes the digest of the file at path, streaming it in
// chunks so memory stays constant regardless of file size.
func HashFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	digest, err := Reader(file)
	if err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return digest, nil
}

// String returns the canonical "blake3:<hex>" form.
func (d Digest) String() string {
	return prefix + hex.EncodeToString(d[:])
}

// Short returns the first 12 hex digits, for table output.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:6])
}

// Parse accepts the canonical form. A bare 64-digit hex string is
// also accepted.
func Parse(text string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(strings.TrimPrefix(text, prefix))
	if err != nil {
		return digest, fmt.Errorf("parsing checksum: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("checksum is %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}
