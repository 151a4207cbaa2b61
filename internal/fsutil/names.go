// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const maxDirName = 96

// SafeName maps an externally supplied identifier to a single path segment.
// Identifiers made only of [A-Za-z0-9._-] are used as-is; anything else is
// replaced by "id-" plus the SHA-256 of the identifier, so distinct ids never
// collide and never traverse.
func SafeName(id string) string {
	if isSafeSegment(id) {
		return id
	}
	sum := sha256.Sum256([]byte(id))
	return "id-" + hex.EncodeToString(sum[:])
}

func isSafeSegment(s string) bool {
	if s == "" || s == "." || s == ".." || len(s) > maxDirName {
		return false
	}
	if strings.HasPrefix(s, "id-") && len(s) == 3+2*sha256.Size {
		// Reserved for hashed names.
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return !strings.HasPrefix(s, ".")
}
