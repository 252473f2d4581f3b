package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"runtime"
)

// ComputeFingerprint creates a deterministic hash from the normalized
// install path and CPU architecture. Identical inputs always produce the
// same 16-hex-char value, so fingerprints are portable across machines
// with the same layout.
func ComputeFingerprint(normalizedPath, arch string) string {
	if arch == "" {
		arch = runtime.GOARCH
	}

	canonical := normalizedPath + "|" + arch
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:8])
}
