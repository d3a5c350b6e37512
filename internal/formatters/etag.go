package formatters

import (
	"crypto/md5" //nolint:gosec // content fingerprint only, not a security boundary
	"fmt"
)

// ETag computes a quoted 32-hex-digit content hash for body, the form
// written to the ETag response header and compared against If-None-Match.
func ETag(body []byte) string {
	sum := md5.Sum(body) //nolint:gosec
	return fmt.Sprintf("%q", fmt.Sprintf("%x", sum))
}

// Matches reports whether the client-supplied If-None-Match value equals
// the computed tag byte-for-byte (no weak-comparison support is needed
// here — the gateway only ever emits strong tags).
func Matches(ifNoneMatch, tag string) bool {
	return ifNoneMatch != "" && ifNoneMatch == tag
}
