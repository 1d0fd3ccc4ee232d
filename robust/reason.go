package robust

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// maxCloseReasonBytes is RFC 6455's limit on the UTF-8 close-reason
// payload (125-byte control frame minus the 2-byte status code).
const maxCloseReasonBytes = 123

// sanitizeReason NFC-normalizes a caller-supplied close reason and
// truncates it to the wire's byte budget, rune-safely. This is the one
// place arbitrary caller text crosses onto the wire as a WebSocket
// close reason.
func sanitizeReason(reason string) string {
	normalized := norm.NFC.String(reason)
	if len(normalized) <= maxCloseReasonBytes {
		return normalized
	}

	b := normalized[:maxCloseReasonBytes]
	for len(b) > 0 && !utf8.ValidString(b) {
		b = b[:len(b)-1]
	}
	return b
}
