package metaapi

import "crypto/rand"

const requestIDLength = 32
const requestIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// generateRequestID returns a 32-character random alphanumeric id.
// crypto/rand is used directly rather than a library wrapper: it's the
// stdlib CSPRNG and the only thing this needs, and google/uuid's
// hyphenated 36-character form doesn't fit the wire's 32-character
// alphanumeric requestId.
func generateRequestID() string {
	b := make([]byte, requestIDLength)
	buf := make([]byte, requestIDLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on a supported platform does not fail; if it
		// somehow did, falling back to an all-zero seed still yields a
		// syntactically valid (if weak) id rather than panicking a
		// request path.
		buf = make([]byte, requestIDLength)
	}
	for i, v := range buf {
		b[i] = requestIDAlphabet[int(v)%len(requestIDAlphabet)]
	}
	return string(b)
}
