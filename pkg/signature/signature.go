// Package signature verifies webhook authenticity for registry callbacks.
//
// The registry signs every delivery with HMAC-SHA256 over
// "<unix-seconds>.<raw body bytes>" and sends the result as
// "sha256=<hex>" alongside the timestamp. Verification must run against the
// exact raw bytes of the request body; re-encoding the parsed JSON would
// change key order and whitespace and invalidate the signature.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// MaxSkew is the symmetric replay/staleness window. Timestamps more than
// this far in the past or future are rejected even with a valid signature.
const MaxSkew = 300 * time.Second

// Compute returns the expected signature header value for a body signed at
// the given unix-seconds timestamp.
func Compute(secret, timestamp, rawBody string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write([]byte(rawBody))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verifier checks webhook signatures against a shared secret.
// The zero value is not usable; construct with NewVerifier.
type Verifier struct {
	secret string
	now    func() time.Time
}

// NewVerifier creates a Verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify reports whether the signature header matches the raw body and the
// timestamp header is fresh. Any malformed input yields false; Verify never
// panics and never returns an error.
func (v *Verifier) Verify(rawBody, signatureHeader, timestampHeader string) bool {
	if v.secret == "" || signatureHeader == "" || timestampHeader == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return false
	}

	skew := v.now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > MaxSkew {
		return false
	}

	expected := Compute(v.secret, timestampHeader, rawBody)
	// hmac.Equal is constant-time; differing lengths compare unequal
	// without inspecting content.
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}
