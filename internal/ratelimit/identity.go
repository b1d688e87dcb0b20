package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	unknownSignal     = "unknown"
	fingerprintLength = 16
)

// RequestInfo is what the limiter needs to know about a request.
type RequestInfo struct {
	// UserID is empty when the request has no session.
	UserID         string
	RemoteAddr     string
	UserAgent      string
	AcceptLanguage string
}

// Identify derives the counter identity for strategy. ok is false only for BySession without a session.
func Identify(strategy Strategy, info RequestInfo) (identity string, ok bool) {
	switch strategy {
	case BySession:
		if info.UserID == "" {
			return "", false
		}
		return info.UserID, true
	default:
		return Fingerprint(info.RemoteAddr, info.UserAgent, info.AcceptLanguage), true
	}
}

// Fingerprint hashes connection metadata into a fixed length identity.
// Missing signals are replaced by a sentinel so anonymous callers are never left without an identity.
func Fingerprint(addr, userAgent, acceptLanguage string) string {
	h := sha256.New()
	for i, s := range []string{addr, userAgent, acceptLanguage} {
		if s == "" {
			s = unknownSignal
		}
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))[:fingerprintLength]
}
