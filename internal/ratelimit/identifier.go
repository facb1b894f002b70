package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// Identify returns the rate limit identity of a request: the hashed API key
// when one is sent, otherwise the client IP plus a fingerprint of headers
// that tell apart clients behind one NAT. Raw keys never leave this function.
func Identify(r *http.Request, trustXFF bool) string {
	if key := r.Header.Get(APIKeyHeader); strings.TrimSpace(key) != "" {
		return KeyIdentity(key)
	}
	fp := r.UserAgent() + "|" + r.Header.Get("Accept-Language")
	return "ip:" + ClientIP(r, trustXFF) + ":" + hash(fp)
}

// KeyIdentity is the identity Identify assigns to an API key. Use it to
// build Config.Trusted from raw keys.
func KeyIdentity(key string) string {
	return "key:" + hash(strings.TrimSpace(key))
}

// ClientIP returns the first X-Forwarded-For hop when trusted, else the
// RemoteAddr host.
func ClientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

func hash(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 16)
}
