package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/emailguard/internal/ratelimit"
)

func TestIdentify(t *testing.T) {
	newReq := func(remote string, headers map[string]string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remote
		for k, v := range headers {
			r.Header.Set(k, v)
		}
		return r
	}

	withKey := ratelimit.Identify(newReq("198.51.100.1:1", map[string]string{"X-API-Key": "secret"}), false)
	assert.True(t, strings.HasPrefix(withKey, "key:"))
	assert.NotContains(t, withKey, "secret")

	assert.Equal(t, ratelimit.KeyIdentity("secret"), withKey)
	assert.Equal(t, withKey, ratelimit.KeyIdentity(" secret "))

	sameKeyOtherIP := ratelimit.Identify(newReq("203.0.113.9:2", map[string]string{"X-API-Key": "secret"}), false)
	assert.Equal(t, withKey, sameKeyOtherIP)

	a := ratelimit.Identify(newReq("198.51.100.1:1", map[string]string{"User-Agent": "curl/8"}), false)
	b := ratelimit.Identify(newReq("198.51.100.1:9", map[string]string{"User-Agent": "Mozilla/5.0"}), false)
	assert.True(t, strings.HasPrefix(a, "ip:198.51.100.1:"))
	assert.NotEqual(t, a, b, "different fingerprints behind one IP")

	again := ratelimit.Identify(newReq("198.51.100.1:5", map[string]string{"User-Agent": "curl/8"}), false)
	assert.Equal(t, a, again, "source port is not part of the identity")
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:555"
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.2")

	assert.Equal(t, "10.0.0.1", ratelimit.ClientIP(r, false))
	assert.Equal(t, "203.0.113.5", ratelimit.ClientIP(r, true))

	r.RemoteAddr = ""
	r.Header.Del("X-Forwarded-For")
	assert.Equal(t, "unknown", ratelimit.ClientIP(r, true))
}
