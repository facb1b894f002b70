package parse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/emailguard/internal/parse"
)

func TestNewEmail(t *testing.T) {
	tests := []struct {
		raw           string
		local         string
		domain        string
		domainUnicode string
		quoted        bool
	}{
		{raw: "user@example.com", local: "user", domain: "example.com", domainUnicode: "example.com"},
		{raw: "  user@example.com\t", local: "user", domain: "example.com", domainUnicode: "example.com"},
		{raw: "Jane.Doe@EXAMPLE.COM", local: "Jane.Doe", domain: "example.com", domainUnicode: "example.com"},
		{raw: "user@münchen.de", local: "user", domain: "xn--mnchen-3ya.de", domainUnicode: "münchen.de"},
		{raw: "user@xn--mnchen-3ya.de", local: "user", domain: "xn--mnchen-3ya.de", domainUnicode: "münchen.de"},
		{raw: "user@例え.jp", local: "user", domain: "xn--r8jz45g.jp", domainUnicode: "例え.jp"},
		{raw: "user@почта.рф", local: "user", domain: "xn--80a1acny.xn--p1ai", domainUnicode: "почта.рф"},
		{raw: "用户@example.com", local: "用户", domain: "example.com", domainUnicode: "example.com"},
		{raw: "用户@münchen.de", local: "用户", domain: "xn--mnchen-3ya.de", domainUnicode: "münchen.de"},
		{raw: `"user name"@example.com`, local: "user name", domain: "example.com", domainUnicode: "example.com", quoted: true},
		{raw: `"a@b"@example.com`, local: "a@b", domain: "example.com", domainUnicode: "example.com", quoted: true},
		{raw: `"say \"hi\""@example.com`, local: `say "hi"`, domain: "example.com", domainUnicode: "example.com", quoted: true},
		{raw: "user@[192.0.2.1]", local: "user", domain: "[192.0.2.1]", domainUnicode: "[192.0.2.1]"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			e := parse.NewEmail(tt.raw)
			assert.True(t, e.Valid)
			assert.Equal(t, tt.local, e.Local)
			assert.Equal(t, tt.domain, e.Domain)
			assert.Equal(t, tt.domainUnicode, e.DomainUnicode)
			assert.Equal(t, tt.quoted, e.Quoted)
		})
	}
}

func TestNewEmail_Invalid(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"noatsign",
		"@nodomain",
		"nolocal@",
		`"unterminated\"@example.com`,
		`"in"side"@example.com`,
	} {
		e := parse.NewEmail(raw)
		assert.False(t, e.Valid, "expected invalid for %q", raw)
	}
}

func TestNewEmail_KeepsRaw(t *testing.T) {
	e := parse.NewEmail("  not an email ")
	assert.False(t, e.Valid)
	assert.Equal(t, "not an email", e.Raw)
}

func TestEmail_Address(t *testing.T) {
	assert.Equal(t, "user@xn--mnchen-3ya.de", parse.NewEmail("user@münchen.de").Address())
	assert.Equal(t, `"say \"hi\""@example.com`, parse.NewEmail(`"say \"hi\""@example.com`).Address())
}

func TestEmail_LocalLower(t *testing.T) {
	assert.Equal(t, "jane", parse.NewEmail("Jane+news@example.com").LocalLower())
	assert.Equal(t, "+x", parse.NewEmail("+x@example.com").LocalLower())
}

func TestEmail_IsLiteral(t *testing.T) {
	assert.True(t, parse.NewEmail("user@[192.0.2.1]").IsLiteral())
	assert.False(t, parse.NewEmail("user@example.com").IsLiteral())
}
