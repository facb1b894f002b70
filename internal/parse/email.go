// Package parse splits raw input into the address parts the checks work on.
// Domains are carried both as ASCII (punycode, for DNS and SMTP) and as
// Unicode (for display and typo matching).
package parse

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// Email is a parsed address. Raw is always set. Valid only means the input
// has a non-empty local part, an '@' and a domain that survives IDNA
// conversion; character-level rules belong to the syntax check.
type Email struct {
	Raw   string
	Local string
	// Quoted is set when the local part was written as a quoted string.
	// Local then holds the unquoted content.
	Quoted        bool
	Domain        string
	DomainUnicode string
	Valid         bool
}

// LocalLower returns the local part lower-cased with any "+tag" suffix removed.
func (e Email) LocalLower() string {
	local := strings.ToLower(e.Local)
	if i := strings.IndexByte(local, '+'); i > 0 {
		local = local[:i]
	}
	return local
}

// Address is the form sent on the wire: ASCII domain, local part
// re-quoted when it was quoted on input.
func (e Email) Address() string {
	if !e.Quoted {
		return e.Local + "@" + e.Domain
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(e.Local) + `"@` + e.Domain
}

// IsLiteral reports whether the domain is an address literal like [192.0.2.1].
func (e Email) IsLiteral() bool {
	return strings.HasPrefix(e.Domain, "[") && strings.HasSuffix(e.Domain, "]")
}

// NewEmail parses raw. The split is on the last '@' so quoted local parts
// may contain one.
func NewEmail(raw string) Email {
	raw = strings.TrimSpace(raw)
	e := Email{Raw: raw}

	at := strings.LastIndexByte(raw, '@')
	if at <= 0 || at == len(raw)-1 {
		return e
	}
	local, domain := raw[:at], raw[at+1:]

	if len(local) >= 2 && local[0] == '"' && local[len(local)-1] == '"' {
		unq, ok := unquote(local[1 : len(local)-1])
		if !ok {
			return e
		}
		local, e.Quoted = unq, true
	}
	if !utf8.ValidString(local) {
		return e
	}

	ascii, display, ok := domainForms(domain)
	if !ok {
		return e
	}

	e.Local, e.Domain, e.DomainUnicode, e.Valid = local, ascii, display, true
	return e
}

// unquote resolves quoted-pair escapes. A lone trailing backslash or an
// unescaped quote makes the string invalid.
func unquote(s string) (string, bool) {
	if !strings.ContainsAny(s, `\"`) {
		return s, true
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
			if i == len(s) {
				return "", false
			}
		case '"':
			return "", false
		}
		b.WriteByte(s[i])
	}
	return b.String(), true
}

// domainForms returns the ASCII and Unicode spellings of domain. ASCII
// input may already be punycode and is decoded for display; non-ASCII
// input must pass IDNA2008 lookup rules.
func domainForms(domain string) (ascii, display string, ok bool) {
	domain = strings.ToLower(domain)
	if strings.HasPrefix(domain, "[") {
		return domain, domain, true
	}

	if isASCII(domain) {
		display, err := idna.Display.ToUnicode(domain)
		if err != nil {
			display = domain
		}
		return domain, display, true
	}

	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", "", false
	}
	return ascii, domain, true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
