package check

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/optimode/emailguard/internal/parse"
	"github.com/optimode/emailguard/types"
)

// RFC 5321 size limits.
const (
	MaxEmailLength = 254
	MaxLocalLength = 64
	MaxLabelLength = 63
)

// SyntaxChecker validates addresses against RFC 5321/5322, accepting
// SMTPUTF8 local parts (RFC 6531) and IDNA2008 domains.
type SyntaxChecker struct{}

func NewSyntaxChecker() *SyntaxChecker {
	return &SyntaxChecker{}
}

// syntaxRules run in order on a parsed address; the first non-empty
// message rejects it.
var syntaxRules = []func(parse.Email) string{
	localLength,
	localAtoms,
	domainLabels,
	numericTLD,
}

func (c *SyntaxChecker) Check(_ context.Context, email parse.Email) types.SyntaxCheck {
	switch {
	case email.Raw == "":
		return types.SyntaxCheck{Message: "empty email address"}
	case len(email.Raw) > MaxEmailLength:
		return types.SyntaxCheck{Message: fmt.Sprintf("email address exceeds %d characters", MaxEmailLength)}
	case !email.Valid:
		return types.SyntaxCheck{Message: "invalid email syntax"}
	}

	for _, rule := range syntaxRules {
		if msg := rule(email); msg != "" {
			return types.SyntaxCheck{Message: msg}
		}
	}

	return types.SyntaxCheck{
		Valid:     true,
		Message:   "syntax ok",
		LocalPart: email.Local,
		Domain:    email.Domain,
	}
}

func localLength(e parse.Email) string {
	if len(e.Local) > MaxLocalLength {
		return fmt.Sprintf("local part exceeds %d characters", MaxLocalLength)
	}
	return ""
}

// localAtoms checks the dot-atom form. Quoted local parts allow any
// printable character and were already unescaped by the parser.
func localAtoms(e parse.Email) string {
	if e.Quoted {
		for _, r := range e.Local {
			if unicode.IsControl(r) {
				return "local part contains control character"
			}
		}
		return ""
	}

	atoms := strings.Split(e.Local, ".")
	for i, atom := range atoms {
		if atom == "" {
			if i == 0 || i == len(atoms)-1 {
				return "local part cannot start or end with a dot"
			}
			return "local part cannot contain consecutive dots"
		}
		for _, r := range atom {
			if isAtext(r) {
				continue
			}
			if unicode.IsControl(r) {
				return "local part contains control character"
			}
			return "local part contains invalid character: " + string(r)
		}
	}
	return ""
}

// isAtext reports RFC 5322 atext, extended with every printable non-ASCII
// rune for SMTPUTF8.
func isAtext(r rune) bool {
	switch {
	case r > unicode.MaxASCII:
		return !unicode.IsControl(r)
	case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
		return true
	}
	return strings.ContainsRune("!#$%&'*+/=?^_`{|}~-", r)
}

// domainLabels validates the Unicode form so messages show what the user
// typed. Address literals are accepted without further checks.
func domainLabels(e parse.Email) string {
	if e.IsLiteral() {
		return ""
	}
	labels := strings.Split(e.DomainUnicode, ".")
	if len(labels) < 2 {
		return "domain must have at least two labels"
	}
	for _, label := range labels {
		switch {
		case label == "":
			return "domain contains empty label (consecutive dots)"
		case len(label) > MaxLabelLength:
			return fmt.Sprintf("domain label exceeds %d characters", MaxLabelLength)
		case label[0] == '-' || label[len(label)-1] == '-':
			return "domain label cannot start or end with a hyphen"
		}
		if i := strings.IndexFunc(label, func(r rune) bool {
			return r != '-' && !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}); i >= 0 {
			return "domain label contains invalid character: " + string([]rune(label[i:])[0])
		}
	}
	return ""
}

func numericTLD(e parse.Email) string {
	if e.IsLiteral() {
		return ""
	}
	tld := e.DomainUnicode[strings.LastIndexByte(e.DomainUnicode, '.')+1:]
	if strings.IndexFunc(tld, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return "TLD cannot be all digits"
	}
	return ""
}
