// Package types contains the shared check result types for emailguard.
// This package does not import anything from other emailguard packages
// to avoid circular imports.
package types

// SyntaxCheck is the outcome of RFC 5321/5322 syntax validation.
type SyntaxCheck struct {
	Valid     bool   `json:"valid"`
	Message   string `json:"message,omitempty"`
	LocalPart string `json:"localPart,omitempty"`
	Domain    string `json:"domain,omitempty"`
}

// DomainCheck is the outcome of the domain format and existence check.
type DomainCheck struct {
	Valid   bool   `json:"valid"`
	Exists  bool   `json:"exists"`
	Message string `json:"message,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// MXCheck lists the domain's mail exchangers, best preference first.
// Unknown is set when no DNS provider could answer, as opposed to a
// definitive "no MX records".
type MXCheck struct {
	Valid    bool     `json:"valid"`
	Records  []string `json:"records"`
	Priority []int    `json:"priority,omitempty"`
	Message  string   `json:"message,omitempty"`
	Unknown  bool     `json:"unknown,omitempty"`
	Skipped  bool     `json:"skipped,omitempty"`
}

// DisposableCheck flags throwaway mailbox providers.
type DisposableCheck struct {
	IsDisposable bool   `json:"isDisposable"`
	Message      string `json:"message,omitempty"`
	Skipped      bool   `json:"skipped,omitempty"`
}

// RoleBasedCheck flags shared mailboxes such as admin@ or support@.
type RoleBasedCheck struct {
	IsRoleBased bool    `json:"isRoleBased"`
	Role        *string `json:"role"`
	Skipped     bool    `json:"skipped,omitempty"`
}

// FreeProviderCheck flags consumer webmail domains.
type FreeProviderCheck struct {
	IsFree   bool    `json:"isFreeProvider"`
	Provider *string `json:"provider"`
	Skipped  bool    `json:"skipped,omitempty"`
}

// TypoCheck carries at most one suggested correction of the address.
type TypoCheck struct {
	HasTypo    bool    `json:"hasTypo"`
	Suggestion *string `json:"suggestion"`
	Skipped    bool    `json:"skipped,omitempty"`
}

// BlacklistCheck lists the DNSBL zones that returned a listing.
type BlacklistCheck struct {
	IsBlacklisted bool     `json:"isBlacklisted"`
	Lists         []string `json:"lists"`
	Message       string   `json:"message,omitempty"`
	Skipped       bool     `json:"skipped,omitempty"`
}

// CatchAllCheck flags domains that accept mail for any local part.
type CatchAllCheck struct {
	IsCatchAll bool   `json:"isCatchAll"`
	Reason     string `json:"reason,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
}

// SMTPCheck is the outcome of the optional mailbox probe.
// Exists is nil when the probe could not decide.
type SMTPCheck struct {
	Checked    bool   `json:"checked"`
	Exists     *bool  `json:"exists"`
	CatchAll   bool   `json:"catchAll"`
	Greylisted bool   `json:"greylisted"`
	MXHost     string `json:"mxHost,omitempty"`
	SMTPCode   int    `json:"smtpCode,omitempty"`
	Message    string `json:"message"`
}

// SPFResult describes the domain's SPF TXT record.
type SPFResult struct {
	Found  bool   `json:"found"`
	Valid  bool   `json:"valid"`
	Record string `json:"record,omitempty"`
	// Policy is the qualifier of the terminal "all" mechanism: "fail",
	// "softfail", "neutral" or "pass". "redirect" when the record delegates.
	Policy string `json:"policy,omitempty"`
}

// DMARCResult describes the _dmarc TXT record.
type DMARCResult struct {
	Found  bool   `json:"found"`
	Valid  bool   `json:"valid"`
	Record string `json:"record,omitempty"`
	// Policy is the p= tag: "none", "quarantine" or "reject".
	Policy string `json:"policy,omitempty"`
}

// DKIMResult lists the common selectors that publish a DKIM key.
type DKIMResult struct {
	Found     bool     `json:"found"`
	Selectors []string `json:"selectors"`
}

// AuthenticationCheck reports the sender authentication records the
// domain publishes. Score is 0..100.
type AuthenticationCheck struct {
	Checked bool        `json:"checked"`
	Score   int         `json:"score"`
	SPF     SPFResult   `json:"spf"`
	DMARC   DMARCResult `json:"dmarc"`
	DKIM    DKIMResult  `json:"dkim"`
	Message string      `json:"message,omitempty"`
}

// ReputationCheck summarises the domain's standing from blacklist,
// disposable and authentication signals. Risk is "low", "medium" or "high".
type ReputationCheck struct {
	Checked bool     `json:"checked"`
	Score   int      `json:"score"`
	Risk    string   `json:"risk"`
	Reasons []string `json:"reasons"`
}

// Checks holds one result per check. SMTP, Authentication and Reputation
// are nil unless requested.
type Checks struct {
	Syntax         SyntaxCheck          `json:"syntax"`
	Domain         DomainCheck          `json:"domain"`
	MX             MXCheck              `json:"mx"`
	Disposable     DisposableCheck      `json:"disposable"`
	RoleBased      RoleBasedCheck       `json:"roleBased"`
	FreeProvider   FreeProviderCheck    `json:"freeProvider"`
	Typo           TypoCheck            `json:"typo"`
	Blacklisted    BlacklistCheck       `json:"blacklisted"`
	CatchAll       CatchAllCheck        `json:"catchAll"`
	SMTP           *SMTPCheck           `json:"smtp,omitempty"`
	Authentication *AuthenticationCheck `json:"authentication,omitempty"`
	Reputation     *ReputationCheck     `json:"reputation,omitempty"`
}
