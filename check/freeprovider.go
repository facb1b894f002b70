package check

import (
	"context"

	"github.com/optimode/emailguard/internal/parse"
	"github.com/optimode/emailguard/types"
)

// freeProviders maps consumer webmail domains to the provider name.
var freeProviders = map[string]string{
	"gmail.com":      "Gmail",
	"googlemail.com": "Gmail",

	"yahoo.com":      "Yahoo",
	"yahoo.co.uk":    "Yahoo",
	"yahoo.co.jp":    "Yahoo",
	"yahoo.fr":       "Yahoo",
	"yahoo.de":       "Yahoo",
	"yahoo.es":       "Yahoo",
	"yahoo.it":       "Yahoo",
	"yahoo.com.br":   "Yahoo",
	"yahoo.ca":       "Yahoo",
	"ymail.com":      "Yahoo",
	"rocketmail.com": "Yahoo",

	"hotmail.com":   "Outlook",
	"hotmail.co.uk": "Outlook",
	"hotmail.fr":    "Outlook",
	"hotmail.de":    "Outlook",
	"hotmail.it":    "Outlook",
	"outlook.com":   "Outlook",
	"outlook.fr":    "Outlook",
	"outlook.de":    "Outlook",
	"live.com":      "Outlook",
	"live.co.uk":    "Outlook",
	"live.fr":       "Outlook",
	"msn.com":       "Outlook",

	"icloud.com": "iCloud",
	"me.com":     "iCloud",
	"mac.com":    "iCloud",

	"aol.com":        "AOL",
	"mail.com":       "Mail.com",
	"proton.me":      "Proton",
	"protonmail.com": "Proton",
	"pm.me":          "Proton",
	"tutanota.com":   "Tutanota",
	"tuta.io":        "Tutanota",
	"zoho.com":       "Zoho",
	"zohomail.com":   "Zoho",
	"yandex.com":     "Yandex",
	"yandex.ru":      "Yandex",
	"mail.ru":        "Mail.ru",
	"gmx.com":        "GMX",
	"gmx.de":         "GMX",
	"gmx.net":        "GMX",
	"web.de":         "WEB.DE",
	"fastmail.com":   "Fastmail",
	"hey.com":        "HEY",
	"qq.com":         "QQ Mail",
	"163.com":        "NetEase",
	"126.com":        "NetEase",
	"naver.com":      "Naver",
	"freemail.hu":    "Freemail",
	"citromail.hu":   "Citromail",
	"libero.it":      "Libero",
	"orange.fr":      "Orange",
	"laposte.net":    "La Poste",
	"t-online.de":    "T-Online",
	"seznam.cz":      "Seznam",
	"wp.pl":          "WP",
	"o2.pl":          "O2",
	"interia.pl":     "Interia",
}

// FreeProviderChecker flags consumer webmail domains.
type FreeProviderChecker struct{}

func NewFreeProviderChecker() *FreeProviderChecker {
	return &FreeProviderChecker{}
}

func (c *FreeProviderChecker) Check(_ context.Context, email parse.Email) types.FreeProviderCheck {
	if !email.Valid {
		return types.FreeProviderCheck{Skipped: true}
	}
	if name, ok := freeProviders[email.Domain]; ok {
		return types.FreeProviderCheck{IsFree: true, Provider: &name}
	}
	return types.FreeProviderCheck{}
}

// IsFreeProvider reports whether domain belongs to a known webmail provider.
func IsFreeProvider(domain string) bool {
	_, ok := freeProviders[domain]
	return ok
}
