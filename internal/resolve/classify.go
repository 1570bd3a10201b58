package resolve

import (
	"net/mail"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// personalDomains hosts individual consumer mailboxes. A company is never
// keyed by one of these.
var personalDomains = map[string]struct{}{
	"gmail.com":      {},
	"yahoo.com":      {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"icloud.com":     {},
	"me.com":         {},
	"aol.com":        {},
	"live.com":       {},
	"msn.com":        {},
	"protonmail.com": {},
	"yandex.com":     {},
	"mail.com":       {},
}

// ValidateEmail checks that email is present and syntactically valid.
// Returns ErrNoEmail or ErrInvalidEmail.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrNoEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return ErrInvalidEmail
	}
	if !strings.Contains(addr.Address, "@") {
		return ErrInvalidEmail
	}
	return nil
}

// ClassifyDomain extracts the corporate domain from an email address.
// Returns the lowercase, trimmed substring after "@", or "" if the email is
// empty, malformed, or the domain is a known personal-mailbox domain.
func ClassifyDomain(email string) string {
	if ValidateEmail(email) != nil {
		return ""
	}
	addr, _ := mail.ParseAddress(strings.TrimSpace(email))
	at := strings.LastIndex(addr.Address, "@")
	domain := strings.ToLower(strings.TrimSpace(addr.Address[at+1:]))
	if domain == "" {
		return ""
	}
	if _, personal := personalDomains[domain]; personal {
		return ""
	}
	return domain
}

// IsPersonalDomain reports whether domain is on the personal-mailbox list.
func IsPersonalDomain(domain string) bool {
	_, ok := personalDomains[strings.ToLower(strings.TrimSpace(domain))]
	return ok
}

// SplitDisplayName splits a free-text display name at the first whitespace
// boundary into first and last name.
func SplitDisplayName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	if i := strings.IndexFunc(name, func(r rune) bool { return r == ' ' || r == '\t' }); i >= 0 {
		return name[:i], strings.TrimSpace(name[i+1:])
	}
	return name, ""
}

var titleCaser = cases.Title(language.English)

// DeriveCompanyName produces a display name from a domain's first label,
// e.g. "acme.com" -> "Acme". Used when a deal supplies no company text.
func DeriveCompanyName(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	label, _, _ := strings.Cut(domain, ".")
	if label == "" {
		return ""
	}
	return titleCaser.String(label)
}
