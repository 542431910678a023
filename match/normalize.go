// ABOUTME: Pure normalization functions for email addresses and phone numbers
// ABOUTME: Canonicalizes raw contact strings into comparable keys, sentinel on invalid input
package match

import (
	"strings"
)

// NormalizeEmail lowercases and trims an email address. Returns "" when the
// input isn't a plausible address (exactly one @, dot somewhere in the
// domain), so callers can skip-and-count instead of aborting a batch.
func NormalizeEmail(raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return ""
	}

	at := strings.Count(email, "@")
	if at != 1 {
		return ""
	}

	parts := strings.SplitN(email, "@", 2)
	local, domain := parts[0], parts[1]
	if local == "" || domain == "" {
		return ""
	}
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return ""
	}

	return email
}

// EmailDomain extracts the domain from an already-normalized email.
func EmailDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

// Phone is a canonicalized phone number. Key is the comparison form (last
// 10 significant digits, tolerant of country code and formatting); E164 is
// the display form. The zero value means the input wasn't a phone number.
type Phone struct {
	Key  string
	E164 string
}

const (
	minPhoneDigits = 7
	phoneKeyDigits = 10
)

// NormalizePhone strips formatting from a raw phone string. Inputs with
// fewer than 7 digits yield the zero Phone rather than an error.
func NormalizePhone(raw string) Phone {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	all := digits.String()
	if len(all) < minPhoneDigits {
		return Phone{}
	}

	key := all
	if len(key) > phoneKeyDigits {
		key = key[len(key)-phoneKeyDigits:]
	}

	return Phone{
		Key:  key,
		E164: e164(all),
	}
}

// e164 best-effort display form. Ten digits are assumed NANP; longer
// strings are assumed to already carry a country code.
func e164(digits string) string {
	if len(digits) == phoneKeyDigits {
		return "+1" + digits
	}
	return "+" + digits
}

// PhoneLooseKey is the looser comparison key used by fuzzy matching: the
// last 7 digits, the local subscriber portion in most plans.
func PhoneLooseKey(key string) string {
	if len(key) <= 7 {
		return key
	}
	return key[len(key)-7:]
}
