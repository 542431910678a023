// ABOUTME: Entity resolver mapping normalized addresses to CRM contacts
// ABOUTME: Cascades manual, exact, and fuzzy matchers; ambiguity resolves to unmatched
package match

import (
	"sort"
	"strings"

	"github.com/harperreed/corral/models"
)

// Match is a resolver decision for one normalized address.
type Match struct {
	ContactID  *string
	AccountID  *string
	Confidence string
}

// Unmatched is the decision when no tier produces a hit.
func Unmatched() Match {
	return Match{Confidence: models.ConfidenceUnmatched}
}

type matcherFunc func(kind, normalized string) *Match

// Resolver holds in-memory indexes over mirrored contacts and manual
// mappings. Build once per resolution batch; matching is pure lookups.
type Resolver struct {
	byEmail      map[string][]models.Contact
	byPhoneKey   map[string][]models.Contact
	byDomain     map[string][]models.Contact
	byPhoneLoose map[string][]models.Contact
	manual       map[string]models.ManualMapping
	contactByID  map[string]models.Contact

	matchers []matcherFunc
}

// NewResolver builds match indexes from the warehouse's contact mirror and
// active manual mappings.
func NewResolver(contacts []models.Contact, mappings []models.ManualMapping) *Resolver {
	r := &Resolver{
		byEmail:      make(map[string][]models.Contact),
		byPhoneKey:   make(map[string][]models.Contact),
		byDomain:     make(map[string][]models.Contact),
		byPhoneLoose: make(map[string][]models.Contact),
		manual:       make(map[string]models.ManualMapping),
		contactByID:  make(map[string]models.Contact),
	}

	for _, contact := range contacts {
		r.contactByID[contact.ID] = contact

		if email := NormalizeEmail(contact.Email); email != "" {
			r.byEmail[email] = append(r.byEmail[email], contact)
			if domain := EmailDomain(email); domain != "" && !isFreemailDomain(domain) {
				r.byDomain[domain] = append(r.byDomain[domain], contact)
			}
		}

		if phone := NormalizePhone(contact.Phone); phone.Key != "" {
			r.byPhoneKey[phone.Key] = append(r.byPhoneKey[phone.Key], contact)
			r.byPhoneLoose[PhoneLooseKey(phone.Key)] = append(r.byPhoneLoose[PhoneLooseKey(phone.Key)], contact)
		}
	}

	for _, m := range mappings {
		if m.IsActive {
			r.manual[m.Kind+"|"+m.Normalized] = m
		}
	}

	// Matching order is the precedence order; first hit wins.
	r.matchers = []matcherFunc{
		r.matchManual,
		r.matchExact,
		r.matchFuzzy,
	}

	return r
}

// Resolve maps one normalized address to a contact/account plus a
// confidence tier. kind is models.KindEmail or models.KindPhone.
func (r *Resolver) Resolve(kind, normalized string) Match {
	if normalized == "" {
		return Unmatched()
	}

	for _, matcher := range r.matchers {
		if match := matcher(kind, normalized); match != nil {
			return *match
		}
	}

	return Unmatched()
}

func (r *Resolver) matchManual(kind, normalized string) *Match {
	mapping, ok := r.manual[kind+"|"+normalized]
	if !ok {
		return nil
	}

	match := &Match{
		ContactID:  strPtr(mapping.ContactID),
		Confidence: models.ConfidenceManual,
	}
	if mapping.AccountID != "" {
		match.AccountID = strPtr(mapping.AccountID)
	} else if contact, ok := r.contactByID[mapping.ContactID]; ok && contact.AccountID != "" {
		match.AccountID = strPtr(contact.AccountID)
	}
	return match
}

func (r *Resolver) matchExact(kind, normalized string) *Match {
	var candidates []models.Contact
	switch kind {
	case models.KindEmail:
		candidates = r.byEmail[normalized]
	case models.KindPhone:
		candidates = r.byPhoneKey[normalized]
	}
	if len(candidates) == 0 {
		return nil
	}

	contact := pickCanonical(candidates)
	return r.contactMatch(contact, models.ConfidenceExact)
}

func (r *Resolver) matchFuzzy(kind, normalized string) *Match {
	var candidates []models.Contact
	switch kind {
	case models.KindEmail:
		domain := EmailDomain(normalized)
		if domain == "" || isFreemailDomain(domain) {
			return nil
		}
		candidates = r.byDomain[domain]
	case models.KindPhone:
		candidates = r.byPhoneLoose[PhoneLooseKey(normalized)]
	}

	// Fuzzy only matches a unique candidate. Two equally-plausible
	// contacts means unmatched, never an arbitrary pick.
	unique := dedupeByID(candidates)
	if len(unique) != 1 {
		return nil
	}

	return r.contactMatch(unique[0], models.ConfidenceFuzzy)
}

func (r *Resolver) contactMatch(contact models.Contact, confidence string) *Match {
	match := &Match{
		ContactID:  strPtr(contact.ID),
		Confidence: confidence,
	}
	// Account is derived transitively from the contact, never matched on
	// its own.
	if contact.AccountID != "" {
		match.AccountID = strPtr(contact.AccountID)
	}
	return match
}

// pickCanonical deterministically breaks ties between duplicate CRM
// contacts sharing a normalized address: most recently modified wins,
// then lexically smallest ID, so re-runs are stable.
func pickCanonical(candidates []models.Contact) models.Contact {
	sorted := make([]models.Contact, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].LastModified.Equal(sorted[j].LastModified) {
			return sorted[i].LastModified.After(sorted[j].LastModified)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[0]
}

func dedupeByID(contacts []models.Contact) []models.Contact {
	seen := make(map[string]bool, len(contacts))
	var unique []models.Contact
	for _, contact := range contacts {
		if seen[contact.ID] {
			continue
		}
		seen[contact.ID] = true
		unique = append(unique, contact)
	}
	return unique
}

// isFreemailDomain reports whether a domain belongs to a consumer email
// provider, which makes domain-level fuzzy matching meaningless.
func isFreemailDomain(domain string) bool {
	freemailDomains := []string{
		"gmail.com",
		"googlemail.com",
		"yahoo.com",
		"hotmail.com",
		"outlook.com",
		"live.com",
		"msn.com",
		"icloud.com",
		"me.com",
		"mac.com",
		"aol.com",
		"protonmail.com",
		"pm.me",
	}

	lower := strings.ToLower(domain)
	for _, d := range freemailDomains {
		if lower == d {
			return true
		}
	}
	return false
}

func strPtr(s string) *string {
	return &s
}
