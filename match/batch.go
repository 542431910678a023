// ABOUTME: Batch re-resolution over participant rows
// ABOUTME: Revisits unmatched and fuzzy links as new CRM data and mappings arrive
package match

import (
	"database/sql"
	"fmt"

	"github.com/harperreed/corral/db"
	"github.com/harperreed/corral/models"
)

// BatchResult summarizes one resolution pass.
type BatchResult struct {
	Examined int
	Resolved int
	Upgraded int
}

// ResolveBatch runs the resolver over pending participant rows. Only
// unmatched and fuzzy rows are revisited; manual and exact links are
// final. Resolution runs concurrently with ingestion — it reads the CRM
// mirror and writes only participant rows and resolved_* stamps.
func ResolveBatch(database *sql.DB, limit int) (*BatchResult, error) {
	contacts, err := db.AllContacts(database)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	mappings, err := db.ActiveMappings(database)
	if err != nil {
		return nil, fmt.Errorf("failed to load manual mappings: %w", err)
	}

	resolver := NewResolver(contacts, mappings)

	pending, err := db.UnresolvedParticipants(database, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}

	result := &BatchResult{}
	touched := map[[2]string]bool{}

	for i := range pending {
		p := &pending[i]
		result.Examined++

		match := resolver.Resolve(p.Kind, p.Normalized)
		if models.ConfidenceRank(match.Confidence) <= models.ConfidenceRank(p.Confidence) {
			continue
		}

		wasUnmatched := p.Confidence == models.ConfidenceUnmatched
		if err := db.ApplyResolution(database, p, match.ContactID, match.AccountID, match.Confidence); err != nil {
			return result, err
		}

		if wasUnmatched {
			result.Resolved++
		} else {
			result.Upgraded++
		}
		touched[[2]string{p.RecordType, p.RecordID}] = true
	}

	for key := range touched {
		if err := propagateToRecord(database, key[0], key[1]); err != nil {
			return result, err
		}
	}

	return result, nil
}

// propagateToRecord stamps a record's resolved_contact_id/account_id from
// its strongest-matched participant, preferring the from role, then to,
// then cc — the counterpart most likely to be "the" contact for the
// record.
func propagateToRecord(database *sql.DB, recordType, recordID string) error {
	participants, err := db.GetParticipants(database, recordType, recordID)
	if err != nil {
		return err
	}

	var best *models.Participant
	for i := range participants {
		p := &participants[i]
		if p.ContactID == nil {
			continue
		}
		if best == nil || strongerLink(p, best) {
			best = p
		}
	}

	if best == nil {
		return nil
	}
	return db.SetRecordResolution(database, recordType, recordID, best.ContactID, best.AccountID)
}

func strongerLink(a, b *models.Participant) bool {
	ra, rb := models.ConfidenceRank(a.Confidence), models.ConfidenceRank(b.Confidence)
	if ra != rb {
		return ra > rb
	}
	return rolePriority(a.Role) > rolePriority(b.Role)
}

func rolePriority(role string) int {
	switch role {
	case models.RoleFrom:
		return 3
	case models.RoleTo:
		return 2
	case models.RoleCc:
		return 1
	}
	return 0
}
