// ABOUTME: Resolution CLI commands
// ABOUTME: Runs the matcher batch and manages manual identity mappings
package cli

import (
	"database/sql"
	"flag"
	"fmt"

	"github.com/harperreed/corral/db"
	"github.com/harperreed/corral/match"
	"github.com/harperreed/corral/models"
)

// ResolveCommand re-resolves unmatched and fuzzy participants
func ResolveCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	limit := fs.Int("limit", 0, "Max participants to examine (0 = all)")
	_ = fs.Parse(args)

	fmt.Println("Resolving participants...")

	result, err := match.ResolveBatch(database, *limit)
	if err != nil {
		return fmt.Errorf("resolution failed: %w", err)
	}

	fmt.Printf("  → Examined %d participants\n", result.Examined)
	fmt.Printf("  ✓ Resolved %d (%d upgraded)\n", result.Resolved, result.Upgraded)

	return nil
}

// MapCommand creates an active manual mapping and re-resolves
func MapCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("map", flag.ExitOnError)
	kind := fs.String("kind", models.KindEmail, "Identifier kind: email or phone")
	value := fs.String("value", "", "Raw identifier to map")
	contactID := fs.String("contact", "", "Contact ID the identifier belongs to")
	accountID := fs.String("account", "", "Account ID (optional, derived from contact if empty)")
	note := fs.String("note", "", "Why this mapping exists")
	_ = fs.Parse(args)

	if *value == "" || *contactID == "" {
		return fmt.Errorf("-value and -contact are required")
	}

	normalized, err := normalizeFor(*kind, *value)
	if err != nil {
		return err
	}

	contact, err := db.GetContact(database, *contactID)
	if err != nil {
		return fmt.Errorf("failed to look up contact: %w", err)
	}
	if contact == nil {
		return fmt.Errorf("contact %s not found", *contactID)
	}

	mapping := &models.ManualMapping{
		Kind:       *kind,
		Normalized: normalized,
		ContactID:  *contactID,
		AccountID:  *accountID,
		Note:       *note,
	}

	if err := db.CreateManualMapping(database, mapping); err != nil {
		return fmt.Errorf("failed to create mapping: %w", err)
	}

	fmt.Printf("✓ Mapped %s %q → contact %s\n", *kind, normalized, *contactID)

	// A new mapping can upgrade existing fuzzy/unmatched participants
	result, err := match.ResolveBatch(database, 0)
	if err != nil {
		return fmt.Errorf("re-resolution failed: %w", err)
	}
	fmt.Printf("  ✓ Re-resolved %d participants\n", result.Resolved)

	return nil
}

// UnmapCommand deactivates a manual mapping
func UnmapCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("unmap", flag.ExitOnError)
	kind := fs.String("kind", models.KindEmail, "Identifier kind: email or phone")
	value := fs.String("value", "", "Identifier to unmap")
	_ = fs.Parse(args)

	if *value == "" {
		return fmt.Errorf("-value is required")
	}

	normalized, err := normalizeFor(*kind, *value)
	if err != nil {
		return err
	}

	if err := db.DeactivateManualMapping(database, *kind, normalized); err != nil {
		return fmt.Errorf("failed to deactivate mapping: %w", err)
	}

	fmt.Printf("✓ Deactivated %s mapping for %q\n", *kind, normalized)
	fmt.Println("  Note: existing resolutions are kept; run 'corral resolve' after edits")

	return nil
}

// MappingsCommand lists active manual mappings
func MappingsCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("mappings", flag.ExitOnError)
	_ = fs.Parse(args)

	mappings, err := db.ActiveMappings(database)
	if err != nil {
		return fmt.Errorf("failed to load mappings: %w", err)
	}

	if len(mappings) == 0 {
		fmt.Println("No active manual mappings")
		return nil
	}

	fmt.Printf("Active manual mappings (%d):\n\n", len(mappings))
	for _, mapping := range mappings {
		fmt.Printf("  %-5s %-40s → contact %s", mapping.Kind, mapping.Normalized, mapping.ContactID)
		if mapping.AccountID != "" {
			fmt.Printf(" (account %s)", mapping.AccountID)
		}
		fmt.Println()
		if mapping.Note != "" {
			fmt.Printf("        %s\n", mapping.Note)
		}
	}

	return nil
}

func normalizeFor(kind, value string) (string, error) {
	switch kind {
	case models.KindEmail:
		normalized := match.NormalizeEmail(value)
		if normalized == "" {
			return "", fmt.Errorf("%q is not a valid email address", value)
		}
		return normalized, nil
	case models.KindPhone:
		phone := match.NormalizePhone(value)
		if phone.Key == "" {
			return "", fmt.Errorf("%q is not a valid phone number", value)
		}
		return phone.Key, nil
	default:
		return "", fmt.Errorf("unknown kind %q (want email or phone)", kind)
	}
}
