// Package contacts resolves raw message handles (phone numbers, emails) to
// display names via one or more macOS AddressBook SQLite databases (C2).
//
// Database access follows the teacher's aftaylor2-smsDbViewer open/query
// discipline (database/sql over modernc.org/sqlite, read-only), adapted to
// join ZABCDRECORD against ZABCDPHONENUMBER/ZABCDEMAILADDRESS instead of
// the message-store schema.
package contacts

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"
)

// Resolver maps normalized handles to display names, built from one or more
// AddressBook databases. First source to provide a value for a given
// normalized handle wins; later sources never override it.
type Resolver struct {
	phones map[string]string
	emails map[string]string
	logger *zap.Logger
}

// Load opens the AddressBook database at primaryPath plus any per-account
// database under primaryPath's sibling "Sources/*/AddressBook-v22.abcddb"
// subtree, and builds the lookup maps. Failure to open any individual
// source is silent (§4.2); a resolver with zero total hits across all
// sources logs a warning but is not an error.
func Load(primaryPath string, logger *zap.Logger) (*Resolver, error) {
	r := &Resolver{
		phones: make(map[string]string),
		emails: make(map[string]string),
		logger: logger,
	}

	paths := discoverSources(primaryPath)
	hits := 0
	for _, path := range paths {
		n, err := r.loadSource(path)
		if err != nil {
			continue
		}
		hits += n
	}

	if hits == 0 {
		logger.Warn("no contacts loaded from any address book source", zap.Int("sources_tried", len(paths)))
	}

	return r, nil
}

// discoverSources returns primaryPath followed by every per-account
// AddressBook-v22.abcddb found under its "Sources/*/" subtree.
func discoverSources(primaryPath string) []string {
	paths := []string{primaryPath}

	sourcesDir := filepath.Join(filepath.Dir(primaryPath), "Sources")
	entries, err := os.ReadDir(sourcesDir)
	if err != nil {
		return paths
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(sourcesDir, e.Name(), "AddressBook-v22.abcddb")
		if _, err := os.Stat(candidate); err == nil {
			paths = append(paths, candidate)
		}
	}

	return paths
}

const contactsQuery = `
SELECT
	COALESCE(r.ZFIRSTNAME, '') || ' ' || COALESCE(r.ZLASTNAME, '') AS display_name,
	p.ZFULLNUMBER AS phone,
	e.ZADDRESS AS email
FROM ZABCDRECORD r
LEFT JOIN ZABCDPHONENUMBER p ON p.ZOWNER = r.Z_PK
LEFT JOIN ZABCDEMAILADDRESS e ON e.ZOWNER = r.Z_PK
WHERE p.ZFULLNUMBER IS NOT NULL OR e.ZADDRESS IS NOT NULL
`

// loadSource reads one AddressBook database and merges new entries into the
// resolver's maps (first source wins). Returns the number of handle rows
// merged.
func (r *Resolver) loadSource(path string) (int, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return 0, fmt.Errorf("opening address book %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query(contactsQuery)
	if err != nil {
		return 0, fmt.Errorf("querying address book %s: %w", path, err)
	}
	defer rows.Close()

	hits := 0
	for rows.Next() {
		var name string
		var phone, email sql.NullString
		if err := rows.Scan(&name, &phone, &email); err != nil {
			return hits, fmt.Errorf("scanning address book row: %w", err)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		if phone.Valid {
			key := NormalizePhone(phone.String)
			if key != "" {
				if _, exists := r.phones[key]; !exists {
					r.phones[key] = name
					hits++
				}
			}
		}
		if email.Valid {
			key := NormalizeEmail(email.String)
			if key != "" {
				if _, exists := r.emails[key]; !exists {
					r.emails[key] = name
					hits++
				}
			}
		}
	}

	return hits, rows.Err()
}

// Resolve returns the display name for a raw handle (phone or email),
// falling back to the handle itself on a miss (§4.2).
func (r *Resolver) Resolve(handle string) string {
	if strings.Contains(handle, "@") {
		if name, ok := r.emails[NormalizeEmail(handle)]; ok {
			return name
		}
		return handle
	}

	if name, ok := r.phones[NormalizePhone(handle)]; ok {
		return name
	}
	return handle
}

// NormalizePhone strips non-digit characters; an 11-digit number starting
// with a leading 1 drops that leading digit; otherwise the last 10 digits
// are kept if at least 10 are present, else the full digit string (§4.2).
func NormalizePhone(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	if len(d) == 11 && strings.HasPrefix(d, "1") {
		return d[1:]
	}
	if len(d) >= 10 {
		return d[len(d)-10:]
	}
	return d
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
