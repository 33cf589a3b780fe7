package chatgraph

import (
	"database/sql"
	"fmt"
)

// ResolvePersonByHandle returns the person owning a normalized handle, or
// nil if no person has it.
func (s *Store) ResolvePersonByHandle(normalizedHandle string) (*Person, error) {
	var id string
	err := s.db.QueryRow(`SELECT person_id FROM handles WHERE normalized = ?`, normalizedHandle).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving person by handle: %w", err)
	}
	return s.getPerson(id)
}

// ResolvePersonByName fuzzily resolves a person against display name or
// alias (§4.11's resolution order). Returns either a resolved Person, a
// list of suggestions, or neither if there was no match at all.
func (s *Store) ResolvePersonByName(query string) (person *Person, suggestions []string, err error) {
	candidates, err := s.personCandidates()
	if err != nil {
		return nil, nil, err
	}

	result := fuzzyResolve(query, candidates)
	if result.resolved {
		p, err := s.getPerson(result.id)
		return p, nil, err
	}
	return nil, result.suggestions, nil
}

func (s *Store) personCandidates() ([]candidate, error) {
	rows, err := s.db.Query(`SELECT id, display_name FROM persons`)
	if err != nil {
		return nil, fmt.Errorf("listing persons: %w", err)
	}
	defer rows.Close()

	var candidates []candidate
	for rows.Next() {
		var id, display string
		if err := rows.Scan(&id, &display); err != nil {
			return nil, fmt.Errorf("scanning person candidate: %w", err)
		}
		aliases, err := s.aliasesForPerson(id)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate{id: id, display: display, aliases: aliases})
	}
	return candidates, rows.Err()
}

func (s *Store) aliasesForPerson(personID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM aliases WHERE person_id = ?`, personID)
	if err != nil {
		return nil, fmt.Errorf("listing aliases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning alias: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *Store) getPerson(id string) (*Person, error) {
	var p Person
	err := s.db.QueryRow(`
		SELECT id, display_name, notes, is_owner, auto_created, created_at, updated_at
		FROM persons WHERE id = ?`, id,
	).Scan(&p.ID, &p.DisplayName, &p.Notes, &p.IsOwner, &p.AutoCreated, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("loading person %s: %w", id, err)
	}
	return &p, nil
}

// ResolveOrCreatePerson resolves a person by normalized handle, or creates
// one with auto_created=true if none exists. When displayName is
// non-empty, an alias row is inserted in the same transaction (§4.11).
func (s *Store) ResolveOrCreatePerson(originalHandle, normalizedHandle string, handleType HandleType, displayName string) (*Person, error) {
	existing, err := s.ResolvePersonByHandle(normalizedHandle)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning resolve-or-create person transaction: %w", err)
	}
	defer tx.Rollback()

	id := newID()
	name := displayName
	if name == "" {
		name = originalHandle
	}
	now := nowUnix()

	if _, err := tx.Exec(`
		INSERT INTO persons (id, display_name, notes, is_owner, auto_created, created_at, updated_at)
		VALUES (?, ?, '', 0, 1, ?, ?)`, id, name, now, now); err != nil {
		return nil, fmt.Errorf("inserting person: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO handles (person_id, original, normalized, type) VALUES (?, ?, ?, ?)`,
		id, originalHandle, normalizedHandle, string(handleType)); err != nil {
		return nil, fmt.Errorf("inserting handle: %w", err)
	}

	if displayName != "" {
		if _, err := tx.Exec(`INSERT INTO aliases (person_id, name, name_lower) VALUES (?, ?, LOWER(?))`,
			id, displayName, displayName); err != nil {
			return nil, fmt.Errorf("inserting alias: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing resolve-or-create person: %w", err)
	}

	return s.getPerson(id)
}

// AddRelationship inserts a directed relationship edge; unique on (from,
// to, type) is enforced by the schema.
func (s *Store) AddRelationship(fromPersonID, toPersonID string, relType RelationshipType) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO relationships (from_person_id, to_person_id, type) VALUES (?, ?, ?)`,
		fromPersonID, toPersonID, string(relType))
	if err != nil {
		return fmt.Errorf("adding relationship: %w", err)
	}
	return nil
}

// SetPersonAttribute upserts a (person, key) attribute.
func (s *Store) SetPersonAttribute(personID, key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO person_attributes (person_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(person_id, key) DO UPDATE SET value = excluded.value`, personID, key, value)
	if err != nil {
		return fmt.Errorf("setting person attribute: %w", err)
	}
	return nil
}

// DeletePerson removes a person; handles/aliases/attributes/chat-
// participant rows cascade via foreign keys (§3.7).
func (s *Store) DeletePerson(id string) error {
	if _, err := s.db.Exec(`DELETE FROM persons WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting person %s: %w", id, err)
	}
	return nil
}
