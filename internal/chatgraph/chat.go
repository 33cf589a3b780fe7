package chatgraph

import (
	"database/sql"
	"fmt"
)

// ResolveChatByPlatformID returns the chat for a platform-native chat
// identifier via the in-memory hot-path cache, falling back to the
// database on a cache miss (which also repopulates the cache).
func (s *Store) ResolveChatByPlatformID(platformChatID string) (*Chat, error) {
	s.mu.RLock()
	id, ok := s.chatIDCache[platformChatID]
	s.mu.RUnlock()
	if ok {
		return s.getChat(id)
	}

	var chatID string
	err := s.db.QueryRow(`SELECT id FROM chats WHERE platform_chat_id = ?`, platformChatID).Scan(&chatID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving chat by platform id: %w", err)
	}

	s.mu.Lock()
	s.chatIDCache[platformChatID] = chatID
	s.mu.Unlock()

	return s.getChat(chatID)
}

// ResolveChatByName fuzzily resolves a chat against display name or alias
// (§4.11's resolution order).
func (s *Store) ResolveChatByName(query string) (chat *Chat, suggestions []string, err error) {
	candidates, err := s.chatCandidates()
	if err != nil {
		return nil, nil, err
	}

	result := fuzzyResolve(query, candidates)
	if result.resolved {
		c, err := s.getChat(result.id)
		return c, nil, err
	}
	return nil, result.suggestions, nil
}

func (s *Store) chatCandidates() ([]candidate, error) {
	rows, err := s.db.Query(`SELECT id, display_name FROM chats`)
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	defer rows.Close()

	var candidates []candidate
	for rows.Next() {
		var id, display string
		if err := rows.Scan(&id, &display); err != nil {
			return nil, fmt.Errorf("scanning chat candidate: %w", err)
		}
		aliases, err := s.aliasesForChat(id)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate{id: id, display: display, aliases: aliases})
	}
	return candidates, rows.Err()
}

func (s *Store) aliasesForChat(chatID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM chat_aliases WHERE chat_id = ?`, chatID)
	if err != nil {
		return nil, fmt.Errorf("listing chat aliases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning chat alias: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *Store) getChat(id string) (*Chat, error) {
	var c Chat
	var isGroup, autoCreated bool
	err := s.db.QueryRow(`
		SELECT id, platform_chat_id, display_name, is_group_chat, notes, auto_created
		FROM chats WHERE id = ?`, id,
	).Scan(&c.ID, &c.PlatformChatID, &c.DisplayName, &isGroup, &c.Notes, &autoCreated)
	if err != nil {
		return nil, fmt.Errorf("loading chat %s: %w", id, err)
	}
	c.IsGroupChat = isGroup
	c.AutoCreated = autoCreated
	return &c, nil
}

// ResolveOrCreateChat resolves a chat by platform chat id, or creates one
// with auto_created=true if none exists. When displayName is non-empty, an
// alias row is inserted in the same transaction (§4.11). The hot-path
// cache is updated on create.
func (s *Store) ResolveOrCreateChat(platformChatID, displayName string, isGroupChat bool) (*Chat, error) {
	existing, err := s.ResolveChatByPlatformID(platformChatID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning resolve-or-create chat transaction: %w", err)
	}
	defer tx.Rollback()

	id := newID()
	if _, err := tx.Exec(`
		INSERT INTO chats (id, platform_chat_id, display_name, is_group_chat, notes, auto_created)
		VALUES (?, ?, ?, ?, '', 1)`, id, platformChatID, displayName, isGroupChat); err != nil {
		return nil, fmt.Errorf("inserting chat: %w", err)
	}

	if displayName != "" {
		if _, err := tx.Exec(`INSERT INTO chat_aliases (chat_id, name, name_lower) VALUES (?, ?, LOWER(?))`,
			id, displayName, displayName); err != nil {
			return nil, fmt.Errorf("inserting chat alias: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing resolve-or-create chat: %w", err)
	}

	s.mu.Lock()
	s.chatIDCache[platformChatID] = id
	s.mu.Unlock()

	return s.getChat(id)
}

// EnsureParticipants idempotently links a chat to a set of persons.
func (s *Store) EnsureParticipants(chatID string, personIDs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning ensure-participants transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO chat_participants (chat_id, person_id, joined_at, left_at)
		VALUES (?, ?, ?, NULL)`)
	if err != nil {
		return fmt.Errorf("preparing ensure-participants statement: %w", err)
	}
	defer stmt.Close()

	now := nowUnix()
	for _, personID := range personIDs {
		if _, err := stmt.Exec(chatID, personID, now); err != nil {
			return fmt.Errorf("ensuring participant %s: %w", personID, err)
		}
	}

	return tx.Commit()
}

// DeleteChat removes a chat; aliases and participants cascade via foreign
// keys (§3.7). The hot-path cache entry is also removed.
func (s *Store) DeleteChat(id, platformChatID string) error {
	if _, err := s.db.Exec(`DELETE FROM chats WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting chat %s: %w", id, err)
	}
	s.mu.Lock()
	delete(s.chatIDCache, platformChatID)
	s.mu.Unlock()
	return nil
}
