package chatgraph

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS persons (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	is_owner INTEGER NOT NULL DEFAULT 0,
	auto_created INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS handles (
	person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
	original TEXT NOT NULL,
	normalized TEXT NOT NULL,
	type TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_handles_normalized ON handles(normalized);

CREATE TABLE IF NOT EXISTS aliases (
	person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	name_lower TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_aliases_name_lower ON aliases(name_lower);

CREATE TABLE IF NOT EXISTS relationships (
	from_person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
	to_person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	UNIQUE(from_person_id, to_person_id, type)
);

CREATE TABLE IF NOT EXISTS person_attributes (
	person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	UNIQUE(person_id, key)
);

CREATE TABLE IF NOT EXISTS chats (
	id TEXT PRIMARY KEY,
	platform_chat_id TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	is_group_chat INTEGER NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT '',
	auto_created INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS chat_aliases (
	chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	name_lower TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_aliases_name_lower ON chat_aliases(name_lower);

CREATE TABLE IF NOT EXISTS chat_participants (
	chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
	joined_at INTEGER,
	left_at INTEGER,
	UNIQUE(chat_id, person_id)
);
`

// Store owns a private SQLite handle for the chat graph (§5: "C10 and C11
// each own a private SQLite handle; no sharing across processes").
type Store struct {
	db *sql.DB

	mu          sync.RWMutex
	chatIDCache map[string]string // platform chat id -> internal chat id
}

// Open opens (creating if necessary) the chat-graph database at path,
// ensures its schema exists, and populates the hot-path chat-id cache.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening chat graph store %s: %w", path, err)
	}
	// SQLite enforces foreign keys per-connection; pin the pool to a
	// single connection so PRAGMA foreign_keys survives across queries
	// and the ON DELETE CASCADE rules in the schema actually fire.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating chat graph schema: %w", err)
	}

	s := &Store{db: db, chatIDCache: make(map[string]string)}
	if err := s.loadChatIDCache(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) loadChatIDCache() error {
	rows, err := s.db.Query(`SELECT platform_chat_id, id FROM chats`)
	if err != nil {
		return fmt.Errorf("loading chat id cache: %w", err)
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var platformID, internalID string
		if err := rows.Scan(&platformID, &internalID); err != nil {
			return fmt.Errorf("scanning chat id cache row: %w", err)
		}
		s.chatIDCache[platformID] = internalID
	}
	return rows.Err()
}

func newID() string {
	return uuid.New().String()
}

func nowUnix() int64 {
	return time.Now().Unix()
}
