// Package platformdb reads the platform message store (C3) and its
// attachments (C4) directly from the read-only iMessage SQLite schema.
//
// Connection handling and scan discipline are grounded on the teacher's
// aftaylor2-smsDbViewer Store (database/sql over modernc.org/sqlite,
// COALESCE-guarded scans); the message/attachment join shape additionally
// borrows from the nac-relay reference bridge's query. Pagination departs
// from both sources deliberately: it orders strictly by message.ROWID
// ascending, never by message.date, per the ordering-correctness
// requirement (row ids and timestamps are imperfectly correlated, so a
// date-ordered cursor can skip rows).
package platformdb

import (
	"database/sql"
	"fmt"

	"github.com/localchat/chatindex/internal/appletime"
	"github.com/localchat/chatindex/internal/errkind"
	_ "modernc.org/sqlite"
)

// Store is a read-only handle onto the platform message database.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at path in read-only mode.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening platform database %s: %w: %w", path, errkind.ErrMessageStoreUnreadable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging platform database %s: %w: %w", path, errkind.ErrMessageStoreUnreadable, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// MaxMessageRowID returns the highest message.ROWID present, or 0 if the
// table is empty. Used by verification to bound a state store's cursor.
func (s *Store) MaxMessageRowID() (int64, error) {
	var max sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(ROWID) FROM message`).Scan(&max); err != nil {
		return 0, fmt.Errorf("querying max message rowid: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

// MessageStats summarizes the message table for the CLI's status and
// verify commands (§6).
type MessageStats struct {
	TotalMessages int64
	MinRowID      int64
	MaxRowID      int64
	OldestDate    int64 // Unix seconds, 0 if the store is empty
	NewestDate    int64
}

// Stats computes aggregate counts and bounds over the message table in a
// single query.
func (s *Store) Stats() (MessageStats, error) {
	var stats MessageStats
	var minRowID, maxRowID, oldestDate, newestDate sql.NullInt64
	err := s.db.QueryRow(`SELECT COUNT(*), MIN(ROWID), MAX(ROWID), MIN(date), MAX(date) FROM message`).
		Scan(&stats.TotalMessages, &minRowID, &maxRowID, &oldestDate, &newestDate)
	if err != nil {
		return MessageStats{}, fmt.Errorf("querying message stats: %w", err)
	}
	stats.MinRowID = minRowID.Int64
	stats.MaxRowID = maxRowID.Int64
	if oldestDate.Valid {
		stats.OldestDate = appletime.MacToUnix(oldestDate.Int64)
	}
	if newestDate.Valid {
		stats.NewestDate = appletime.MacToUnix(newestDate.Int64)
	}
	return stats, nil
}
