// Package indexstate implements the durable cursor and chunk-hash set that
// makes indexing incremental and resumable (C10).
//
// There is no teacher equivalent of a single-row state table with an
// atomic companion set table, so the schema/migration shape is built
// directly from spec §6's "Persisted state layout" plus the general
// database/sql + explicit Tx transaction discipline seen across the pack
// (aftaylor2-smsDbViewer's connection handling; modernc.org/sqlite as the
// one driver shared with C2/C3/C4/C11).
package indexstate

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// State is the single persisted indexing-progress row (§3.6).
type State struct {
	LastMessageRowID     int64
	LastIndexedAt        int64
	TotalMessagesIndexed int64
	TotalChunksCreated   int64
}

// StateUpdate carries partial fields to apply over an existing State; a nil
// field is left unchanged.
type StateUpdate struct {
	LastMessageRowID     *int64
	LastIndexedAt        *int64
	TotalMessagesIndexed *int64
	TotalChunksCreated   *int64
}

// ChunkRecord is one entry recorded alongside a chunk hash: the source
// message row ids that produced it, the index document id, and when it
// was recorded.
type ChunkRecord struct {
	ChunkHash     string
	MessageRowIDs []int64
	DocumentID    string
	CreatedAt     int64
}

const schema = `
CREATE TABLE IF NOT EXISTS indexing_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	last_message_rowid INTEGER NOT NULL DEFAULT 0,
	last_indexed_at INTEGER NOT NULL DEFAULT 0,
	total_messages_indexed INTEGER NOT NULL DEFAULT 0,
	total_chunks_created INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS indexed_chunks (
	chunk_hash TEXT PRIMARY KEY,
	message_rowids TEXT NOT NULL,
	document_id TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// Store is a private SQLite handle owning the indexing-state tables. Per
// §5's shared-resource policy, it is never shared across processes.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the state database at path and
// ensures its schema and the single state row exist.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state schema: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO indexing_state (id) VALUES (1)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("seeding state row: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetState returns the single persisted state row.
func (s *Store) GetState() (State, error) {
	var st State
	err := s.db.QueryRow(`SELECT last_message_rowid, last_indexed_at, total_messages_indexed, total_chunks_created FROM indexing_state WHERE id = 1`).
		Scan(&st.LastMessageRowID, &st.LastIndexedAt, &st.TotalMessagesIndexed, &st.TotalChunksCreated)
	if err != nil {
		return State{}, fmt.Errorf("reading indexing state: %w", err)
	}
	return st, nil
}

// UpdateState applies the non-nil fields of u to the persisted row.
func (s *Store) UpdateState(u StateUpdate) error {
	current, err := s.GetState()
	if err != nil {
		return err
	}

	if u.LastMessageRowID != nil {
		current.LastMessageRowID = *u.LastMessageRowID
	}
	if u.LastIndexedAt != nil {
		current.LastIndexedAt = *u.LastIndexedAt
	}
	if u.TotalMessagesIndexed != nil {
		current.TotalMessagesIndexed = *u.TotalMessagesIndexed
	}
	if u.TotalChunksCreated != nil {
		current.TotalChunksCreated = *u.TotalChunksCreated
	}

	_, err = s.db.Exec(`
		UPDATE indexing_state
		SET last_message_rowid = ?, last_indexed_at = ?, total_messages_indexed = ?, total_chunks_created = ?
		WHERE id = 1`,
		current.LastMessageRowID, current.LastIndexedAt, current.TotalMessagesIndexed, current.TotalChunksCreated)
	if err != nil {
		return fmt.Errorf("updating indexing state: %w", err)
	}
	return nil
}

// IsChunkIndexed reports whether a chunk hash is already recorded.
func (s *Store) IsChunkIndexed(hash string) (bool, error) {
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM indexed_chunks WHERE chunk_hash = ?`, hash).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking indexed chunk: %w", err)
	}
	return true, nil
}

// GetIndexedChunkHashes returns every recorded chunk hash, for seeding the
// in-memory dedup set at the start of a run (§4.12.1 step 3).
func (s *Store) GetIndexedChunkHashes() (map[string]struct{}, error) {
	rows, err := s.db.Query(`SELECT chunk_hash FROM indexed_chunks`)
	if err != nil {
		return nil, fmt.Errorf("reading indexed chunk hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning chunk hash: %w", err)
		}
		hashes[h] = struct{}{}
	}
	return hashes, rows.Err()
}

// GetIndexedChunkRecords returns every recorded chunk alongside the index
// document id it produced, for cross-checking the index store against the
// state store (§12's verify command).
func (s *Store) GetIndexedChunkRecords() ([]ChunkRecord, error) {
	rows, err := s.db.Query(`SELECT chunk_hash, message_rowids, document_id, created_at FROM indexed_chunks`)
	if err != nil {
		return nil, fmt.Errorf("reading indexed chunk records: %w", err)
	}
	defer rows.Close()

	var records []ChunkRecord
	for rows.Next() {
		var r ChunkRecord
		var rowIDsJSON string
		if err := rows.Scan(&r.ChunkHash, &rowIDsJSON, &r.DocumentID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk record: %w", err)
		}
		if err := json.Unmarshal([]byte(rowIDsJSON), &r.MessageRowIDs); err != nil {
			return nil, fmt.Errorf("unmarshaling message row ids for %s: %w", r.ChunkHash, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// RecordChunks inserts every record in a single transaction: either all
// entries are recorded or none are (§3.6, §4.12.1 step c).
func (s *Store) RecordChunks(records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning record-chunks transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO indexed_chunks (chunk_hash, message_rowids, document_id, created_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing record-chunks statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		rowIDsJSON, err := json.Marshal(r.MessageRowIDs)
		if err != nil {
			return fmt.Errorf("marshaling message row ids for %s: %w", r.ChunkHash, err)
		}
		if _, err := stmt.Exec(r.ChunkHash, string(rowIDsJSON), r.DocumentID, r.CreatedAt); err != nil {
			return fmt.Errorf("recording chunk %s: %w", r.ChunkHash, err)
		}
	}

	return tx.Commit()
}

// Reset empties the indexed-chunks table and zeroes the state counters in
// a single transaction (§3.6).
func (s *Store) Reset() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning reset transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM indexed_chunks`); err != nil {
		return fmt.Errorf("clearing indexed chunks: %w", err)
	}
	if _, err := tx.Exec(`UPDATE indexing_state SET last_message_rowid = 0, last_indexed_at = 0, total_messages_indexed = 0, total_chunks_created = 0 WHERE id = 1`); err != nil {
		return fmt.Errorf("zeroing indexing state: %w", err)
	}

	return tx.Commit()
}

// GetChunkCount returns the number of recorded chunk hashes.
func (s *Store) GetChunkCount() (int64, error) {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM indexed_chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting indexed chunks: %w", err)
	}
	return count, nil
}

// NowUnix returns the current Unix time, for stamping ChunkRecord.CreatedAt.
func NowUnix() int64 {
	return time.Now().Unix()
}
