package platformdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/stretchr/testify/require"

	"github.com/localchat/chatindex/internal/appletime"
)

const testSchema = `
CREATE TABLE chat (ROWID INTEGER PRIMARY KEY, chat_identifier TEXT, display_name TEXT);
CREATE TABLE handle (ROWID INTEGER PRIMARY KEY, id TEXT);
CREATE TABLE message (
	ROWID INTEGER PRIMARY KEY,
	text TEXT,
	attributedBody BLOB,
	date INTEGER,
	is_from_me INTEGER,
	handle_id INTEGER,
	service TEXT
);
CREATE TABLE chat_message_join (chat_id INTEGER, message_id INTEGER);
CREATE TABLE attachment (
	ROWID INTEGER PRIMARY KEY,
	guid TEXT,
	filename TEXT,
	mime_type TEXT,
	created_date INTEGER,
	transfer_name TEXT,
	total_bytes INTEGER
);
CREATE TABLE message_attachment_join (message_id INTEGER, attachment_id INTEGER);
`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return &Store{db: db}
}

func TestReadMessages_OrdersByRowIDNotDate(t *testing.T) {
	s := newTestStore(t)

	_, err := s.db.Exec(`INSERT INTO chat (ROWID, chat_identifier, display_name) VALUES (1, 'chat1', NULL)`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO handle (ROWID, id) VALUES (1, 'alice@example.com')`)
	require.NoError(t, err)

	// Row id 2 has an earlier timestamp than row id 1: ordering by date
	// would invert them, ordering by ROWID must not.
	_, err = s.db.Exec(`INSERT INTO message (ROWID, text, date, is_from_me, handle_id, service) VALUES
		(1, 'second by time', 200, 0, 1, 'iMessage'),
		(2, 'first by time', 100, 0, 1, 'iMessage')`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO chat_message_join (chat_id, message_id) VALUES (1, 1), (1, 2)`)
	require.NoError(t, err)

	msgs, lastScanned, rawCount, err := s.ReadMessages(0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, int64(1), msgs[0].RowID)
	require.Equal(t, int64(2), msgs[1].RowID)
	require.Equal(t, int64(2), lastScanned)
	require.Equal(t, 2, rawCount)
}

func TestReadMessages_CursorExcludesAlreadyRead(t *testing.T) {
	s := newTestStore(t)

	_, err := s.db.Exec(`INSERT INTO chat (ROWID, chat_identifier, display_name) VALUES (1, 'chat1', NULL)`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO message (ROWID, text, date, is_from_me, service) VALUES
		(1, 'a', 100, 0, 'iMessage'),
		(2, 'b', 200, 0, 'iMessage'),
		(3, 'c', 300, 0, 'iMessage')`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO chat_message_join (chat_id, message_id) VALUES (1,1),(1,2),(1,3)`)
	require.NoError(t, err)

	msgs, lastScanned, rawCount, err := s.ReadMessages(1, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, int64(2), msgs[0].RowID)
	require.Equal(t, int64(3), msgs[1].RowID)
	require.Equal(t, int64(3), lastScanned)
	require.Equal(t, 2, rawCount)
}

func TestReadMessages_DropsEmptyTextWithNoUsableBlob(t *testing.T) {
	s := newTestStore(t)

	_, err := s.db.Exec(`INSERT INTO chat (ROWID, chat_identifier, display_name) VALUES (1, 'chat1', NULL)`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO message (ROWID, text, date, is_from_me, service) VALUES (1, '', 100, 0, 'iMessage')`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO chat_message_join (chat_id, message_id) VALUES (1,1)`)
	require.NoError(t, err)

	msgs, lastScanned, rawCount, err := s.ReadMessages(0, 0)
	require.NoError(t, err)
	require.Empty(t, msgs)
	// The row was scanned and filtered out, but a caller still needs to
	// know it was seen so its read cursor advances past it.
	require.Equal(t, int64(1), lastScanned)
	require.Equal(t, 1, rawCount)
}

func TestReadMessages_ExtractsFromAttributedBody(t *testing.T) {
	s := newTestStore(t)

	blob := buildAttributedBody("rich text content")

	_, err := s.db.Exec(`INSERT INTO chat (ROWID, chat_identifier, display_name) VALUES (1, 'chat1', NULL)`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO message (ROWID, text, attributedBody, date, is_from_me, service) VALUES (1, '', ?, 100, 0, 'iMessage')`, blob)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO chat_message_join (chat_id, message_id) VALUES (1,1)`)
	require.NoError(t, err)

	msgs, _, _, err := s.ReadMessages(0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "rich text content", msgs[0].Text)
}

func TestReadMessages_LimitBoundsResults(t *testing.T) {
	s := newTestStore(t)

	_, err := s.db.Exec(`INSERT INTO chat (ROWID, chat_identifier, display_name) VALUES (1, 'chat1', NULL)`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO message (ROWID, text, date, is_from_me, service) VALUES
		(1, 'a', 100, 0, 'iMessage'), (2, 'b', 200, 0, 'iMessage'), (3, 'c', 300, 0, 'iMessage')`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO chat_message_join (chat_id, message_id) VALUES (1,1),(1,2),(1,3)`)
	require.NoError(t, err)

	msgs, lastScanned, rawCount, err := s.ReadMessages(0, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, int64(1), msgs[0].RowID)
	require.Equal(t, int64(2), msgs[1].RowID)
	require.Equal(t, int64(2), lastScanned)
	require.Equal(t, 2, rawCount)
}

// TestReadMessages_RawCountTracksScannedRowsNotSurvivors reproduces the
// window a caller must not mistake for end-of-data: every row in a
// limit-sized window is filtered out, but rows past the window remain
// unread. rawCount must reflect the full window and lastScannedRowID must
// point past it, or a cursor driven by len(messages) would never advance.
func TestReadMessages_RawCountTracksScannedRowsNotSurvivors(t *testing.T) {
	s := newTestStore(t)

	_, err := s.db.Exec(`INSERT INTO chat (ROWID, chat_identifier, display_name) VALUES (1, 'chat1', NULL)`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO message (ROWID, text, date, is_from_me, service) VALUES
		(1, '', 100, 0, 'iMessage'),
		(2, '', 200, 0, 'iMessage'),
		(3, 'surviving message', 300, 0, 'iMessage')`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO chat_message_join (chat_id, message_id) VALUES (1,1),(1,2),(1,3)`)
	require.NoError(t, err)

	msgs, lastScanned, rawCount, err := s.ReadMessages(0, 2)
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.Equal(t, int64(2), lastScanned)
	require.Equal(t, 2, rawCount)

	msgs, lastScanned, rawCount, err = s.ReadMessages(lastScanned, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "surviving message", msgs[0].Text)
	require.Equal(t, int64(3), lastScanned)
	require.Equal(t, 1, rawCount)
}

func TestMaxMessageRowID(t *testing.T) {
	s := newTestStore(t)

	max, err := s.MaxMessageRowID()
	require.NoError(t, err)
	require.Equal(t, int64(0), max)

	_, err = s.db.Exec(`INSERT INTO message (ROWID, text, date, is_from_me, service) VALUES (5, 'x', 100, 0, 'iMessage')`)
	require.NoError(t, err)

	max, err = s.MaxMessageRowID()
	require.NoError(t, err)
	require.Equal(t, int64(5), max)
}

func TestStats_EmptyStore(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, int64(0), stats.TotalMessages)
	require.Equal(t, int64(0), stats.MinRowID)
	require.Equal(t, int64(0), stats.MaxRowID)
	require.Equal(t, int64(0), stats.OldestDate)
	require.Equal(t, int64(0), stats.NewestDate)
}

func TestStats_ComputesBoundsAndConvertsAppleTime(t *testing.T) {
	s := newTestStore(t)

	_, err := s.db.Exec(`INSERT INTO message (ROWID, text, date, is_from_me, service) VALUES
		(3, 'a', 0, 0, 'iMessage'),
		(7, 'b', 100000000000, 0, 'iMessage')`)
	require.NoError(t, err)

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.TotalMessages)
	require.Equal(t, int64(3), stats.MinRowID)
	require.Equal(t, int64(7), stats.MaxRowID)
	require.Equal(t, appletime.MacToUnix(0), stats.OldestDate)
	require.Equal(t, appletime.MacToUnix(100000000000), stats.NewestDate)
}
