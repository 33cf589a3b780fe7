package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/localchat/chatindex/internal/contacts"
	"github.com/localchat/chatindex/internal/indexstate"
	"github.com/localchat/chatindex/internal/logging"
	"github.com/localchat/chatindex/internal/platformdb"
	"github.com/localchat/chatindex/internal/vectorstore"

	_ "modernc.org/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testMessageSchema = `
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

func newTestMessageStore(t *testing.T, insert func(db *sql.DB)) *platformdb.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(testMessageSchema)
	require.NoError(t, err)
	if insert != nil {
		insert(db)
	}
	require.NoError(t, db.Close())

	s, err := platformdb.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestState(t *testing.T) *indexstate.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := indexstate.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestResolver(t *testing.T) *contacts.Resolver {
	t.Helper()
	r, err := contacts.Load(filepath.Join(t.TempDir(), "nonexistent.abcddb"), zap.NewNop())
	require.NoError(t, err)
	return r
}

func newTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
	require.NoError(t, err)
	return logger
}

// fakeStore is an in-memory vectorstore.Store stand-in so indexer tests
// never need a live Elasticsearch cluster.
type fakeStore struct {
	healthErr error
	docs      map[string]vectorstore.Document
	failNext  map[string]struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]vectorstore.Document)}
}

func (f *fakeStore) Initialize(ctx context.Context) error { return nil }

func (f *fakeStore) IndexDocuments(ctx context.Context, docs []vectorstore.Document) ([]string, error) {
	var failed []string
	for _, d := range docs {
		if _, bad := f.failNext[d.ID]; bad {
			failed = append(failed, d.ID)
			continue
		}
		f.docs[d.ID] = d
	}
	return failed, nil
}

func (f *fakeStore) HybridSearch(ctx context.Context, opts vectorstore.HybridSearchOptions) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (f *fakeStore) ImageSearch(ctx context.Context, vector []float32, limit int, filters vectorstore.Filters) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (f *fakeStore) SemanticSearch(ctx context.Context, vector []float32, limit int, filters vectorstore.Filters) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (f *fakeStore) KeywordSearch(ctx context.Context, query string, limit int, filters vectorstore.Filters) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (f *fakeStore) GetDocument(ctx context.Context, id string) (*vectorstore.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}
func (f *fakeStore) DocumentExists(ctx context.Context, id string) (bool, error) {
	_, ok := f.docs[id]
	return ok, nil
}
func (f *fakeStore) GetStats(ctx context.Context) (*vectorstore.Stats, error) {
	return &vectorstore.Stats{DocumentCount: int64(len(f.docs))}, nil
}
func (f *fakeStore) Clear(ctx context.Context) error {
	f.docs = make(map[string]vectorstore.Document)
	return nil
}
func (f *fakeStore) HealthCheck(ctx context.Context) error { return f.healthErr }
func (f *fakeStore) Close() error                          { return nil }

// fakeEmbedder returns a deterministic, trivially-dimensioned vector per
// text so batch alignment is easy to assert on.
type fakeEmbedder struct {
	failTimes int
	calls     int
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failTimes {
		return nil, errors.New("simulated embedder outage")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}
func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}
func (f *fakeEmbedder) Dimension() int  { return 1 }
func (f *fakeEmbedder) Close() error    { return nil }

func mustExec(db *sql.DB, query string, args ...interface{}) {
	if _, err := db.Exec(query, args...); err != nil {
		panic(fmt.Sprintf("test fixture exec failed: %v: %s", err, query))
	}
}

func insertChat(db *sql.DB, id int64, identifier, displayName string) {
	var name interface{}
	if displayName != "" {
		name = displayName
	}
	mustExec(db, `INSERT INTO chat (ROWID, chat_identifier, display_name) VALUES (?, ?, ?)`, id, identifier, name)
}

func insertHandle(db *sql.DB, id int64, value string) {
	mustExec(db, `INSERT INTO handle (ROWID, id) VALUES (?, ?)`, id, value)
}

// seedOneChatConversation inserts a two-message DM chat with enough text to
// survive the chunker's minimum-length filters.
func seedOneChatConversation(db *sql.DB) {
	insertChat(db, 1, "chat-guid-1", "")
	insertHandle(db, 1, "+14155551234")
	mustExec(db, `INSERT INTO message (ROWID, text, date, is_from_me, handle_id, service) VALUES
		(1, 'hello there, how has your week been going so far?', 100, 0, 1, 'iMessage'),
		(2, 'pretty good thanks for asking, yours has been fine too I hope', 200, 1, NULL, 'iMessage')`)
	mustExec(db, `INSERT INTO chat_message_join (chat_id, message_id) VALUES (1, 1), (1, 2)`)
}

func TestRun_IndexesNewMessagesAndAdvancesCursor(t *testing.T) {
	messages := newTestMessageStore(t, seedOneChatConversation)
	state := newTestState(t)
	store := newFakeStore()
	embedder := &fakeEmbedder{}
	resolver := newTestResolver(t)
	logger := newTestLogger(t)

	ix := New(messages, state, store, embedder, nil, resolver, logger)

	result, err := ix.Run(context.Background(), Config{})
	require.NoError(t, err)
	require.Equal(t, 2, result.MessagesProcessed)
	require.Equal(t, 1, result.ChunksIndexed)
	require.Len(t, store.docs, 1)
	require.True(t, ix.Healthy())

	st, err := state.GetState()
	require.NoError(t, err)
	require.Equal(t, int64(2), st.LastMessageRowID)
	require.Equal(t, int64(1), st.TotalChunksCreated)
}

func TestRun_SecondRunWithNoNewMessagesIsNoOp(t *testing.T) {
	messages := newTestMessageStore(t, seedOneChatConversation)
	state := newTestState(t)
	store := newFakeStore()
	embedder := &fakeEmbedder{}
	resolver := newTestResolver(t)
	logger := newTestLogger(t)

	ix := New(messages, state, store, embedder, nil, resolver, logger)
	_, err := ix.Run(context.Background(), Config{})
	require.NoError(t, err)

	result, err := ix.Run(context.Background(), Config{})
	require.NoError(t, err)
	require.Equal(t, 0, result.MessagesProcessed)
	require.Equal(t, 0, result.ChunksIndexed)
	require.Len(t, store.docs, 1)
}

func TestRun_StoreUnavailableAbortsBeforeReading(t *testing.T) {
	messages := newTestMessageStore(t, seedOneChatConversation)
	state := newTestState(t)
	store := newFakeStore()
	store.healthErr = errors.New("connection refused")
	embedder := &fakeEmbedder{}
	resolver := newTestResolver(t)
	logger := newTestLogger(t)

	ix := New(messages, state, store, embedder, nil, resolver, logger)
	_, err := ix.Run(context.Background(), Config{})
	require.Error(t, err)
	require.False(t, ix.Healthy())

	st, err := state.GetState()
	require.NoError(t, err)
	require.Equal(t, int64(0), st.LastMessageRowID)
}

func TestRun_EmbeddingRetriesOnceThenSucceeds(t *testing.T) {
	messages := newTestMessageStore(t, seedOneChatConversation)
	state := newTestState(t)
	store := newFakeStore()
	embedder := &fakeEmbedder{failTimes: 1}
	resolver := newTestResolver(t)
	logger := newTestLogger(t)

	ix := New(messages, state, store, embedder, nil, resolver, logger)
	result, err := ix.Run(context.Background(), Config{})
	require.NoError(t, err)
	require.Equal(t, 1, result.ChunksIndexed)
	require.Equal(t, 2, embedder.calls)
}

func TestRun_FullReindexClearsStoreAndState(t *testing.T) {
	messages := newTestMessageStore(t, seedOneChatConversation)
	state := newTestState(t)
	store := newFakeStore()
	embedder := &fakeEmbedder{}
	resolver := newTestResolver(t)
	logger := newTestLogger(t)

	ix := New(messages, state, store, embedder, nil, resolver, logger)
	_, err := ix.Run(context.Background(), Config{})
	require.NoError(t, err)

	_, err = ix.Run(context.Background(), Config{FullReindex: true})
	require.NoError(t, err)

	count, err := state.GetChunkCount()
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestRun_MaxMessagesCapsProcessing(t *testing.T) {
	messages := newTestMessageStore(t, func(db *sql.DB) {
		insertChat(db, 1, "chat-guid-1", "")
		insertHandle(db, 1, "+14155551234")
		mustExec(db, `INSERT INTO message (ROWID, text, date, is_from_me, handle_id, service) VALUES
			(1, 'hello there, how has your week been going so far?', 100, 0, 1, 'iMessage'),
			(2, 'pretty good thanks for asking, yours has been fine too I hope', 200, 1, NULL, 'iMessage'),
			(3, 'anything fun planned for the weekend coming up then?', 700, 0, 1, 'iMessage'),
			(4, 'yeah actually heading out of town for a few days to visit family', 800, 1, NULL, 'iMessage')`)
		mustExec(db, `INSERT INTO chat_message_join (chat_id, message_id) VALUES (1, 1), (1, 2), (1, 3), (1, 4)`)
	})
	state := newTestState(t)
	store := newFakeStore()
	embedder := &fakeEmbedder{}
	resolver := newTestResolver(t)
	logger := newTestLogger(t)

	ix := New(messages, state, store, embedder, nil, resolver, logger)
	result, err := ix.Run(context.Background(), Config{MaxMessages: 2})
	require.NoError(t, err)
	require.Equal(t, 2, result.MessagesProcessed)

	st, err := state.GetState()
	require.NoError(t, err)
	require.Equal(t, int64(2), st.LastMessageRowID)
}
