package indexstate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_SeedsSingleStateRow(t *testing.T) {
	s := newTestStore(t)
	st, err := s.GetState()
	require.NoError(t, err)
	require.Equal(t, State{}, st)
}

func TestUpdateState_AppliesOnlyNonNilFields(t *testing.T) {
	s := newTestStore(t)

	rowID := int64(42)
	require.NoError(t, s.UpdateState(StateUpdate{LastMessageRowID: &rowID}))

	st, err := s.GetState()
	require.NoError(t, err)
	require.Equal(t, int64(42), st.LastMessageRowID)
	require.Equal(t, int64(0), st.TotalMessagesIndexed)

	total := int64(7)
	require.NoError(t, s.UpdateState(StateUpdate{TotalMessagesIndexed: &total}))

	st, err = s.GetState()
	require.NoError(t, err)
	require.Equal(t, int64(42), st.LastMessageRowID, "unrelated field preserved")
	require.Equal(t, int64(7), st.TotalMessagesIndexed)
}

func TestRecordChunks_AllOrNothing(t *testing.T) {
	s := newTestStore(t)

	records := []ChunkRecord{
		{ChunkHash: "h1", MessageRowIDs: []int64{1, 2}, DocumentID: "d1", CreatedAt: 100},
		{ChunkHash: "h2", MessageRowIDs: []int64{3}, DocumentID: "d2", CreatedAt: 101},
	}
	require.NoError(t, s.RecordChunks(records))

	count, err := s.GetChunkCount()
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	ok, err := s.IsChunkIndexed("h1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.IsChunkIndexed("missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetIndexedChunkHashes_ReturnsAllHashes(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordChunks([]ChunkRecord{
		{ChunkHash: "a", DocumentID: "d", CreatedAt: 1},
		{ChunkHash: "b", DocumentID: "d", CreatedAt: 2},
	}))

	hashes, err := s.GetIndexedChunkHashes()
	require.NoError(t, err)
	require.Len(t, hashes, 2)
	_, ok := hashes["a"]
	require.True(t, ok)
}

func TestGetIndexedChunkRecords_ReturnsDocumentIDsAndRowIDs(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordChunks([]ChunkRecord{
		{ChunkHash: "a", MessageRowIDs: []int64{1, 2}, DocumentID: "doc-a", CreatedAt: 1},
		{ChunkHash: "b", MessageRowIDs: []int64{3}, DocumentID: "doc-b", CreatedAt: 2},
	}))

	records, err := s.GetIndexedChunkRecords()
	require.NoError(t, err)
	require.Len(t, records, 2)

	byHash := make(map[string]ChunkRecord, len(records))
	for _, r := range records {
		byHash[r.ChunkHash] = r
	}
	require.Equal(t, "doc-a", byHash["a"].DocumentID)
	require.Equal(t, []int64{1, 2}, byHash["a"].MessageRowIDs)
	require.Equal(t, "doc-b", byHash["b"].DocumentID)
}

func TestReset_ClearsChunksAndZeroesCounters(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordChunks([]ChunkRecord{{ChunkHash: "a", DocumentID: "d", CreatedAt: 1}}))
	rowID := int64(99)
	require.NoError(t, s.UpdateState(StateUpdate{LastMessageRowID: &rowID}))

	require.NoError(t, s.Reset())

	count, err := s.GetChunkCount()
	require.NoError(t, err)
	require.Equal(t, int64(0), count)

	st, err := s.GetState()
	require.NoError(t, err)
	require.Equal(t, State{}, st)
}
