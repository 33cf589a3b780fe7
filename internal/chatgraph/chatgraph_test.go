package chatgraph

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResolveOrCreatePerson_CreatesOnMiss(t *testing.T) {
	s := newTestStore(t)

	p, err := s.ResolveOrCreatePerson("+14155551234", "4155551234", HandlePhone, "Alice")
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, "Alice", p.DisplayName)
	require.True(t, p.AutoCreated)
}

func TestResolveOrCreatePerson_IdempotentOnSameHandle(t *testing.T) {
	s := newTestStore(t)

	p1, err := s.ResolveOrCreatePerson("+14155551234", "4155551234", HandlePhone, "Alice")
	require.NoError(t, err)
	p2, err := s.ResolveOrCreatePerson("+14155551234", "4155551234", HandlePhone, "Alice Again")
	require.NoError(t, err)
	require.Equal(t, p1.ID, p2.ID)
}

func TestResolvePersonByName_ExactDisplayMatch(t *testing.T) {
	s := newTestStore(t)
	p, err := s.ResolveOrCreatePerson("+14155551234", "4155551234", HandlePhone, "Alice Smith")
	require.NoError(t, err)

	found, suggestions, err := s.ResolvePersonByName("alice smith")
	require.NoError(t, err)
	require.Nil(t, suggestions)
	require.Equal(t, p.ID, found.ID)
}

func TestResolvePersonByName_AmbiguousSubstringReturnsSuggestions(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ResolveOrCreatePerson("+1", "1", HandlePhone, "Alice Smith")
	require.NoError(t, err)
	_, err = s.ResolveOrCreatePerson("+2", "2", HandlePhone, "Alice Jones")
	require.NoError(t, err)

	found, suggestions, err := s.ResolvePersonByName("alice")
	require.NoError(t, err)
	require.Nil(t, found)
	require.Len(t, suggestions, 2)
}

func TestResolvePersonByName_UniqueSubstringResolves(t *testing.T) {
	s := newTestStore(t)
	p, err := s.ResolveOrCreatePerson("+1", "1", HandlePhone, "Alice Smith")
	require.NoError(t, err)

	found, suggestions, err := s.ResolvePersonByName("smith")
	require.NoError(t, err)
	require.Nil(t, suggestions)
	require.Equal(t, p.ID, found.ID)
}

func TestResolvePersonByHandle_UnknownReturnsNil(t *testing.T) {
	s := newTestStore(t)
	p, err := s.ResolvePersonByHandle("0000000000")
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestResolveOrCreateChat_CreatesAndCachesOnMiss(t *testing.T) {
	s := newTestStore(t)

	c, err := s.ResolveOrCreateChat("chat-guid-1", "Friends", true)
	require.NoError(t, err)
	require.True(t, c.AutoCreated)

	// second resolve must hit the hot-path cache and the db row, same id
	again, err := s.ResolveChatByPlatformID("chat-guid-1")
	require.NoError(t, err)
	require.Equal(t, c.ID, again.ID)
}

func TestEnsureParticipants_Idempotent(t *testing.T) {
	s := newTestStore(t)
	chat, err := s.ResolveOrCreateChat("chat-guid-1", "Friends", true)
	require.NoError(t, err)
	person, err := s.ResolveOrCreatePerson("+1", "1", HandlePhone, "Alice")
	require.NoError(t, err)

	require.NoError(t, s.EnsureParticipants(chat.ID, []string{person.ID}))
	require.NoError(t, s.EnsureParticipants(chat.ID, []string{person.ID})) // idempotent, no error on repeat

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM chat_participants WHERE chat_id = ? AND person_id = ?`, chat.ID, person.ID).Scan(&count))
	require.Equal(t, 1, count)
}

func TestDeletePerson_CascadesHandlesAndAliases(t *testing.T) {
	s := newTestStore(t)
	p, err := s.ResolveOrCreatePerson("+1", "1", HandlePhone, "Alice")
	require.NoError(t, err)

	require.NoError(t, s.DeletePerson(p.ID))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM handles WHERE person_id = ?`, p.ID).Scan(&count))
	require.Equal(t, 0, count)
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM aliases WHERE person_id = ?`, p.ID).Scan(&count))
	require.Equal(t, 0, count)
}

func TestDeleteChat_CascadesAliasesAndParticipants(t *testing.T) {
	s := newTestStore(t)
	chat, err := s.ResolveOrCreateChat("chat-guid-1", "Friends", true)
	require.NoError(t, err)
	person, err := s.ResolveOrCreatePerson("+1", "1", HandlePhone, "Alice")
	require.NoError(t, err)
	require.NoError(t, s.EnsureParticipants(chat.ID, []string{person.ID}))

	require.NoError(t, s.DeleteChat(chat.ID, chat.PlatformChatID))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM chat_participants WHERE chat_id = ?`, chat.ID).Scan(&count))
	require.Equal(t, 0, count)
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM chat_aliases WHERE chat_id = ?`, chat.ID).Scan(&count))
	require.Equal(t, 0, count)
}
