package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/localchat/chatindex/internal/chatgraph"
	"github.com/localchat/chatindex/internal/nlquery"
	"github.com/localchat/chatindex/internal/vectorstore"
)

func newTestPeople(t *testing.T) *chatgraph.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.db")
	s, err := chatgraph.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeStore is a minimal vectorstore.Store that only implements
// HybridSearch meaningfully; every other method is a stub to satisfy the
// interface, since C14's Search call never reaches them.
type fakeStore struct {
	lastOpts vectorstore.HybridSearchOptions
	results  []vectorstore.SearchResult
	err      error
}

func (f *fakeStore) Initialize(ctx context.Context) error { return nil }
func (f *fakeStore) IndexDocuments(ctx context.Context, docs []vectorstore.Document) ([]string, error) {
	return nil, nil
}
func (f *fakeStore) HybridSearch(ctx context.Context, opts vectorstore.HybridSearchOptions) ([]vectorstore.SearchResult, error) {
	f.lastOpts = opts
	return f.results, f.err
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
	return nil, nil
}
func (f *fakeStore) DocumentExists(ctx context.Context, id string) (bool, error) { return false, nil }
func (f *fakeStore) GetStats(ctx context.Context) (*vectorstore.Stats, error)    { return &vectorstore.Stats{}, nil }
func (f *fakeStore) Clear(ctx context.Context) error                            { return nil }
func (f *fakeStore) HealthCheck(ctx context.Context) error                      { return nil }
func (f *fakeStore) Close() error                                               { return nil }

type fakeEmbedder struct {
	lastQuery string
	vector    []float32
	err       error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.lastQuery = text
	return f.vector, f.err
}

func TestSearch_KeywordQueryPassesThrough(t *testing.T) {
	store := &fakeStore{results: []vectorstore.SearchResult{
		{ID: "b", Score: 1.005, Document: vectorstore.Document{ChatName: "Friends", Sender: "Alice"}},
		{ID: "a", Score: 1.005, Document: vectorstore.Document{ChatName: "Friends", Sender: "Bob"}},
	}}
	svc := New(store, nil, nil, nil, time.UTC)

	pq := &nlquery.ParsedQuery{QueryType: nlquery.QueryKeyword, KeywordQuery: "pizza"}
	results, err := svc.Search(context.Background(), pq, 5)
	require.NoError(t, err)
	require.Equal(t, "pizza", store.lastOpts.KeywordQuery)
	require.Len(t, results, 2)
	// equal scores after rounding: tie-break by id ascending.
	require.Equal(t, "a", results[0].ID)
	require.Equal(t, "b", results[1].ID)
	require.Equal(t, 1.0, results[0].Score)
}

func TestSearch_SemanticQueryEmbedsText(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2}}
	svc := New(store, embedder, nil, nil, time.UTC)

	pq := &nlquery.ParsedQuery{QueryType: nlquery.QuerySemantic, SemanticQuery: "vacation photos"}
	_, err := svc.Search(context.Background(), pq, 5)
	require.NoError(t, err)
	require.Equal(t, "vacation photos", embedder.lastQuery)
	require.Equal(t, []float32{0.1, 0.2}, store.lastOpts.TextEmbedding)
}

func TestSearch_MissingEmbedderDegradesToKeyword(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, nil, nil, nil, time.UTC)

	pq := &nlquery.ParsedQuery{QueryType: nlquery.QueryHybrid, SemanticQuery: "vacation photos", KeywordQuery: ""}
	_, err := svc.Search(context.Background(), pq, 5)
	require.NoError(t, err)
	require.Equal(t, "vacation photos", store.lastOpts.KeywordQuery)
	require.Nil(t, store.lastOpts.TextEmbedding)
}

func TestSearch_ImageQueryTypeForcesHasImageFilter(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, nil, nil, nil, time.UTC)

	pq := &nlquery.ParsedQuery{QueryType: nlquery.QueryImage, KeywordQuery: "beach"}
	_, err := svc.Search(context.Background(), pq, 5)
	require.NoError(t, err)
	require.Equal(t, true, store.lastOpts.Filters["has_image"])
}

func TestSearch_FromPersonResolvesThroughChatGraph(t *testing.T) {
	people := newTestPeople(t)
	_, err := people.ResolveOrCreatePerson("+14155551234", "4155551234", chatgraph.HandlePhone, "Alice")
	require.NoError(t, err)

	store := &fakeStore{}
	svc := New(store, nil, people, nil, time.UTC)

	pq := &nlquery.ParsedQuery{QueryType: nlquery.QueryKeyword, KeywordQuery: "dinner", FromPerson: "Alice"}
	_, err = svc.Search(context.Background(), pq, 5)
	require.NoError(t, err)
	require.Equal(t, "Alice", store.lastOpts.Filters["sender"])
}

func TestSearch_UnresolvablePersonFallsBackToRawText(t *testing.T) {
	people := newTestPeople(t)
	store := &fakeStore{}
	svc := New(store, nil, people, nil, time.UTC)

	pq := &nlquery.ParsedQuery{QueryType: nlquery.QueryKeyword, KeywordQuery: "dinner", FromPerson: "Nobody"}
	_, err := svc.Search(context.Background(), pq, 5)
	require.NoError(t, err)
	require.Equal(t, "Nobody", store.lastOpts.Filters["sender"])
}

func TestSearch_HourWindowExpandsWrapAround(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, nil, nil, nil, time.UTC)

	gte, lte := 22, 3
	pq := &nlquery.ParsedQuery{
		QueryType: nlquery.QueryKeyword,
		KeywordQuery: "late night",
		Filters:   nlquery.Filters{HourGTE: &gte, HourLTE: &lte},
	}
	_, err := svc.Search(context.Background(), pq, 5)
	require.NoError(t, err)
	require.Equal(t, []interface{}{22, 23, 0, 1, 2, 3}, store.lastOpts.Filters["hour_of_day"])
}

func TestSearch_DefaultLimitApplied(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, nil, nil, nil, time.UTC)

	pq := &nlquery.ParsedQuery{QueryType: nlquery.QueryKeyword, KeywordQuery: "x"}
	_, err := svc.Search(context.Background(), pq, 0)
	require.NoError(t, err)
	require.Equal(t, DefaultLimit, store.lastOpts.Limit)
}
