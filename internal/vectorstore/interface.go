// Package vectorstore defines the hybrid full-text + dense-vector document
// store (C9) and its Elasticsearch-backed implementation.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrIndexNotFound is returned when the index does not exist.
	ErrIndexNotFound = errors.New("index not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrStoreUnavailable indicates the index store could not be reached.
	// This is the StoreUnavailable error kind from the error handling
	// design: fatal at indexer start, surfaced as an operational error on
	// query.
	ErrStoreUnavailable = errors.New("index store unavailable")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Embedder generates vector embeddings from text. C7's text embedder
// implements this; C14 calls it to obtain a query-time vector.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Stats summarizes the index for status/verify reporting.
type Stats struct {
	DocumentCount int64
	IndexSizeBytes int64
}

// Filters are applied to document metadata per §4.9.3. The keys
// start_timestamp_gte/_lte and end_timestamp_gte/_lte become range clauses
// on start_timestamp/end_timestamp; every other key is term-matched (terms
// for slice values) against the field of that name.
type Filters map[string]interface{}

// Exclusions are must-not clauses per §4.9.4.
type Exclusions struct {
	// SenderNot excludes documents whose sender matches.
	SenderNot string
	// ChatIDNot excludes documents whose chat_id matches.
	ChatIDNot string
	// IsDMWith excludes DM documents whose participants contain this name
	// (must-not on is_dm=true AND participants contains X).
	IsDMWith string
}

// Boost attaches a should-clause boost to a named term per §4.9.5.
type Boost struct {
	Field string
	Value bool
	Score float64
}

// HybridSearchOptions composes a single hybridSearch call (§4.9.2).
type HybridSearchOptions struct {
	// KeywordQuery is matched against the analyzed "text" field (BM25).
	KeywordQuery string

	// TextEmbedding, if present, drives a cosine-similarity kNN clause
	// against "text_embedding".
	TextEmbedding []float32

	Filters    Filters
	Exclusions Exclusions
	Boosts     []Boost

	Limit int
}

// Store is the interface for the hybrid index store (C9). Implementations
// are transport-agnostic in principle; ElasticsearchStore is the only one
// wired here (REST over the official client).
type Store interface {
	// Initialize creates the index with its mapping if absent. Idempotent.
	Initialize(ctx context.Context) error

	// IndexDocuments bulk insert/replaces documents by id. Partial
	// failures are logged but do not abort the batch; the caller (C12)
	// is responsible for not recording failed ids into C10's hash set.
	// Returns the ids that failed to index.
	IndexDocuments(ctx context.Context, docs []Document) (failedIDs []string, err error)

	// HybridSearch composes BM25 + cosine kNN + filters + exclusions +
	// boosts into one ranked result set.
	HybridSearch(ctx context.Context, opts HybridSearchOptions) ([]SearchResult, error)

	// ImageSearch runs a dedicated kNN path on image_embedding, forcing
	// has_image=true into the filter regardless of caller-supplied filters.
	ImageSearch(ctx context.Context, vector []float32, limit int, filters Filters) ([]SearchResult, error)

	// SemanticSearch runs a kNN-only query on text_embedding with the
	// given filters; it has no keyword, exclusion or boost clauses.
	SemanticSearch(ctx context.Context, vector []float32, limit int, filters Filters) ([]SearchResult, error)

	// KeywordSearch is a convenience wrapper: HybridSearch with only a
	// keyword query and no embedding.
	KeywordSearch(ctx context.Context, query string, limit int, filters Filters) ([]SearchResult, error)

	// GetDocument fetches a single document by id.
	GetDocument(ctx context.Context, id string) (*Document, error)

	// DocumentExists reports whether id is present without fetching it.
	DocumentExists(ctx context.Context, id string) (bool, error)

	// GetStats returns document count and index size.
	GetStats(ctx context.Context) (*Stats, error)

	// Clear drops the index outright. Requires re-Initialize.
	Clear(ctx context.Context) error

	// HealthCheck reports whether the backing store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the store client.
	Close() error
}
