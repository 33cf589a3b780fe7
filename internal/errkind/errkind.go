// Package errkind classifies the sentinel errors scattered across the
// other packages into the small fixed set of dispositions the orchestrator
// and CLI boundary need to act on, mirroring the teacher's approach of
// dispatching on sentinel identity via errors.Is/errors.As rather than
// string matching (see internal/vectorstore's sentinel error block).
package errkind

import (
	"errors"

	"github.com/localchat/chatindex/internal/vectorstore"
)

// Kind is one error disposition from the error handling design.
type Kind int

const (
	// Unknown is any error not recognized by Classify; callers treat it as
	// fatal, the safest default.
	Unknown Kind = iota

	// StoreUnavailable: index store down. Fatal at indexer start; surfaced
	// as an operational error on query.
	StoreUnavailable

	// MessageStoreUnreadable: platform SQLite missing or unreadable. Fatal.
	MessageStoreUnreadable

	// ContactSourceMissing: an address-book database is absent. Warning;
	// the resolver falls back to raw handles.
	ContactSourceMissing

	// EmbeddingTransient: the embedder failed in a way worth retrying once
	// with backoff before failing the batch.
	EmbeddingTransient

	// QueryParseFailed: C13 could not parse a natural-language query. Falls
	// through to keyword-only search.
	QueryParseFailed

	// Timeout: a query exceeded its per-call deadline. Distinct error, no
	// partial state.
	Timeout
)

// String names a Kind for logging.
func (k Kind) String() string {
	switch k {
	case StoreUnavailable:
		return "store_unavailable"
	case MessageStoreUnreadable:
		return "message_store_unreadable"
	case ContactSourceMissing:
		return "contact_source_missing"
	case EmbeddingTransient:
		return "embedding_transient"
	case QueryParseFailed:
		return "query_parse_failed"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Classify maps err to the Kind the error handling design assigns it, by
// walking the wrap chain for the sentinels each component exports.
// BlobExtractFailed, ImageEmbedFailed and BulkPartialFailure errors never
// reach this function — those three are handled entirely inside the
// component that owns them (§7) and never propagate as fatal.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return Unknown
	case errors.Is(err, vectorstore.ErrStoreUnavailable):
		return StoreUnavailable
	case errors.Is(err, ErrMessageStoreUnreadable):
		return MessageStoreUnreadable
	case errors.Is(err, ErrContactSourceMissing):
		return ContactSourceMissing
	case errors.Is(err, ErrEmbeddingTransient):
		return EmbeddingTransient
	case errors.Is(err, ErrQueryParseFailed):
		return QueryParseFailed
	case errors.Is(err, ErrTimeout):
		return Timeout
	default:
		return Unknown
	}
}

// Sentinels for the kinds that are not already defined by the component
// that detects them (platformdb/contacts/embeddings report plain wrapped
// errors today; the orchestrator and query path re-wrap with these so
// Classify has something to match against).
var (
	ErrMessageStoreUnreadable = errors.New("message store unreadable")
	ErrContactSourceMissing   = errors.New("contact source missing")
	ErrEmbeddingTransient     = errors.New("embedding provider transient error")
	ErrQueryParseFailed       = errors.New("query parse failed")
	ErrTimeout                = errors.New("operation timed out")
)

// ExitCode returns the CLI process exit code for an error: 0 only for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
