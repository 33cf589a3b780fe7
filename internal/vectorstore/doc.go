// Package vectorstore implements the hybrid index store (C9): a single
// Elasticsearch index holding enriched, embedded conversation chunks, searched
// through one composed query combining BM25 keyword matching, cosine
// similarity kNN over text and image embeddings, structured metadata filters,
// must-not exclusions and should-clause boosts.
//
// # Usage
//
//	config := vectorstore.DefaultClientConfig()
//	config.Addresses = []string{"http://localhost:9200"}
//
//	store, err := vectorstore.NewElasticsearchStore(config, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	if err := store.Initialize(ctx); err != nil {
//	    return err
//	}
//
//	failed, err := store.IndexDocuments(ctx, docs)
//
//	results, err := store.HybridSearch(ctx, vectorstore.HybridSearchOptions{
//	    KeywordQuery:  "dinner plans",
//	    TextEmbedding: queryVector,
//	    Filters:       vectorstore.Filters{"chat_id": "chat123"},
//	    Limit:         20,
//	})
//
// # Document shape
//
// Each indexed Document corresponds to one enriched chunk (§3.5): its
// formatted text, chat/sender/participant metadata, temporal facets, and the
// two optional dense vectors (text, image). Vectors are written but never
// returned from search — the "_source" exclude list strips them from every
// response.
//
// # Determinism
//
// Elasticsearch does not guarantee a deterministic hit order for tied
// scores. runSearch re-sorts every result set by (score descending, id
// ascending) before returning, matching the deterministic tie-break
// invariant required of C9.
//
// # Retry behavior
//
// Index creation in Initialize, GetDocument and every search go through
// retryOperation, an exponential-backoff retry loop that treats 502, 503,
// 504 and 429 responses, refused connections, EOF and network timeouts as
// transient and everything else (other 4xx/5xx, malformed mapping) as
// terminal. The other calls (existence checks, stats, refresh, clear,
// health check, bulk writes) are made once without retry.
package vectorstore
