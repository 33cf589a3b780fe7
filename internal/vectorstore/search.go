package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultSearchLimit = 20

// HybridSearch composes BM25 keyword matching, cosine kNN over the text
// embedding, structured filters, exclusions and boosts into a single query
// (§4.9.2). At least one of KeywordQuery or TextEmbedding must be set, or
// the should clauses degenerate to filters-only and minimum_should_match
// is dropped to 0 so filters-only queries still return results.
func (s *ElasticsearchStore) HybridSearch(ctx context.Context, opts HybridSearchOptions) ([]SearchResult, error) {
	start := time.Now()
	defer func() { SearchDuration.WithLabelValues("hybrid").Observe(time.Since(start).Seconds()) }()

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	should := boostClauses(opts.Boosts)
	minShould := 0
	if opts.KeywordQuery != "" {
		should = append(should, map[string]interface{}{
			"match": map[string]interface{}{"text": map[string]interface{}{"query": opts.KeywordQuery}},
		})
		minShould = 1
	}

	body := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": boolBody(should, minShould, filterClauses(opts.Filters), exclusionClauses(opts.Exclusions)),
		},
		"_source": map[string]interface{}{"excludes": []string{"text_embedding", "image_embedding"}},
	}

	if len(opts.TextEmbedding) > 0 {
		body["knn"] = knnClause("text_embedding", opts.TextEmbedding, limit, filterClauses(opts.Filters), exclusionClauses(opts.Exclusions))
	}

	return s.runSearch(ctx, body)
}

// SemanticSearch is dense-vector-only search over the text embedding.
func (s *ElasticsearchStore) SemanticSearch(ctx context.Context, vector []float32, limit int, filters Filters) ([]SearchResult, error) {
	start := time.Now()
	defer func() { SearchDuration.WithLabelValues("semantic").Observe(time.Since(start).Seconds()) }()

	if limit <= 0 {
		limit = defaultSearchLimit
	}
	body := map[string]interface{}{
		"size":    limit,
		"knn":     knnClause("text_embedding", vector, limit, filterClauses(filters), nil),
		"_source": map[string]interface{}{"excludes": []string{"text_embedding", "image_embedding"}},
	}
	return s.runSearch(ctx, body)
}

// ImageSearch is dense-vector-only search over the image embedding,
// implicitly restricted to chunks carrying an image (§4.9.2 image variant).
func (s *ElasticsearchStore) ImageSearch(ctx context.Context, vector []float32, limit int, filters Filters) ([]SearchResult, error) {
	start := time.Now()
	defer func() { SearchDuration.WithLabelValues("image").Observe(time.Since(start).Seconds()) }()

	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if filters == nil {
		filters = Filters{}
	}
	filters["has_image"] = true

	body := map[string]interface{}{
		"size":    limit,
		"knn":     knnClause("image_embedding", vector, limit, filterClauses(filters), nil),
		"_source": map[string]interface{}{"excludes": []string{"text_embedding", "image_embedding"}},
	}
	return s.runSearch(ctx, body)
}

// KeywordSearch is BM25-only search.
func (s *ElasticsearchStore) KeywordSearch(ctx context.Context, query string, limit int, filters Filters) ([]SearchResult, error) {
	start := time.Now()
	defer func() { SearchDuration.WithLabelValues("keyword").Observe(time.Since(start).Seconds()) }()

	if limit <= 0 {
		limit = defaultSearchLimit
	}
	body := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": boolBody(
				[]map[string]interface{}{
					{"match": map[string]interface{}{"text": map[string]interface{}{"query": query}}},
				},
				1,
				filterClauses(filters),
				nil,
			),
		},
		"_source": map[string]interface{}{"excludes": []string{"text_embedding", "image_embedding"}},
	}
	return s.runSearch(ctx, body)
}

func boolBody(should []map[string]interface{}, minShould int, filter, mustNot []map[string]interface{}) map[string]interface{} {
	b := map[string]interface{}{}
	if len(should) > 0 {
		b["should"] = should
		b["minimum_should_match"] = minShould
	}
	if len(filter) > 0 {
		b["filter"] = filter
	}
	if len(mustNot) > 0 {
		b["must_not"] = mustNot
	}
	if len(b) == 0 {
		b["must"] = map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	return b
}

func knnClause(field string, vector []float32, k int, filter, mustNot []map[string]interface{}) map[string]interface{} {
	clause := map[string]interface{}{
		"field":          field,
		"query_vector":   vector,
		"k":              k,
		"num_candidates": k * 10,
	}
	var filters []map[string]interface{}
	filters = append(filters, filter...)
	if len(mustNot) > 0 {
		filters = append(filters, map[string]interface{}{
			"bool": map[string]interface{}{"must_not": mustNot},
		})
	}
	if len(filters) > 0 {
		clause["filter"] = map[string]interface{}{"bool": map[string]interface{}{"filter": filters}}
	}
	return clause
}

// runSearch executes a prebuilt search body, applying retry and decoding
// hits deterministically: Elasticsearch itself breaks score ties by
// internal doc order, so results are re-sorted here by (score desc, id
// asc) to satisfy the deterministic tie-break invariant (§4.9.6).
func (s *ElasticsearchStore) runSearch(ctx context.Context, body map[string]interface{}) ([]SearchResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling search body: %w", err)
	}

	var hits []SearchResult
	err = s.retryOperation(ctx, func() error {
		res, err := s.client.Search(
			s.client.Search.WithContext(ctx),
			s.client.Search.WithIndex(s.config.IndexName),
			s.client.Search.WithBody(bytes.NewReader(payload)),
		)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		defer res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("search request failed: %s", res.String())
		}

		var parsed struct {
			Hits struct {
				Hits []struct {
					ID     string  `json:"_id"`
					Score  float64 `json:"_score"`
					Source docBody `json:"_source"`
				} `json:"hits"`
			} `json:"hits"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decoding search response: %w", err)
		}

		hits = make([]SearchResult, 0, len(parsed.Hits.Hits))
		for _, h := range parsed.Hits.Hits {
			hits = append(hits, fromDocBody(h.ID, h.Source, h.Score))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortResultsDeterministic(hits)
	s.logger.Debug("search completed", zap.Int("hits", len(hits)))
	return hits, nil
}

func sortResultsDeterministic(hits []SearchResult) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0; j-- {
			a, b := hits[j-1], hits[j]
			if a.Score > b.Score || (a.Score == b.Score && a.ID <= b.ID) {
				break
			}
			hits[j-1], hits[j] = hits[j], hits[j-1]
		}
	}
}
