// Package search implements the query builder and executor (C14): it
// takes a nlquery.ParsedQuery, resolves any person references through the
// chat graph (C11), obtains a query embedding from the text embedder
// (C7) when the query type needs one, composes a
// vectorstore.HybridSearchOptions (C9), and formats the ranked hits for
// display (§4.14).
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/localchat/chatindex/internal/chatgraph"
	"github.com/localchat/chatindex/internal/errkind"
	"github.com/localchat/chatindex/internal/logging"
	"github.com/localchat/chatindex/internal/nlquery"
	"github.com/localchat/chatindex/internal/vectorstore"
)

// DefaultLimit is applied when the caller does not specify one.
const DefaultLimit = 10

// Result is one formatted hit: the indexed document's display-relevant
// fields plus its rounded score (§4.14 — "timestamps, score rounded to
// two decimals").
type Result struct {
	ID           string
	Score        float64
	ChatName     string
	IsGroupChat  bool
	Participants []string
	Sender       string
	StartTime    time.Time
	EndTime      time.Time
	Text         string
	HasImage     bool
}

// Service executes parsed queries against the index store.
type Service struct {
	index        vectorstore.Store
	textEmbedder vectorstore.Embedder
	people       *chatgraph.Store
	logger       *logging.Logger
	loc          *time.Location
}

// New builds a Service. textEmbedder may be nil if the caller never
// expects a semantic/hybrid/image query type; such a query then falls
// back to a keyword-only search (mirrors the QueryParseFailed
// disposition, since an embedder outage is functionally the same
// degradation from the searcher's point of view).
func New(index vectorstore.Store, textEmbedder vectorstore.Embedder, people *chatgraph.Store, logger *logging.Logger, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{index: index, textEmbedder: textEmbedder, people: people, logger: logger, loc: loc}
}

// Search executes pq and returns formatted, score-descending results.
func (s *Service) Search(ctx context.Context, pq *nlquery.ParsedQuery, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	opts, forceHasImage, err := s.buildOptions(ctx, pq, limit)
	if err != nil {
		return nil, err
	}

	var hits []vectorstore.SearchResult
	if forceHasImage {
		if opts.Filters == nil {
			opts.Filters = vectorstore.Filters{}
		}
		opts.Filters["has_image"] = true
	}
	hits, err = s.index.HybridSearch(ctx, opts)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", errkind.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", vectorstore.ErrStoreUnavailable, err)
	}

	return formatResults(hits, s.loc), nil
}

// buildOptions resolves person references, obtains a query embedding when
// needed, and composes the filters/exclusions/boosts of opts. The second
// return value flags the image-query-type degradation documented in
// DESIGN.md: since C8 exposes only embedImage(path) (§4.8), there is no
// text-to-image vector to drive a true kNN image search, so an
// image-type query instead forces has_image=true into the filter set and
// falls back to the same text/keyword matching as any other query.
func (s *Service) buildOptions(ctx context.Context, pq *nlquery.ParsedQuery, limit int) (vectorstore.HybridSearchOptions, bool, error) {
	opts := vectorstore.HybridSearchOptions{
		KeywordQuery: pq.KeywordQuery,
		Limit:        limit,
		Filters:      vectorstore.Filters{},
	}

	filters, err := s.resolveFilters(pq)
	if err != nil {
		return opts, false, err
	}
	opts.Filters = filters
	opts.Exclusions = s.resolveExclusions(pq)
	opts.Boosts = toVectorstoreBoosts(pq.Boosts)

	forceHasImage := false
	needsVector := pq.QueryType == nlquery.QuerySemantic || pq.QueryType == nlquery.QueryHybrid || pq.QueryType == nlquery.QueryImage

	if pq.QueryType == nlquery.QueryImage {
		forceHasImage = true
	}

	if needsVector {
		if s.textEmbedder == nil {
			// Embedder unavailable: degrade to keyword-only, same
			// disposition as a parser failure (§7).
			if opts.KeywordQuery == "" {
				opts.KeywordQuery = pq.SemanticQuery
			}
			if s.logger != nil {
				s.logger.Warn(ctx, "no text embedder configured, degrading to keyword-only search")
			}
			return opts, forceHasImage, nil
		}

		queryText := pq.SemanticQuery
		if queryText == "" {
			queryText = pq.KeywordQuery
		}
		if queryText != "" {
			vec, err := s.textEmbedder.EmbedQuery(ctx, queryText)
			if err != nil {
				return opts, false, fmt.Errorf("%w: embedding query: %v", vectorstore.ErrEmbeddingFailed, err)
			}
			opts.TextEmbedding = vec
		}
	}

	return opts, forceHasImage, nil
}

// resolveFilters translates pq.Filters plus the from/with/about person
// references into a vectorstore.Filters map.
func (s *Service) resolveFilters(pq *nlquery.ParsedQuery) (vectorstore.Filters, error) {
	f := vectorstore.Filters{}

	sender := pq.Filters.Sender
	if pq.FromPerson != "" {
		name, err := s.resolvePersonName(pq.FromPerson)
		if err != nil {
			return nil, err
		}
		sender = name
	}
	if sender != "" {
		f["sender"] = sender
	}

	participants := append([]string(nil), pq.Filters.Participants...)
	for _, ref := range []string{pq.WithPerson, pq.AboutPerson} {
		if ref == "" {
			continue
		}
		name, err := s.resolvePersonName(ref)
		if err != nil {
			return nil, err
		}
		participants = append(participants, name)
	}
	if len(participants) > 0 {
		f["participants"] = participants
	}

	if pq.Filters.IsDM != nil {
		f["is_dm"] = *pq.Filters.IsDM
	}
	if pq.Filters.IsGroupChat != nil {
		f["is_group_chat"] = *pq.Filters.IsGroupChat
	}
	if pq.Filters.HasImage != nil {
		f["has_image"] = *pq.Filters.HasImage
	}
	if pq.Filters.Year != 0 {
		f["year"] = pq.Filters.Year
	}
	if pq.Filters.Month != 0 {
		f["month"] = pq.Filters.Month
	}
	if len(pq.Filters.Months) > 0 {
		f["month"] = pq.Filters.Months
	}
	if pq.Filters.DayOfWeek != "" {
		f["day_of_week"] = pq.Filters.DayOfWeek
	}
	if pq.Filters.HourGTE != nil && pq.Filters.HourLTE != nil {
		f["hour_of_day"] = intsToInterface(nlquery.ExpandHourWindow(*pq.Filters.HourGTE, *pq.Filters.HourLTE))
	}
	if pq.Filters.TimestampGTE != nil {
		f["start_timestamp_gte"] = *pq.Filters.TimestampGTE
	}
	if pq.Filters.TimestampLTE != nil {
		f["start_timestamp_lte"] = *pq.Filters.TimestampLTE
	}

	return f, nil
}

func (s *Service) resolveExclusions(pq *nlquery.ParsedQuery) vectorstore.Exclusions {
	ex := vectorstore.Exclusions{
		SenderNot: pq.Exclusions.SenderNot,
		ChatIDNot: pq.Exclusions.ChatNot,
	}
	if pq.Exclusions.IsDMWith != "" {
		if name, err := s.resolvePersonName(pq.Exclusions.IsDMWith); err == nil {
			ex.IsDMWith = name
		} else {
			ex.IsDMWith = pq.Exclusions.IsDMWith
		}
	}
	return ex
}

// resolvePersonName resolves a natural-language person reference to the
// chat graph's display name. An unresolved or ambiguous reference is not
// fatal to the search: it falls back to the raw reference text so the
// term filter still has something to match against (the alternative,
// failing the whole query, would be a worse experience than an
// occasionally too-narrow filter).
func (s *Service) resolvePersonName(ref string) (string, error) {
	if s.people == nil {
		return ref, nil
	}
	person, _, err := s.people.ResolvePersonByName(ref)
	if err != nil {
		return ref, nil
	}
	if person == nil {
		return ref, nil
	}
	return person.DisplayName, nil
}

func toVectorstoreBoosts(boosts []nlquery.Boost) []vectorstore.Boost {
	out := make([]vectorstore.Boost, 0, len(boosts))
	for _, b := range boosts {
		out = append(out, vectorstore.Boost{Field: b.Field, Value: b.Value, Score: b.Score})
	}
	return out
}

func intsToInterface(ints []int) []interface{} {
	out := make([]interface{}, len(ints))
	for i, v := range ints {
		out[i] = v
	}
	return out
}

// formatResults rounds scores to two decimals, renders timestamps in loc
// (the same zone temporal facets were derived in at index time), and
// sorts descending by score, breaking ties by document id ascending — the
// deterministic tie-break §4.9.6 requires.
func formatResults(hits []vectorstore.SearchResult, loc *time.Location) []Result {
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		d := h.Document
		results = append(results, Result{
			ID:           h.ID,
			Score:        roundTo2(h.Score),
			ChatName:     d.ChatName,
			IsGroupChat:  d.IsGroupChat,
			Participants: d.Participants,
			Sender:       d.Sender,
			StartTime:    time.Unix(d.StartTimestamp, 0).In(loc),
			EndTime:      time.Unix(d.EndTimestamp, 0).In(loc),
			Text:         d.Text,
			HasImage:     d.HasImage,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
