package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"go.uber.org/zap"
)

// ElasticsearchStore implements Store (C9) against a single Elasticsearch
// index, composing BM25, cosine-similarity kNN, structured filters,
// exclusions and boosts in one query body per §4.9.
//
// Client shape (config validation, retryOperation, isTransientError) is
// translated from the teacher's internal/qdrant/grpc_client.go: the same
// exponential-backoff retry loop, reapplied to HTTP status codes and
// network errors instead of gRPC status codes.
type ElasticsearchStore struct {
	client *elasticsearch.Client
	bulk   esutil.BulkIndexer
	config *ClientConfig
	logger *zap.Logger

	mu            sync.Mutex
	bulkFailed    map[string]struct{}
}

// NewElasticsearchStore creates a new Elasticsearch-backed index store.
func NewElasticsearchStore(config *ClientConfig, logger *zap.Logger) (*ElasticsearchStore, error) {
	if config == nil {
		config = DefaultClientConfig()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cfg := elasticsearch.Config{
		Addresses: config.Addresses,
	}
	if config.APIKey != "" {
		cfg.APIKey = config.APIKey
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: creating elasticsearch client: %v", ErrStoreUnavailable, err)
	}

	store := &ElasticsearchStore{
		client:     client,
		config:     config,
		logger:     logger,
		bulkFailed: make(map[string]struct{}),
	}

	bulk, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:         config.IndexName,
		Client:        client,
		NumWorkers:    2,
		FlushBytes:    5 * 1024 * 1024,
		FlushInterval: config.BulkFlushInterval,
		OnError: func(_ context.Context, err error) {
			store.logger.Error("bulk indexer error", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating bulk indexer: %w", err)
	}
	store.bulk = bulk

	return store, nil
}

// Initialize creates the index with its mapping if absent (§4.9.2). Safe to
// call repeatedly.
func (s *ElasticsearchStore) Initialize(ctx context.Context) error {
	exists, err := s.indexExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body, err := json.Marshal(indexMapping(s.config.TextDimension, s.config.ImageDimension))
	if err != nil {
		return fmt.Errorf("marshaling mapping: %w", err)
	}

	return s.retryOperation(ctx, func() error {
		res, err := s.client.Indices.Create(
			s.config.IndexName,
			s.client.Indices.Create.WithContext(ctx),
			s.client.Indices.Create.WithBody(bytes.NewReader(body)),
		)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		defer res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("creating index: %s", res.String())
		}
		return nil
	})
}

func (s *ElasticsearchStore) indexExists(ctx context.Context) (bool, error) {
	res, err := s.client.Indices.Exists([]string{s.config.IndexName}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer res.Body.Close()
	return res.StatusCode == 200, nil
}

// indexMapping returns the fixed document schema of §4.9.1: an analyzed
// and keyword variant of text, keyword/boolean/integer/date filter fields,
// and two nullable cosine-indexed dense vectors.
func indexMapping(textDim, imageDim int) map[string]interface{} {
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"text": map[string]interface{}{
					"type":     "text",
					"analyzer": "english",
					"fields": map[string]interface{}{
						"keyword": map[string]interface{}{"type": "keyword", "ignore_above": 8192},
					},
				},
				"chat_id":           map[string]interface{}{"type": "keyword"},
				"chat_name":         map[string]interface{}{"type": "keyword"},
				"is_group_chat":     map[string]interface{}{"type": "boolean"},
				"is_dm":             map[string]interface{}{"type": "boolean"},
				"sender":            map[string]interface{}{"type": "keyword"},
				"sender_is_me":      map[string]interface{}{"type": "boolean"},
				"participants":      map[string]interface{}{"type": "keyword"},
				"participant_count": map[string]interface{}{"type": "integer"},
				"start_timestamp":   map[string]interface{}{"type": "date", "format": "epoch_second"},
				"end_timestamp":     map[string]interface{}{"type": "date", "format": "epoch_second"},
				"year":              map[string]interface{}{"type": "integer"},
				"month":             map[string]interface{}{"type": "integer"},
				"day_of_week":       map[string]interface{}{"type": "keyword"},
				"hour_of_day":       map[string]interface{}{"type": "integer"},
				"has_attachment":    map[string]interface{}{"type": "boolean"},
				"has_image":         map[string]interface{}{"type": "boolean"},
				"text_embedding": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       textDim,
					"similarity": "cosine",
					"index":      true,
				},
				"image_embedding": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       imageDim,
					"similarity": "cosine",
					"index":      true,
				},
			},
		},
	}
}

// docBody is the on-wire document shape, vectors included on write and
// stripped from search responses (stored vectors are never returned, per
// §4.9.2).
type docBody struct {
	Text             string    `json:"text"`
	ChatID           string    `json:"chat_id"`
	ChatName         string    `json:"chat_name,omitempty"`
	IsGroupChat      bool      `json:"is_group_chat"`
	IsDM             bool      `json:"is_dm"`
	Sender           string    `json:"sender"`
	SenderIsMe       bool      `json:"sender_is_me"`
	Participants     []string  `json:"participants"`
	ParticipantCount int       `json:"participant_count"`
	StartTimestamp   int64     `json:"start_timestamp"`
	EndTimestamp     int64     `json:"end_timestamp"`
	Year             int       `json:"year"`
	Month            int       `json:"month"`
	DayOfWeek        string    `json:"day_of_week"`
	HourOfDay        int       `json:"hour_of_day"`
	HasAttachment    bool      `json:"has_attachment"`
	HasImage         bool      `json:"has_image"`
	TextEmbedding    []float32 `json:"text_embedding,omitempty"`
	ImageEmbedding   []float32 `json:"image_embedding,omitempty"`
}

func toDocBody(d Document) docBody {
	return docBody{
		Text: d.Text, ChatID: d.ChatID, ChatName: d.ChatName,
		IsGroupChat: d.IsGroupChat, IsDM: d.IsDM, Sender: d.Sender,
		SenderIsMe: d.SenderIsMe, Participants: d.Participants,
		ParticipantCount: d.ParticipantCount, StartTimestamp: d.StartTimestamp,
		EndTimestamp: d.EndTimestamp, Year: d.Year, Month: d.Month,
		DayOfWeek: d.DayOfWeek, HourOfDay: d.HourOfDay,
		HasAttachment: d.HasAttachment, HasImage: d.HasImage,
		TextEmbedding: d.TextEmbedding, ImageEmbedding: d.ImageEmbedding,
	}
}

func fromDocBody(id string, b docBody, score float64) SearchResult {
	return SearchResult{
		ID:    id,
		Score: score,
		Document: Document{
			ID: id, Text: b.Text, ChatID: b.ChatID, ChatName: b.ChatName,
			IsGroupChat: b.IsGroupChat, IsDM: b.IsDM, Sender: b.Sender,
			SenderIsMe: b.SenderIsMe, Participants: b.Participants,
			ParticipantCount: b.ParticipantCount, StartTimestamp: b.StartTimestamp,
			EndTimestamp: b.EndTimestamp, Year: b.Year, Month: b.Month,
			DayOfWeek: b.DayOfWeek, HourOfDay: b.HourOfDay,
			HasAttachment: b.HasAttachment, HasImage: b.HasImage,
		},
	}
}

// IndexDocuments bulk insert/replaces documents by id (§4.9.2). Batch size
// default 100 per flush is enforced by esutil.BulkIndexer's FlushBytes plus
// an explicit doc-count flush below; partial failures are logged and
// collected, not treated as a batch abort.
func (s *ElasticsearchStore) IndexDocuments(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	s.mu.Lock()
	s.bulkFailed = make(map[string]struct{})
	s.mu.Unlock()

	var loggedFailures int

	for i, d := range docs {
		body, err := json.Marshal(toDocBody(d))
		if err != nil {
			return nil, fmt.Errorf("marshaling document %s: %w", d.ID, err)
		}
		docID := d.ID
		err = s.bulk.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: docID,
			Body:       bytes.NewReader(body),
			OnFailure: func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				s.mu.Lock()
				s.bulkFailed[item.DocumentID] = struct{}{}
				loggedFailures++
				shouldLog := loggedFailures <= 3
				s.mu.Unlock()
				if shouldLog {
					if err != nil {
						s.logger.Error("bulk index failure", zap.String("id", item.DocumentID), zap.Error(err))
					} else {
						s.logger.Error("bulk index failure", zap.String("id", item.DocumentID), zap.String("error_type", res.Error.Type))
					}
				}
				BulkPartialFailuresTotal.Inc()
			},
		})
		if err != nil {
			return nil, fmt.Errorf("queueing document %s: %w", d.ID, err)
		}

		if (i+1)%s.config.BulkFlushDocs == 0 {
			if err := s.bulk.Close(ctx); err != nil {
				return nil, fmt.Errorf("flushing bulk batch: %w", err)
			}
			s.refresh(ctx)
		}
	}

	if err := s.bulk.Close(ctx); err != nil {
		return nil, fmt.Errorf("flushing final bulk batch: %w", err)
	}
	s.refresh(ctx)

	s.mu.Lock()
	failed := make([]string, 0, len(s.bulkFailed))
	for id := range s.bulkFailed {
		failed = append(failed, id)
	}
	s.mu.Unlock()

	succeeded := len(docs) - len(failed)
	if succeeded > 0 {
		DocumentsIndexedTotal.Add(float64(succeeded))
	}

	return failed, nil
}

func (s *ElasticsearchStore) refresh(ctx context.Context) {
	res, err := s.client.Indices.Refresh(
		s.client.Indices.Refresh.WithContext(ctx),
		s.client.Indices.Refresh.WithIndex(s.config.IndexName),
	)
	if err != nil {
		s.logger.Warn("index refresh failed", zap.Error(err))
		return
	}
	defer res.Body.Close()
}

// GetDocument fetches a single document by id.
func (s *ElasticsearchStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	var res *esapi.Response
	err := s.retryOperation(ctx, func() error {
		r, err := s.client.Get(s.config.IndexName, id, s.client.Get.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		return nil, ErrIndexNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("getting document %s: %s", id, res.String())
	}

	var parsed struct {
		Source docBody `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	doc := fromDocBody(id, parsed.Source, 0).Document
	return &doc, nil
}

// DocumentExists reports whether id is present without fetching it.
func (s *ElasticsearchStore) DocumentExists(ctx context.Context, id string) (bool, error) {
	res, err := s.client.Exists(s.config.IndexName, id, s.client.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer res.Body.Close()
	return res.StatusCode == 200, nil
}

// GetStats returns document count and index size.
func (s *ElasticsearchStore) GetStats(ctx context.Context) (*Stats, error) {
	res, err := s.client.Indices.Stats(
		s.client.Indices.Stats.WithContext(ctx),
		s.client.Indices.Stats.WithIndex(s.config.IndexName),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("fetching stats: %s", res.String())
	}

	var parsed struct {
		Indices map[string]struct {
			Primaries struct {
				Docs struct {
					Count int64 `json:"count"`
				} `json:"docs"`
				Store struct {
					SizeInBytes int64 `json:"size_in_bytes"`
				} `json:"store"`
			} `json:"primaries"`
		} `json:"indices"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding stats: %w", err)
	}
	idx, ok := parsed.Indices[s.config.IndexName]
	if !ok {
		return &Stats{}, nil
	}
	return &Stats{
		DocumentCount:  idx.Primaries.Docs.Count,
		IndexSizeBytes: idx.Primaries.Store.SizeInBytes,
	}, nil
}

// Clear drops the index outright. Requires re-Initialize.
func (s *ElasticsearchStore) Clear(ctx context.Context) error {
	res, err := s.client.Indices.Delete([]string{s.config.IndexName}, s.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("deleting index: %s", res.String())
	}
	return nil
}

// HealthCheck reports whether the cluster is reachable and not red.
func (s *ElasticsearchStore) HealthCheck(ctx context.Context) error {
	start := time.Now()
	res, err := s.client.Cluster.Health(
		s.client.Cluster.Health.WithContext(ctx),
		s.client.Cluster.Health.WithTimeout(s.config.RequestTimeout),
	)
	HealthCheckDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		RecordHealthCheckResult(false)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		RecordHealthCheckResult(false)
		return fmt.Errorf("%w: %s", ErrStoreUnavailable, res.String())
	}

	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		RecordHealthCheckResult(false)
		return fmt.Errorf("decoding health response: %w", err)
	}
	if parsed.Status == "red" {
		RecordHealthCheckResult(false)
		return fmt.Errorf("%w: cluster status red", ErrStoreUnavailable)
	}
	RecordHealthCheckResult(true)
	return nil
}

// Close releases resources held by the store client.
func (s *ElasticsearchStore) Close() error {
	return s.bulk.Close(context.Background())
}

// retryOperation retries an operation with exponential backoff, translated
// from the teacher's qdrant.GRPCClient.retryOperation: same loop shape,
// isTransientError reclassified for HTTP/network errors instead of gRPC
// status codes.
func (s *ElasticsearchStore) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransientError(err) {
			return err
		}
		if attempt == s.config.RetryAttempts {
			break
		}

		s.logger.Debug("retrying operation after transient error",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", s.config.RetryAttempts),
			zap.Error(err),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation canceled: %w", ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", s.config.RetryAttempts, lastErr)
}

// isTransientError classifies network timeouts, refused connections, EOF
// and 502/503/504/429 responses as retryable; other statuses (4xx client
// errors such as a bad mapping or malformed query, and 500) are not.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if ok := asNetError(err, &netErr); ok {
		return netErr.Timeout()
	}
	msg := err.Error()
	for _, code := range []string{"503", "502", "504", "429", "connection refused", "EOF"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

func asNetError(err error, target *net.Error) bool {
	for err != nil {
		if ne, ok := err.(net.Error); ok {
			*target = ne
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
