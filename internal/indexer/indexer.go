// Package indexer drives the batched read-chunk-enrich-embed-write loop
// (C12) against the platform message store, the chunker/enricher, the
// embedding providers, the index store, and the state store.
//
// There is no single teacher file that plays this role; the shape is
// assembled from the teacher's ingestion pipeline conventions — a small
// driver struct holding its collaborators by interface, a Run method that
// returns a result value rather than logging-and-exiting, and a
// HealthMonitor-style Healthy()/LastError() pair (internal/vectorstore's
// health.go) so the CLI can report store reachability without re-probing.
package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/localchat/chatindex/internal/chunk"
	"github.com/localchat/chatindex/internal/contacts"
	"github.com/localchat/chatindex/internal/embeddings"
	"github.com/localchat/chatindex/internal/errkind"
	"github.com/localchat/chatindex/internal/indexstate"
	"github.com/localchat/chatindex/internal/logging"
	"github.com/localchat/chatindex/internal/platformdb"
	"github.com/localchat/chatindex/internal/vectorstore"

	"go.uber.org/zap"
)

// DefaultBatchSize is the number of messages read per iteration of the run
// loop when Config.BatchSize is unset (§4.12.1 step 4).
const DefaultBatchSize = 10000

// Config parameterizes one call to Run.
type Config struct {
	// FullReindex resets C10 and clears C9 before reading, per §4.12.1 step 2.
	FullReindex bool

	// BatchSize bounds messages read per iteration. Defaults to
	// DefaultBatchSize when <= 0.
	BatchSize int

	// MaxMessages caps the total number of messages processed across the
	// whole run. Zero means unbounded.
	MaxMessages int

	// Location is the time zone temporal facets are derived in (§4.6).
	// Defaults to time.Local.
	Location *time.Location
}

// Result summarizes one completed (or partially completed, on error) run.
type Result struct {
	MessagesProcessed int
	ChunksIndexed     int
	Duration          time.Duration
}

// Indexer owns the collaborators of one indexing run. ImageEmbedder is
// optional: a nil value disables image-vector generation entirely while
// has_image/has_attachment are still computed from attachment presence.
type Indexer struct {
	messages      *platformdb.Store
	state         *indexstate.Store
	index         vectorstore.Store
	textEmbedder  embeddings.Provider
	imageEmbedder *embeddings.ImageEmbedder
	resolver      *contacts.Resolver
	logger        *logging.Logger

	mu      sync.Mutex
	healthy bool
	lastErr error
}

// New constructs an Indexer from its collaborators.
func New(
	messages *platformdb.Store,
	state *indexstate.Store,
	index vectorstore.Store,
	textEmbedder embeddings.Provider,
	imageEmbedder *embeddings.ImageEmbedder,
	resolver *contacts.Resolver,
	logger *logging.Logger,
) *Indexer {
	return &Indexer{
		messages:      messages,
		state:         state,
		index:         index,
		textEmbedder:  textEmbedder,
		imageEmbedder: imageEmbedder,
		resolver:      resolver,
		logger:        logger,
	}
}

// Healthy reports whether the index store was reachable as of the most
// recent health check or failing operation.
func (ix *Indexer) Healthy() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.healthy
}

// LastError returns the error that most recently flipped Healthy to false,
// or nil if the last observation was healthy.
func (ix *Indexer) LastError() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.lastErr
}

func (ix *Indexer) setHealth(healthy bool, err error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.healthy = healthy
	ix.lastErr = err
}

// Run executes one indexing pass per §4.12.1 and returns the counts and
// wall-clock duration of whatever portion completed. A non-nil error means
// the run stopped short; Result still reflects work committed before the
// failure, since every batch's writes are durable before the loop advances.
func (ix *Indexer) Run(ctx context.Context, cfg Config) (Result, error) {
	start := time.Now()

	if err := ix.index.HealthCheck(ctx); err != nil {
		wrapped := fmt.Errorf("%w: index store health check: %w", vectorstore.ErrStoreUnavailable, err)
		ix.setHealth(false, wrapped)
		return Result{}, wrapped
	}
	ix.setHealth(true, nil)

	if err := ix.index.Initialize(ctx); err != nil {
		return Result{}, fmt.Errorf("initializing index store: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	if cfg.FullReindex {
		ix.logger.Info(ctx, "full reindex requested: resetting state and clearing index")
		if err := ix.state.Reset(); err != nil {
			return Result{}, fmt.Errorf("resetting state store: %w", err)
		}
		if err := ix.index.Clear(ctx); err != nil {
			return Result{}, fmt.Errorf("clearing index store: %w", err)
		}
		if err := ix.index.Initialize(ctx); err != nil {
			return Result{}, fmt.Errorf("re-initializing index store after clear: %w", err)
		}
	}

	st, err := ix.state.GetState()
	if err != nil {
		return Result{}, fmt.Errorf("reading indexing state: %w", err)
	}

	existingHashes, err := ix.state.GetIndexedChunkHashes()
	if err != nil {
		return Result{}, fmt.Errorf("loading indexed chunk hashes: %w", err)
	}

	cumulativeMessages := st.TotalMessagesIndexed
	cumulativeChunks := st.TotalChunksCreated
	lastRowID := st.LastMessageRowID

	var processedThisRun, chunksThisRun int

	for {
		select {
		case <-ctx.Done():
			return Result{MessagesProcessed: processedThisRun, ChunksIndexed: chunksThisRun, Duration: time.Since(start)}, ctx.Err()
		default:
		}

		readLimit := batchSize
		if cfg.MaxMessages > 0 {
			remaining := cfg.MaxMessages - processedThisRun
			if remaining <= 0 {
				break
			}
			if remaining < readLimit {
				readLimit = remaining
			}
		}

		batch, lastScannedRowID, rawCount, err := ix.messages.ReadMessages(lastRowID, readLimit)
		if err != nil {
			wrapped := fmt.Errorf("%w: reading message batch: %w", errkind.ErrMessageStoreUnreadable, err)
			ix.setHealth(false, wrapped)
			return Result{MessagesProcessed: processedThisRun, ChunksIndexed: chunksThisRun, Duration: time.Since(start)}, wrapped
		}
		if rawCount == 0 {
			break
		}

		chunksInBatch := splitByChat(batch, ix.resolver)
		chunksInBatch = chunk.Dedup(chunksInBatch, existingHashes)

		var indexedThisBatch int
		if len(chunksInBatch) > 0 {
			indexedThisBatch, err = ix.indexChunks(ctx, chunksInBatch, loc)
			if err != nil {
				ix.setHealth(false, err)
				return Result{MessagesProcessed: processedThisRun, ChunksIndexed: chunksThisRun, Duration: time.Since(start)}, err
			}
		}

		cumulativeChunks += int64(indexedThisBatch)
		cumulativeMessages += int64(len(batch))
		processedThisRun += len(batch)
		chunksThisRun += indexedThisBatch
		// Advance off the raw scan high-water mark, not the last surviving
		// message's rowid: a window can filter its trailing rows away
		// entirely (e.g. tapbacks with no text) without that meaning there
		// is nothing left to read.
		lastRowID = lastScannedRowID

		now := indexstate.NowUnix()
		if err := ix.state.UpdateState(indexstate.StateUpdate{
			LastMessageRowID:     &lastRowID,
			LastIndexedAt:        &now,
			TotalMessagesIndexed: &cumulativeMessages,
			TotalChunksCreated:   &cumulativeChunks,
		}); err != nil {
			return Result{MessagesProcessed: processedThisRun, ChunksIndexed: chunksThisRun, Duration: time.Since(start)}, fmt.Errorf("updating indexing state: %w", err)
		}

		ix.logger.Info(ctx, "indexed batch",
			zap.Int("messages", len(batch)),
			zap.Int("raw_rows_scanned", rawCount),
			zap.Int("chunks", indexedThisBatch),
			zap.Int64("last_message_rowid", lastRowID))

		// rawCount, not len(batch), is the end-of-data signal: a filtered
		// window can return fewer surviving messages than readLimit while
		// more unread rows remain past lastScannedRowID.
		if rawCount < readLimit {
			break
		}
		if cfg.MaxMessages > 0 && processedThisRun >= cfg.MaxMessages {
			break
		}
	}

	ix.setHealth(true, nil)
	return Result{
		MessagesProcessed: processedThisRun,
		ChunksIndexed:     chunksThisRun,
		Duration:          time.Since(start),
	}, nil
}

// indexChunks enriches, embeds, and bulk-writes one batch's surviving
// chunks, then records them in C10. Returns the number of chunks actually
// recorded (excludes any the index store reported as failed).
func (ix *Indexer) indexChunks(ctx context.Context, chunks []chunk.Chunk, loc *time.Location) (int, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := ix.embedWithRetry(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("%w: embedding chunk batch: %w", errkind.ErrEmbeddingTransient, err)
	}

	docs := make([]vectorstore.Document, 0, len(chunks))
	for i, c := range chunks {
		hasAttachment, hasImage, imageVector := ix.attachmentFacets(ctx, c)
		doc := chunk.Enrich(c, loc, hasAttachment, hasImage)
		doc.TextEmbedding = vectors[i]
		doc.ImageEmbedding = imageVector
		docs = append(docs, doc)
	}

	failedIDs, err := ix.index.IndexDocuments(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("bulk writing documents: %w", err)
	}
	failed := make(map[string]struct{}, len(failedIDs))
	for _, id := range failedIDs {
		failed[id] = struct{}{}
	}

	now := indexstate.NowUnix()
	records := make([]indexstate.ChunkRecord, 0, len(docs))
	for _, doc := range docs {
		if _, bad := failed[doc.ID]; bad {
			// Per §7 BulkPartialFailure: not recorded, so the next run
			// retries this chunk from its still-unindexed source rows.
			continue
		}
		records = append(records, indexstate.ChunkRecord{
			ChunkHash:     doc.ID,
			MessageRowIDs: doc.MessageRowIDs,
			DocumentID:    doc.ID,
			CreatedAt:     now,
		})
	}

	if err := ix.state.RecordChunks(records); err != nil {
		return 0, fmt.Errorf("recording indexed chunks: %w", err)
	}

	return len(records), nil
}

// embedWithRetry retries the batch once, after a backoff delay, on failure
// per §7's EmbeddingTransient disposition, then gives up.
func (ix *Indexer) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	const retryBackoff = 200 * time.Millisecond

	vectors, err := ix.textEmbedder.EmbedDocuments(ctx, texts)
	if err == nil {
		return vectors, nil
	}
	ix.logger.Warn(ctx, "embedding batch failed, retrying once", zap.Error(err))
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(retryBackoff):
	}
	return ix.textEmbedder.EmbedDocuments(ctx, texts)
}

// attachmentFacets reports has_attachment/has_image for a chunk and, when
// an image embedder is configured and at least one image is present,
// attempts to embed a representative image (the first image attachment
// found, ordered by message row id then attachment row id). A per-image
// embedding failure yields a nil vector while has_image stays true (§4.8).
func (ix *Indexer) attachmentFacets(ctx context.Context, c chunk.Chunk) (hasAttachment, hasImage bool, imageVector []float32) {
	for _, rowID := range c.MessageRowIDs {
		images, err := ix.messages.GetImagesForMessage(rowID)
		if err != nil || len(images) == 0 {
			continue
		}
		hasAttachment, hasImage = true, true
		if imageVector == nil && ix.imageEmbedder != nil {
			v, err := ix.imageEmbedder.EmbedImage(ctx, images[0].Path)
			if err == nil && v != nil {
				imageVector = v
			}
		}
	}
	return hasAttachment, hasImage, imageVector
}

// splitByChat groups a row-id-ordered batch by chat identifier (preserving
// first-seen order for determinism) and runs C5's chunker over each group
// independently, since Split assumes its input already belongs to one chat
// (§4.5: "group by chat identifier" happens here, before chunking).
func splitByChat(batch []platformdb.RawMessage, resolver *contacts.Resolver) []chunk.Chunk {
	order := make([]string, 0)
	groups := make(map[string][]platformdb.RawMessage)
	for _, m := range batch {
		if _, ok := groups[m.ChatIdentifier]; !ok {
			order = append(order, m.ChatIdentifier)
		}
		groups[m.ChatIdentifier] = append(groups[m.ChatIdentifier], m)
	}

	var all []chunk.Chunk
	for _, chatID := range order {
		all = append(all, chunk.Split(groups[chatID], resolver)...)
	}
	return all
}
