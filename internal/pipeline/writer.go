package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/finnews/internal/db"
	"horse.fit/finnews/internal/feed"
)

const (
	DefaultChunkSize  = 50
	DefaultMaxRetries = 1
	DefaultRetryDelay = 2 * time.Second
)

// ArticleStore is the slice of the persistent store the writer needs.
// *db.Pool satisfies it.
type ArticleStore interface {
	ExistingIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error)
	InsertIgnore(ctx context.Context, rows []db.ArticleRow) ([]int64, error)
}

type WriterOptions struct {
	ChunkSize  int
	MaxRetries int
	RetryDelay time.Duration
	// AbortOnPermanent abandons the remaining chunks after a
	// non-transient chunk failure instead of continuing past it.
	AbortOnPermanent bool
	// IsTransient classifies store errors into the rate-limit class;
	// defaults to db.IsTransient.
	IsTransient func(error) bool
}

// Writer persists candidate items exactly once: a single bulk existence
// check, then chunked insert-or-ignore writes keyed on the id and
// content-fingerprint uniqueness constraints. Calling it twice with the same
// candidates inserts nothing the second time.
type Writer struct {
	store  ArticleStore
	logger zerolog.Logger
	opts   WriterOptions
}

type WriteResult struct {
	New            int
	Existing       int
	Chunks         int
	ChunkDurations []time.Duration
	Errors         []error
	// Inserted holds the items actually persisted this call, in batch
	// order, for the enrichment stage.
	Inserted []feed.Item
}

func NewWriter(store ArticleStore, logger zerolog.Logger, opts WriterOptions) *Writer {
	if opts.ChunkSize < 1 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.IsTransient == nil {
		opts.IsTransient = db.IsTransient
	}
	return &Writer{
		store:  store,
		logger: logger,
		opts:   opts,
	}
}

// Persist writes the unique candidates and reports per-chunk outcomes. Only
// the bulk existence check is structural: its failure aborts the call. Chunk
// failures are isolated and recorded.
func (w *Writer) Persist(ctx context.Context, items []feed.Item) (WriteResult, error) {
	result := WriteResult{}
	if len(items) == 0 {
		return result, nil
	}

	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}

	existing, err := w.store.ExistingIDs(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("bulk existence check: %w", err)
	}

	candidates := make([]feed.Item, 0, len(items))
	for _, item := range items {
		if _, ok := existing[item.ID]; ok {
			result.Existing++
			continue
		}
		candidates = append(candidates, item)
	}

	if len(candidates) == 0 {
		return result, nil
	}

	chunks := chunkItems(candidates, w.opts.ChunkSize)
	result.Chunks = len(chunks)
	result.ChunkDurations = make([]time.Duration, 0, len(chunks))

	for chunkIndex, chunk := range chunks {
		started := time.Now()
		insertedIDs, chunkErr := w.writeChunk(ctx, chunk)
		result.ChunkDurations = append(result.ChunkDurations, time.Since(started))

		if chunkErr != nil {
			result.Errors = append(result.Errors, fmt.Errorf("chunk %d/%d: %w", chunkIndex+1, len(chunks), chunkErr))
			if !w.opts.IsTransient(chunkErr) && w.opts.AbortOnPermanent {
				w.logger.Error().Err(chunkErr).Int("chunk", chunkIndex+1).Msg("permanent store error, abandoning remaining chunks")
				break
			}
			w.logger.Warn().Err(chunkErr).Int("chunk", chunkIndex+1).Int("items", len(chunk)).Msg("chunk skipped")
			continue
		}

		insertedSet := make(map[int64]struct{}, len(insertedIDs))
		for _, id := range insertedIDs {
			insertedSet[id] = struct{}{}
		}
		for _, item := range chunk {
			if _, ok := insertedSet[item.ID]; ok {
				result.Inserted = append(result.Inserted, item)
			}
		}
		result.New += len(insertedIDs)
	}

	return result, nil
}

func (w *Writer) writeChunk(ctx context.Context, chunk []feed.Item) ([]int64, error) {
	rows := make([]db.ArticleRow, len(chunk))
	for i, item := range chunk {
		rows[i] = db.ArticleRow{
			ID:          item.ID,
			Text:        item.Text,
			Source:      item.Source,
			PublishedAt: item.PublishedAt,
			ContentHash: item.ContentHash,
		}
	}

	var insertedIDs []int64
	err := WithRetry(ctx, w.opts.MaxRetries, w.opts.RetryDelay, w.opts.IsTransient, func(ctx context.Context) error {
		ids, insertErr := w.store.InsertIgnore(ctx, rows)
		if insertErr != nil {
			return insertErr
		}
		insertedIDs = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	return insertedIDs, nil
}

func chunkItems(items []feed.Item, size int) [][]feed.Item {
	chunks := make([][]feed.Item, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
