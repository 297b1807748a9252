package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/finnews/internal/db"
	"horse.fit/finnews/internal/feed"
)

// fakeStore implements ArticleStore in memory, honoring both uniqueness
// constraints: the primary key and the non-null content-hash index.
// failOnCall, when positive, fails exactly that InsertIgnore invocation
// (1-based) with failErr.
type fakeStore struct {
	mu         sync.Mutex
	rows       map[int64]db.ArticleRow
	hashes     map[string]struct{}
	calls      int
	failOnCall int
	failErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:   make(map[int64]db.ArticleRow),
		hashes: make(map[string]struct{}),
	}
}

func (s *fakeStore) ExistingIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := make(map[int64]struct{})
	for _, id := range ids {
		if _, ok := s.rows[id]; ok {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}

func (s *fakeStore) InsertIgnore(ctx context.Context, rows []db.ArticleRow) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failOnCall > 0 && s.calls == s.failOnCall {
		return nil, s.failErr
	}
	var inserted []int64
	for _, row := range rows {
		if _, ok := s.rows[row.ID]; ok {
			continue
		}
		if row.ContentHash != "" {
			if _, ok := s.hashes[row.ContentHash]; ok {
				continue
			}
			s.hashes[row.ContentHash] = struct{}{}
		}
		s.rows[row.ID] = row
		inserted = append(inserted, row.ID)
	}
	return inserted, nil
}

func makeItems(n int) []feed.Item {
	items := make([]feed.Item, n)
	for i := range items {
		items[i] = feed.Item{
			ID:          int64(i + 1),
			Text:        "article text",
			Source:      "markets",
			PublishedAt: time.Date(2026, 3, 13, 10, 0, 0, 0, time.UTC),
		}
	}
	return items
}

func TestPersist_ChunkCount(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	writer := NewWriter(store, zerolog.Nop(), WriterOptions{ChunkSize: 10})

	result, err := writer.Persist(context.Background(), makeItems(23))
	if err != nil {
		t.Fatalf("Persist returned error: %v", err)
	}
	if result.Chunks != 3 {
		t.Fatalf("expected ceil(23/10)=3 chunks, got %d", result.Chunks)
	}
	if result.New != 23 {
		t.Fatalf("expected 23 new rows, got %d", result.New)
	}
	if len(result.ChunkDurations) != 3 {
		t.Fatalf("expected 3 chunk durations, got %d", len(result.ChunkDurations))
	}
}

func TestPersist_SecondCallIsNoOp(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	writer := NewWriter(store, zerolog.Nop(), WriterOptions{ChunkSize: 10})
	items := makeItems(8)

	first, err := writer.Persist(context.Background(), items)
	if err != nil {
		t.Fatalf("first Persist returned error: %v", err)
	}
	if first.New != 8 || first.Existing != 0 {
		t.Fatalf("first call: new=%d existing=%d, want 8/0", first.New, first.Existing)
	}

	second, err := writer.Persist(context.Background(), items)
	if err != nil {
		t.Fatalf("second Persist returned error: %v", err)
	}
	if second.New != 0 {
		t.Fatalf("second call inserted %d rows, want 0", second.New)
	}
	if second.Existing != 8 {
		t.Fatalf("second call reported %d existing, want 8", second.Existing)
	}
	if second.Chunks != 0 {
		t.Fatalf("second call wrote %d chunks, want 0", second.Chunks)
	}
}

func TestPersist_HistoricalFingerprintCollisionSkippedSilently(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	writer := NewWriter(store, zerolog.Nop(), WriterOptions{ChunkSize: 10})

	published := time.Date(2026, 3, 13, 10, 0, 0, 0, time.UTC)
	original := feed.Item{ID: 1, Text: "RBI holds repo rate", Source: "alpha", PublishedAt: published, ContentHash: "fp-1"}

	first, err := writer.Persist(context.Background(), []feed.Item{original})
	if err != nil {
		t.Fatalf("first Persist returned error: %v", err)
	}
	if first.New != 1 {
		t.Fatalf("first call inserted %d, want 1", first.New)
	}

	// A later cycle surfaces the same headline under a different id: the
	// existence check passes but the content-hash index rejects the row.
	retold := feed.Item{ID: 2, Text: "RBI Holds Repo-Rate!", Source: "beta", PublishedAt: published, ContentHash: "fp-1"}
	fresh := feed.Item{ID: 3, Text: "Gold hits record high", Source: "beta", PublishedAt: published, ContentHash: "fp-3"}

	second, err := writer.Persist(context.Background(), []feed.Item{retold, fresh})
	if err != nil {
		t.Fatalf("second Persist returned error: %v", err)
	}
	if second.New != 1 {
		t.Fatalf("second call inserted %d, want only the fresh item", second.New)
	}
	if len(second.Inserted) != 1 || second.Inserted[0].ID != 3 {
		t.Fatalf("Inserted must exclude the colliding item, got %v", second.Inserted)
	}
	if len(second.Errors) != 0 {
		t.Fatalf("a constraint-rejected row must not record an error, got %v", second.Errors)
	}

	// No two persisted rows share a non-empty fingerprint.
	seen := make(map[string]int64)
	for id, row := range store.rows {
		if row.ContentHash == "" {
			continue
		}
		if prior, dup := seen[row.ContentHash]; dup {
			t.Fatalf("rows %d and %d share fingerprint %q", prior, id, row.ContentHash)
		}
		seen[row.ContentHash] = id
	}
}

func TestPersist_TransientChunkFailureIsIsolated(t *testing.T) {
	t.Parallel()

	transient := errors.New("connection saturated")
	store := newFakeStore()
	store.failOnCall = 2
	store.failErr = transient

	writer := NewWriter(store, zerolog.Nop(), WriterOptions{
		ChunkSize:  5,
		MaxRetries: 0,
		IsTransient: func(err error) bool {
			return errors.Is(err, transient)
		},
	})

	result, err := writer.Persist(context.Background(), makeItems(15))
	if err != nil {
		t.Fatalf("Persist returned structural error: %v", err)
	}
	if result.Chunks != 3 {
		t.Fatalf("expected 3 chunks attempted, got %d", result.Chunks)
	}
	if result.New != 10 {
		t.Fatalf("expected 10 rows from the surviving chunks, got %d", result.New)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 recorded chunk error, got %d", len(result.Errors))
	}
	if len(result.Inserted) != 10 {
		t.Fatalf("expected 10 inserted items handed to enrichment, got %d", len(result.Inserted))
	}
}

func TestPersist_TransientFailureRetried(t *testing.T) {
	t.Parallel()

	transient := errors.New("too many connections")
	store := newFakeStore()
	store.failOnCall = 1
	store.failErr = transient

	writer := NewWriter(store, zerolog.Nop(), WriterOptions{
		ChunkSize:  50,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		IsTransient: func(err error) bool {
			return errors.Is(err, transient)
		},
	})

	result, err := writer.Persist(context.Background(), makeItems(4))
	if err != nil {
		t.Fatalf("Persist returned error: %v", err)
	}
	if result.New != 4 {
		t.Fatalf("retry should have landed the chunk, got %d new rows", result.New)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("successful retry must not record errors, got %v", result.Errors)
	}
}

func TestPersist_AbortOnPermanentStopsRemainingChunks(t *testing.T) {
	t.Parallel()

	permanent := errors.New("relation does not exist")
	store := newFakeStore()
	store.failOnCall = 1
	store.failErr = permanent

	writer := NewWriter(store, zerolog.Nop(), WriterOptions{
		ChunkSize:        5,
		MaxRetries:       0,
		AbortOnPermanent: true,
		IsTransient:      func(error) bool { return false },
	})

	result, err := writer.Persist(context.Background(), makeItems(15))
	if err != nil {
		t.Fatalf("Persist returned structural error: %v", err)
	}
	if result.New != 0 {
		t.Fatalf("expected no rows after abort, got %d", result.New)
	}
	if store.calls != 1 {
		t.Fatalf("expected remaining chunks to be abandoned, store saw %d calls", store.calls)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 recorded error, got %d", len(result.Errors))
	}
}

func TestPersist_EmptyBatch(t *testing.T) {
	t.Parallel()

	writer := NewWriter(newFakeStore(), zerolog.Nop(), WriterOptions{})
	result, err := writer.Persist(context.Background(), nil)
	if err != nil {
		t.Fatalf("Persist returned error: %v", err)
	}
	if result.New != 0 || result.Chunks != 0 {
		t.Fatalf("expected zero-value result, got %+v", result)
	}
}
