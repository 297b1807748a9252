package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/finnews/internal/alert"
	"horse.fit/finnews/internal/feed"
	"horse.fit/finnews/internal/oracle"
)

const (
	DefaultClusterThreshold = 0.80
	DefaultSummaryLimit     = 5
)

// The enrichment stages treat every model as an opaque oracle behind a
// narrow call contract. *oracle.Client satisfies all of them.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) (oracle.Entities, error)
}

type SentimentClassifier interface {
	ClassifySentiment(ctx context.Context, text string) (oracle.Sentiment, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

type Indexer interface {
	IndexUpsert(ctx context.Context, id int64, text string, metadata map[string]string) error
}

// AlertSink receives alerts as soon as a rule fires. *alert.Hub satisfies it.
type AlertSink interface {
	Broadcast(a alert.Alert)
}

type EnricherOptions struct {
	ClusterThreshold float64
	SummaryLimit     int
}

// Enricher runs the ordered enrichment stages over one batch of newly
// persisted items. A single item's oracle failure excludes that item from the
// failing stage's output only; the batch always keeps flowing.
type Enricher struct {
	embedder   Embedder
	entities   EntityExtractor
	sentiment  SentimentClassifier
	summarizer Summarizer
	indexer    Indexer
	sink       AlertSink
	rules      alert.Rules
	logger     zerolog.Logger
	opts       EnricherOptions
}

type EnricherDeps struct {
	Embedder   Embedder
	Entities   EntityExtractor
	Sentiment  SentimentClassifier
	Summarizer Summarizer
	Indexer    Indexer
	Sink       AlertSink
	Rules      alert.Rules
}

func NewEnricher(deps EnricherDeps, logger zerolog.Logger, opts EnricherOptions) *Enricher {
	if opts.ClusterThreshold <= 0 || opts.ClusterThreshold > 1 {
		opts.ClusterThreshold = DefaultClusterThreshold
	}
	if opts.SummaryLimit < 0 {
		opts.SummaryLimit = DefaultSummaryLimit
	}
	return &Enricher{
		embedder:   deps.Embedder,
		entities:   deps.Entities,
		sentiment:  deps.Sentiment,
		summarizer: deps.Summarizer,
		indexer:    deps.Indexer,
		sink:       deps.Sink,
		rules:      deps.Rules,
		logger:     logger,
		opts:       opts,
	}
}

type EnrichResult struct {
	Items      int
	Clusters   int
	Entities   int
	Sentiments int
	Summaries  int
	Indexed    int
	Alerts     int
	Errors     []error
}

// session carries the per-item state of one enrichment cycle. It replaces
// any notion of process-wide agent state: its lifetime is exactly one batch.
type session struct {
	items          []feed.Item
	representative []int64
	vectors        [][]float64
	entities       []*oracle.Entities
	sentiments     []*oracle.Sentiment
	summaries      []string
}

func newSession(items []feed.Item) *session {
	s := &session{
		items:          items,
		representative: make([]int64, len(items)),
		vectors:        make([][]float64, len(items)),
		entities:       make([]*oracle.Entities, len(items)),
		sentiments:     make([]*oracle.Sentiment, len(items)),
		summaries:      make([]string, len(items)),
	}
	for i, item := range items {
		s.representative[i] = item.ID
	}
	return s
}

// Enrich runs all stages in order. A no-op for an empty batch.
func (e *Enricher) Enrich(ctx context.Context, items []feed.Item) EnrichResult {
	result := EnrichResult{Items: len(items)}
	if len(items) == 0 {
		return result
	}

	sess := newSession(items)

	e.clusterStage(ctx, sess, &result)
	e.entityStage(ctx, sess, &result)
	e.sentimentStage(ctx, sess, &result)
	e.summaryStage(ctx, sess, &result)
	e.indexStage(ctx, sess, &result)

	e.logger.Info().
		Int("items", result.Items).
		Int("clusters", result.Clusters).
		Int("sentiments", result.Sentiments).
		Int("summaries", result.Summaries).
		Int("indexed", result.Indexed).
		Int("alerts", result.Alerts).
		Int("errors", len(result.Errors)).
		Msg("enrichment finished")
	return result
}

// clusterStage embeds every item and groups near-duplicates above the
// similarity threshold. Members keep flowing to later stages carrying the
// representative id; nothing is dropped here.
func (e *Enricher) clusterStage(ctx context.Context, sess *session, result *EnrichResult) {
	e.forEachItem(ctx, sess, result, "embed", func(ctx context.Context, i int) error {
		vector, err := e.embedder.Embed(ctx, sess.items[i].Text)
		if err != nil {
			return err
		}
		sess.vectors[i] = vector
		return nil
	})

	visited := make(map[int]struct{}, len(sess.items))
	for i := range sess.items {
		if _, done := visited[i]; done {
			continue
		}
		if sess.vectors[i] == nil {
			continue
		}
		visited[i] = struct{}{}

		members := []int{i}
		for j := i + 1; j < len(sess.items); j++ {
			if _, done := visited[j]; done {
				continue
			}
			if sess.vectors[j] == nil {
				continue
			}
			if cosineSimilarity(sess.vectors[i], sess.vectors[j]) >= e.opts.ClusterThreshold {
				visited[j] = struct{}{}
				members = append(members, j)
			}
		}

		if len(members) > 1 {
			result.Clusters++
			for _, member := range members {
				sess.representative[member] = sess.items[i].ID
			}
		}
	}
}

func (e *Enricher) entityStage(ctx context.Context, sess *session, result *EnrichResult) {
	e.forEachItem(ctx, sess, result, "extract entities", func(ctx context.Context, i int) error {
		entities, err := e.entities.ExtractEntities(ctx, sess.items[i].Text)
		if err != nil {
			return err
		}
		sess.entities[i] = &entities
		return nil
	})
	for _, entities := range sess.entities {
		if entities != nil {
			result.Entities++
		}
	}
}

// sentimentStage classifies every item and evaluates the sentiment alert
// rules inline, as soon as each result is available.
func (e *Enricher) sentimentStage(ctx context.Context, sess *session, result *EnrichResult) {
	alerts := make([][]alert.Alert, len(sess.items))
	e.forEachItem(ctx, sess, result, "classify sentiment", func(ctx context.Context, i int) error {
		sentiment, err := e.sentiment.ClassifySentiment(ctx, sess.items[i].Text)
		if err != nil {
			return err
		}
		sess.sentiments[i] = &sentiment
		alerts[i] = e.rules.EvaluateSentiment(sess.items[i].ID, sess.items[i].Text, sentiment.Label, sentiment.Score)
		for _, a := range alerts[i] {
			e.emit(a)
		}
		return nil
	})
	for i := range sess.items {
		if sess.sentiments[i] != nil {
			result.Sentiments++
		}
		result.Alerts += len(alerts[i])
	}
}

// summaryStage summarizes a capped prefix of the batch in arrival order.
// Items beyond the cap are skipped without error and never retried.
func (e *Enricher) summaryStage(ctx context.Context, sess *session, result *EnrichResult) {
	limit := min(e.opts.SummaryLimit, len(sess.items))
	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, fmt.Errorf("summarize: %w", ctx.Err()))
			return
		}
		summary, err := e.summarizer.Summarize(ctx, sess.items[i].Text)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("summarize item %d: %w", sess.items[i].ID, err))
			continue
		}
		sess.summaries[i] = summary
		result.Summaries++

		for _, a := range e.rules.EvaluateSummary(sess.items[i].ID, sess.items[i].Text, summary) {
			e.emit(a)
			result.Alerts++
		}
	}
}

// indexStage upserts every item into the similarity index; re-upserting an
// existing id replaces its prior entry.
func (e *Enricher) indexStage(ctx context.Context, sess *session, result *EnrichResult) {
	indexed := make([]bool, len(sess.items))
	e.forEachItem(ctx, sess, result, "index upsert", func(ctx context.Context, i int) error {
		text := sess.items[i].Text
		if sess.summaries[i] != "" {
			text += "\n\nSummary: " + sess.summaries[i]
		}
		if err := e.indexer.IndexUpsert(ctx, sess.items[i].ID, text, e.indexMetadata(sess, i)); err != nil {
			return err
		}
		indexed[i] = true
		return nil
	})
	for _, ok := range indexed {
		if ok {
			result.Indexed++
		}
	}
}

func (e *Enricher) indexMetadata(sess *session, i int) map[string]string {
	metadata := map[string]string{
		"source":         sess.items[i].Source,
		"published_at":   sess.items[i].PublishedAt.Format("2006-01-02T15:04:05Z07:00"),
		"representative": fmt.Sprintf("%d", sess.representative[i]),
	}
	if sess.sentiments[i] != nil {
		metadata["sentiment"] = sess.sentiments[i].Label
	}
	if sess.entities[i] != nil {
		if companies := strings.Join(sess.entities[i].Companies, ","); companies != "" {
			metadata["companies"] = companies
		}
		if sectors := strings.Join(sess.entities[i].Sectors, ","); sectors != "" {
			metadata["sectors"] = sectors
		}
	}
	return metadata
}

// forEachItem fans one stage out over the batch. Per-item failures are
// recorded and isolated; they never cancel the sibling calls.
func (e *Enricher) forEachItem(ctx context.Context, sess *session, result *EnrichResult, stage string, op func(ctx context.Context, i int) error) {
	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)

	for i := range sess.items {
		i := i
		group.Go(func() error {
			if err := op(groupCtx, i); err != nil {
				mu.Lock()
				result.Errors = append(result.Errors, fmt.Errorf("%s item %d: %w", stage, sess.items[i].ID, err))
				mu.Unlock()
				e.logger.Warn().Err(err).Str("stage", stage).Int64("item", sess.items[i].ID).Msg("oracle call failed")
			}
			return nil
		})
	}
	_ = group.Wait()
}

func (e *Enricher) emit(a alert.Alert) {
	if e.sink == nil {
		return
	}
	e.sink.Broadcast(a)
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
