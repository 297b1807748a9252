package app

import (
	"net/http"

	"github.com/rs/zerolog"

	"horse.fit/finnews/internal/alert"
	"horse.fit/finnews/internal/config"
	"horse.fit/finnews/internal/db"
	"horse.fit/finnews/internal/feed"
	"horse.fit/finnews/internal/oracle"
	"horse.fit/finnews/internal/pipeline"
)

// buildService assembles a pipeline service from configuration. The hub may
// be nil for commands that do not stream alerts.
func buildService(cfg *config.Config, pool *db.Pool, hub *alert.Hub, logger zerolog.Logger) (*pipeline.Service, error) {
	sources, err := resolveSources(cfg)
	if err != nil {
		return nil, err
	}

	fetcher := feed.NewFetcher(&http.Client{}, logger, feed.FetcherOptions{
		Timeout: cfg.FetchTimeout,
		MaxAge:  cfg.MaxAge(),
	})

	writer := pipeline.NewWriter(pool, logger, pipeline.WriterOptions{
		ChunkSize:        cfg.WriteChunkSize,
		MaxRetries:       cfg.WriteMaxRetries,
		RetryDelay:       cfg.WriteRetryDelay,
		AbortOnPermanent: cfg.WriteAbortOnPermanent,
	})

	oracleClient := oracle.NewClient(oracle.ClientOptions{
		BaseURL:        cfg.OracleBaseURL,
		RequestTimeout: cfg.OracleTimeout,
	})

	rules := alert.Rules{
		SentimentThreshold: cfg.SentimentAlertThreshold,
		RegulatoryKeywords: cfg.RegulatoryKeywordList(),
		EarningsKeywords:   cfg.EarningsKeywordList(),
	}

	var sink pipeline.AlertSink
	if hub != nil {
		sink = hub
	}

	enricher := pipeline.NewEnricher(pipeline.EnricherDeps{
		Embedder:   oracleClient,
		Entities:   oracleClient,
		Sentiment:  oracleClient,
		Summarizer: oracleClient,
		Indexer:    oracleClient,
		Sink:       sink,
		Rules:      rules,
	}, logger, pipeline.EnricherOptions{
		ClusterThreshold: cfg.ClusterThreshold,
		SummaryLimit:     cfg.SummaryLimit,
	})

	return pipeline.NewService(sources, fetcher, writer, enricher, logger), nil
}
