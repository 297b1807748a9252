package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/finnews/internal/feed"
	"horse.fit/finnews/internal/globaltime"
)

// ErrAllSourcesFailed short-circuits a cycle when no source produced data.
var ErrAllSourcesFailed = errors.New("all sources failed")

// Run is the mutable stats record of one cycle. Only the most recent run is
// retained; alert history lives in the hub's own buffer.
type Run struct {
	ID                string        `json:"id"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	Duration          time.Duration `json:"duration_ns"`
	Fetched           int           `json:"fetched"`
	SourcesOK         int           `json:"sources_ok"`
	SourcesFailed     int           `json:"sources_failed"`
	IDDuplicates      int           `json:"id_duplicates"`
	ContentDuplicates int           `json:"content_duplicates"`
	Unique            int           `json:"unique"`
	New               int           `json:"new"`
	Existing          int           `json:"existing"`
	Chunks            int           `json:"chunks"`
	Enriched          int           `json:"enriched"`
	Alerts            int           `json:"alerts"`
	Errors            []string      `json:"errors,omitempty"`
}

func (r *Run) recordError(err error) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, err.Error())
}

// Service composes one full ingestion cycle:
// fetch → dedupe → persist → enrich.
type Service struct {
	sources  []feed.Source
	fetcher  *feed.Fetcher
	writer   *Writer
	enricher *Enricher
	logger   zerolog.Logger
}

func NewService(sources []feed.Source, fetcher *feed.Fetcher, writer *Writer, enricher *Enricher, logger zerolog.Logger) *Service {
	return &Service{
		sources:  sources,
		fetcher:  fetcher,
		writer:   writer,
		enricher: enricher,
		logger:   logger,
	}
}

func (s *Service) SourceCount() int {
	return len(s.sources)
}

// RunCycle executes one cycle end to end. Partial failures are recorded and
// the cycle proceeds; only total fetch failure short-circuits. A requested
// stop is honored between stages, never mid-chunk or mid-item.
func (s *Service) RunCycle(ctx context.Context) *Run {
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: globaltime.UTC(),
	}
	defer func() {
		run.FinishedAt = globaltime.UTC()
		run.Duration = run.FinishedAt.Sub(run.StartedAt)
	}()

	s.logger.Info().Str("run_id", run.ID).Int("sources", len(s.sources)).Msg("cycle started")

	// FETCHING
	items, sourceResults := s.fetcher.FetchAll(ctx, s.sources)
	run.Fetched = len(items)
	for _, sr := range sourceResults {
		if sr.Err != nil {
			run.SourcesFailed++
			run.recordError(fmt.Errorf("source %s: %w", sr.Source, sr.Err))
			continue
		}
		run.SourcesOK++
	}
	if len(s.sources) > 0 && run.SourcesOK == 0 {
		run.recordError(ErrAllSourcesFailed)
		s.logger.Error().Str("run_id", run.ID).Msg("cycle aborted, all sources failed")
		return run
	}
	if s.stopRequested(ctx, run) {
		return run
	}

	// DEDUPLICATING
	deduped := Dedupe(items)
	run.IDDuplicates = deduped.IDDuplicates
	run.ContentDuplicates = deduped.ContentDuplicates
	run.Unique = len(deduped.Unique)
	if s.stopRequested(ctx, run) {
		return run
	}

	// PERSISTING
	writeResult, err := s.writer.Persist(ctx, deduped.Unique)
	if err != nil {
		run.recordError(err)
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("persist failed")
		return run
	}
	run.New = writeResult.New
	run.Existing = writeResult.Existing
	run.Chunks = writeResult.Chunks
	for _, chunkErr := range writeResult.Errors {
		run.recordError(chunkErr)
	}
	if s.stopRequested(ctx, run) {
		return run
	}

	// ENRICHING
	if len(writeResult.Inserted) > 0 {
		enrichResult := s.enricher.Enrich(ctx, writeResult.Inserted)
		run.Enriched = enrichResult.Items
		run.Alerts = enrichResult.Alerts
		for _, enrichErr := range enrichResult.Errors {
			run.recordError(enrichErr)
		}
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Int("fetched", run.Fetched).
		Int("unique", run.Unique).
		Int("new", run.New).
		Int("alerts", run.Alerts).
		Int("errors", len(run.Errors)).
		Msg("cycle finished")
	return run
}

func (s *Service) stopRequested(ctx context.Context, run *Run) bool {
	if ctx.Err() == nil {
		return false
	}
	run.recordError(fmt.Errorf("cycle stopped: %w", ctx.Err()))
	s.logger.Warn().Str("run_id", run.ID).Msg("cycle stopped between stages")
	return true
}
