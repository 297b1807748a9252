package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/finnews/internal/globaltime"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxFeedPayloadBytes = 8 << 20

	// Some outlets reject obvious bot user agents.
	fetchUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type FetcherOptions struct {
	Timeout time.Duration
	MaxAge  time.Duration
}

// Fetcher pulls raw records from each configured source, normalizes them,
// and computes deterministic ids and content fingerprints. It never drops an
// item for being a duplicate; that is the deduplicator's job.
type Fetcher struct {
	client  *http.Client
	logger  zerolog.Logger
	timeout time.Duration
	maxAge  time.Duration
}

func NewFetcher(client *http.Client, logger zerolog.Logger, opts FetcherOptions) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{
		client:  client,
		logger:  logger,
		timeout: timeout,
		maxAge:  opts.MaxAge,
	}
}

// FetchAll fetches every source concurrently and fans back in once all
// complete or time out individually. Items are returned in source order,
// feed-internal order preserved; a failed source contributes zero items and
// a recorded error, never an aborted batch.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]Item, []SourceResult) {
	perSource := make([][]Item, len(sources))
	results := make([]SourceResult, len(sources))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, source := range sources {
		i, source := i, source
		group.Go(func() error {
			items, err := f.fetchSource(groupCtx, source)
			perSource[i] = items
			results[i] = SourceResult{Source: source.Name, Fetched: len(items), Err: err}
			if err != nil {
				f.logger.Warn().Err(err).Str("source", source.Name).Msg("feed fetch failed")
			} else {
				f.logger.Info().Str("source", source.Name).Int("items", len(items)).Msg("feed fetched")
			}
			return nil
		})
	}
	_ = group.Wait()

	var all []Item
	for _, items := range perSource {
		all = append(all, items...)
	}

	if f.maxAge > 0 {
		all = f.filterByAge(all)
	}

	return all, results
}

func (f *Fetcher) fetchSource(ctx context.Context, source Source) ([]Item, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", source.Name, err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", source.Name, resp.Status)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s payload: %w", source.Name, err)
	}

	entries, err := parseFeed(payload)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", source.Name, err)
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		item, ok := normalizeEntry(source.Name, e)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (f *Fetcher) filterByAge(items []Item) []Item {
	cutoff := globaltime.UTC().Add(-f.maxAge)
	kept := items[:0]
	dropped := 0
	for _, item := range items {
		if item.PublishedAt.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, item)
	}
	if dropped > 0 {
		f.logger.Info().Int("dropped", dropped).Dur("max_age", f.maxAge).Msg("filtered stale items")
	}
	return kept
}
