package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/finnews/internal/feed"
)

func rssBody(items ...[2]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>t</title>`)
	for _, item := range items {
		fmt.Fprintf(&b,
			`<item><guid>%s</guid><title>%s</title><description>d</description><pubDate>Fri, 13 Mar 2026 10:00:00 +0000</pubDate></item>`,
			item[0], item[1])
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func rssServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newCycleService(t *testing.T, sources []feed.Source, store *fakeStore, f *fakeOracle) *Service {
	t.Helper()
	logger := zerolog.Nop()
	fetcher := feed.NewFetcher(&http.Client{}, logger, feed.FetcherOptions{Timeout: 5 * time.Second})
	writer := NewWriter(store, logger, WriterOptions{ChunkSize: 50})
	enricher := newTestEnricher(f, nil, EnricherOptions{})
	return NewService(sources, fetcher, writer, enricher, logger)
}

func TestRunCycle_EndToEnd(t *testing.T) {
	// Feed A: four distinct stories plus an exact repeat of the first (an id
	// duplicate within the batch).
	feedA := rssServer(t, rssBody(
		[2]string{"a1", "RBI holds repo rate"},
		[2]string{"a2", "Sensex rallies on earnings"},
		[2]string{"a3", "Rupee steadies against dollar"},
		[2]string{"a4", "IT stocks slide"},
		[2]string{"a1", "RBI holds repo rate"},
	), http.StatusOK)

	// Feed B: five stories, two of which retell A headlines (content
	// duplicates after title normalization).
	feedB := rssServer(t, rssBody(
		[2]string{"b1", "RBI Holds Repo-Rate!"},
		[2]string{"b2", "Sensex rallies on earnings."},
		[2]string{"b3", "Oil prices retreat"},
		[2]string{"b4", "Gold hits record high"},
		[2]string{"b5", "Auto sales rebound"},
	), http.StatusOK)

	feedC := rssServer(t, "boom", http.StatusInternalServerError)

	store := newFakeStore()
	service := newCycleService(t, []feed.Source{
		{Name: "alpha", URL: feedA.URL},
		{Name: "beta", URL: feedB.URL},
		{Name: "gamma", URL: feedC.URL},
	}, store, newFakeOracle())

	run := service.RunCycle(context.Background())

	if run.Fetched != 10 {
		t.Fatalf("fetched %d, want 10", run.Fetched)
	}
	if run.SourcesOK != 2 || run.SourcesFailed != 1 {
		t.Fatalf("sources ok=%d failed=%d, want 2/1", run.SourcesOK, run.SourcesFailed)
	}
	if run.IDDuplicates != 1 {
		t.Fatalf("id duplicates %d, want 1", run.IDDuplicates)
	}
	if run.ContentDuplicates != 2 {
		t.Fatalf("content duplicates %d, want 2", run.ContentDuplicates)
	}
	if run.Unique != 7 {
		t.Fatalf("unique %d, want 7", run.Unique)
	}
	if run.New != 7 {
		t.Fatalf("new %d, want 7", run.New)
	}
	if run.Chunks != 1 {
		t.Fatalf("chunks %d, want 1", run.Chunks)
	}
	if run.Enriched != 7 {
		t.Fatalf("enriched %d, want 7", run.Enriched)
	}
	// One recorded error: the failed source.
	if len(run.Errors) != 1 {
		t.Fatalf("errors %v, want exactly the failed source", run.Errors)
	}
	if run.Duration < 0 || run.FinishedAt.Before(run.StartedAt) {
		t.Fatalf("run timestamps inconsistent: %+v", run)
	}
}

func TestRunCycle_SecondCycleFindsNothingNew(t *testing.T) {
	feedA := rssServer(t, rssBody(
		[2]string{"a1", "RBI holds repo rate"},
		[2]string{"a2", "Sensex rallies on earnings"},
	), http.StatusOK)

	store := newFakeStore()
	service := newCycleService(t, []feed.Source{{Name: "alpha", URL: feedA.URL}}, store, newFakeOracle())

	first := service.RunCycle(context.Background())
	if first.New != 2 {
		t.Fatalf("first cycle inserted %d, want 2", first.New)
	}

	second := service.RunCycle(context.Background())
	if second.New != 0 {
		t.Fatalf("second cycle inserted %d, want 0", second.New)
	}
	if second.Existing != 2 {
		t.Fatalf("second cycle reported %d existing, want 2", second.Existing)
	}
	if second.Enriched != 0 {
		t.Fatalf("nothing new means nothing enriched, got %d", second.Enriched)
	}
}

func TestRunCycle_AllSourcesFailedShortCircuits(t *testing.T) {
	down := rssServer(t, "nope", http.StatusBadGateway)

	store := newFakeStore()
	service := newCycleService(t, []feed.Source{
		{Name: "alpha", URL: down.URL},
		{Name: "beta", URL: down.URL},
	}, store, newFakeOracle())

	run := service.RunCycle(context.Background())

	if run.SourcesOK != 0 || run.SourcesFailed != 2 {
		t.Fatalf("sources ok=%d failed=%d, want 0/2", run.SourcesOK, run.SourcesFailed)
	}
	found := false
	for _, msg := range run.Errors {
		if strings.Contains(msg, ErrAllSourcesFailed.Error()) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected all-sources-failed error, got %v", run.Errors)
	}
	if store.calls != 0 {
		t.Fatalf("short-circuited cycle must not touch the store, saw %d calls", store.calls)
	}
}

func TestRunCycle_StopBetweenStages(t *testing.T) {
	feedA := rssServer(t, rssBody([2]string{"a1", "RBI holds repo rate"}), http.StatusOK)

	store := newFakeStore()
	service := newCycleService(t, []feed.Source{{Name: "alpha", URL: feedA.URL}}, store, newFakeOracle())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := service.RunCycle(ctx)

	if store.calls != 0 {
		t.Fatalf("cancelled cycle must stop before persisting, saw %d store calls", store.calls)
	}
	if len(run.Errors) == 0 {
		t.Fatalf("cancelled cycle must record the stop")
	}
}
