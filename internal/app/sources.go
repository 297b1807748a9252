package app

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"horse.fit/finnews/internal/config"
	"horse.fit/finnews/internal/feed"
	sourceschema "horse.fit/finnews/schema"
)

// resolveSources builds the feed source list from configuration. FEEDS wins
// when both are set; its entries are "name=url" pairs, with the name derived
// from the URL host when omitted. FEEDS_FILE points at a JSON file validated
// against the embedded schema.
func resolveSources(cfg *config.Config) ([]feed.Source, error) {
	if entries := cfg.FeedList(); len(entries) > 0 {
		return parseFeedEntries(entries)
	}

	path := strings.TrimSpace(cfg.FeedsFile)
	if path == "" {
		return nil, fmt.Errorf("no feed sources configured: set FEEDS or FEEDS_FILE")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file %s: %w", path, err)
	}
	sources, err := sourceschema.ValidateSourceList(raw)
	if err != nil {
		return nil, fmt.Errorf("validate feeds file %s: %w", path, err)
	}
	return sources, nil
}

func parseFeedEntries(entries []string) ([]feed.Source, error) {
	sources := make([]feed.Source, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))

	for i, entry := range entries {
		name := ""
		rawURL := entry
		if idx := strings.Index(entry, "="); idx >= 0 {
			name = strings.TrimSpace(entry[:idx])
			rawURL = strings.TrimSpace(entry[idx+1:])
		}

		parsed, err := url.ParseRequestURI(rawURL)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, fmt.Errorf("FEEDS[%d]: %q is not an absolute http(s) URL", i, rawURL)
		}

		if name == "" {
			name = strings.TrimPrefix(parsed.Host, "www.")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("FEEDS[%d]: duplicate source name %q", i, name)
		}
		seen[name] = struct{}{}

		sources = append(sources, feed.Source{Name: name, URL: rawURL})
	}

	return sources, nil
}
