package feed

import "time"

// Source describes one configured feed.
type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Kind string `json:"kind,omitempty"`
}

// Item is a normalized unit of ingested content prior to persistence.
// Immutable once produced by the fetcher.
type Item struct {
	Source      string
	ExternalID  string
	PublishedAt time.Time
	Title       string
	Text        string

	// ID is deterministic over (Source, ExternalID, PublishedAt).
	ID int64
	// ContentHash fingerprints the normalized title; empty when the
	// normalized title is empty.
	ContentHash string
}

// SourceResult records the per-source outcome of one fetch cycle.
type SourceResult struct {
	Source  string
	Fetched int
	Err     error
}
