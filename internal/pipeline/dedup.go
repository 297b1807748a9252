package pipeline

import "horse.fit/finnews/internal/feed"

// DedupResult partitions a batch: every input item is either kept or counted
// as exactly one duplicate kind, so
// IDDuplicates + ContentDuplicates + len(Unique) == len(input).
type DedupResult struct {
	Unique            []feed.Item
	IDDuplicates      int
	ContentDuplicates int
}

// Dedupe removes id and content-fingerprint collisions within one batch.
// Pure and deterministic for a fixed input order; the seen sets are scoped to
// this call only. Cross-cycle duplicates are handled by the store's
// existence check.
func Dedupe(items []feed.Item) DedupResult {
	seenIDs := make(map[int64]struct{}, len(items))
	seenHashes := make(map[string]struct{}, len(items))

	result := DedupResult{Unique: make([]feed.Item, 0, len(items))}
	for _, item := range items {
		if _, dup := seenIDs[item.ID]; dup {
			result.IDDuplicates++
			continue
		}
		if item.ContentHash != "" {
			if _, dup := seenHashes[item.ContentHash]; dup {
				result.ContentDuplicates++
				continue
			}
		}

		seenIDs[item.ID] = struct{}{}
		if item.ContentHash != "" {
			seenHashes[item.ContentHash] = struct{}{}
		}
		result.Unique = append(result.Unique, item)
	}
	return result
}
