package feed

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"horse.fit/finnews/internal/globaltime"
)

var (
	tagPattern        = regexp.MustCompile(`<.*?>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	nonAlnumPattern   = regexp.MustCompile(`[^a-z0-9 ]`)
)

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
)

// CleanHTML strips markup and common entities from feed text.
func CleanHTML(text string) string {
	if text == "" {
		return ""
	}
	text = tagPattern.ReplaceAllString(text, "")
	text = entityReplacer.Replace(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// NormalizeTitle lowers, strips punctuation, and collapses whitespace so
// near-identical headlines from different outlets fingerprint equally.
func NormalizeTitle(text string) string {
	text = strings.ToLower(CleanHTML(text))
	text = nonAlnumPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Fingerprint returns the MD5 hex of its input, or "" for empty input.
func Fingerprint(text string) string {
	if text == "" {
		return ""
	}
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// DeterministicID derives a stable 60-bit article id from the identity
// triple. The same triple yields the same id on every run, on every host.
func DeterministicID(source, externalID string, publishedAt time.Time) int64 {
	unique := fmt.Sprintf("%s|%s|%s", source, externalID, publishedAt.UTC().Format(time.RFC3339))
	sum := sha1.Sum([]byte(unique))
	hexDigits := hex.EncodeToString(sum[:])[:15]

	// 15 hex digits always parse into a positive int64.
	id, err := strconv.ParseInt(hexDigits, 16, 64)
	if err != nil {
		panic(fmt.Sprintf("parse deterministic id from %q: %v", hexDigits, err))
	}
	return id
}

// entry is one raw feed record before normalization.
type entry struct {
	GUID      string
	Title     string
	Summary   string
	Published string
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

func parsePublished(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range pubDateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// normalizeEntry converts a raw feed record into an Item. Records without a
// usable identity or title are dropped.
func normalizeEntry(source string, e entry) (Item, bool) {
	guid := strings.TrimSpace(e.GUID)
	if guid == "" {
		guid = strings.TrimSpace(e.Title)
	}
	if guid == "" {
		return Item{}, false
	}

	title := CleanHTML(e.Title)
	if title == "" {
		return Item{}, false
	}

	summary := CleanHTML(e.Summary)
	text := title
	if summary != "" {
		text = title + ". " + summary
	}

	publishedAt, ok := parsePublished(e.Published)
	if !ok {
		publishedAt = globaltime.UTC()
	}

	return Item{
		Source:      source,
		ExternalID:  guid,
		PublishedAt: publishedAt,
		Title:       title,
		Text:        text,
		ID:          DeterministicID(source, guid, publishedAt),
		ContentHash: Fingerprint(NormalizeTitle(title)),
	}, true
}
