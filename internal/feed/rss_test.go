package feed

import (
	"testing"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Markets</title>
    <item>
      <title>RBI holds repo rate</title>
      <link>https://example.com/a</link>
      <guid>et-1001</guid>
      <description>The central bank left the policy rate unchanged.</description>
      <pubDate>Fri, 13 Mar 2026 10:00:00 +0530</pubDate>
    </item>
    <item>
      <title>Sensex rallies</title>
      <link>https://example.com/b</link>
      <description>Earnings optimism lifted the index.</description>
      <pubDate>Fri, 13 Mar 2026 11:00:00 +0530</pubDate>
    </item>
  </channel>
</rss>`

const sampleAtom = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Markets</title>
  <entry>
    <id>tag:example.com,2026:entry-1</id>
    <title>Rupee steadies</title>
    <summary>The currency held its ground.</summary>
    <updated>2026-03-13T09:00:00Z</updated>
    <link href="https://example.com/c"/>
  </entry>
  <entry>
    <title>Bond yields ease</title>
    <content>Yields slipped after the auction.</content>
    <updated>2026-03-13T09:30:00Z</updated>
    <link href="https://example.com/d"/>
  </entry>
</feed>`

func TestParseFeed_RSS(t *testing.T) {
	t.Parallel()

	entries, err := parseFeed([]byte(sampleRSS))
	if err != nil {
		t.Fatalf("parseFeed returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if entries[0].GUID != "et-1001" {
		t.Fatalf("expected guid et-1001, got %q", entries[0].GUID)
	}
	if entries[0].Title != "RBI holds repo rate" {
		t.Fatalf("unexpected title: %q", entries[0].Title)
	}

	// Missing guid falls back to the link.
	if entries[1].GUID != "https://example.com/b" {
		t.Fatalf("expected link fallback guid, got %q", entries[1].GUID)
	}
}

func TestParseFeed_Atom(t *testing.T) {
	t.Parallel()

	entries, err := parseFeed([]byte(sampleAtom))
	if err != nil {
		t.Fatalf("parseFeed returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if entries[0].GUID != "tag:example.com,2026:entry-1" {
		t.Fatalf("unexpected guid: %q", entries[0].GUID)
	}
	if entries[0].Summary != "The currency held its ground." {
		t.Fatalf("unexpected summary: %q", entries[0].Summary)
	}

	// Missing id falls back to the link href; missing summary to content.
	if entries[1].GUID != "https://example.com/d" {
		t.Fatalf("expected href fallback guid, got %q", entries[1].GUID)
	}
	if entries[1].Summary != "Yields slipped after the auction." {
		t.Fatalf("expected content fallback summary, got %q", entries[1].Summary)
	}
}

func TestParseFeed_UnsupportedRoot(t *testing.T) {
	t.Parallel()

	if _, err := parseFeed([]byte(`<html><body>nope</body></html>`)); err == nil {
		t.Fatalf("expected error for unsupported root element")
	}
}

func TestParseFeed_Malformed(t *testing.T) {
	t.Parallel()

	if _, err := parseFeed([]byte(`not xml at all`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
