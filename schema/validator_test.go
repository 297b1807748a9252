package sourceschema

import (
	"strings"
	"testing"
)

func TestValidateSourceList_Valid(t *testing.T) {
	payload := []byte(`[
		{"name":"economic_times","url":"https://economictimes.indiatimes.com/rssfeedstopstories.cms","kind":"rss"},
		{"name":"moneycontrol","url":"https://www.moneycontrol.com/rss/latestnews.xml"}
	]`)

	sources, err := ValidateSourceList(payload)
	if err != nil {
		t.Fatalf("expected source list to be valid, got error: %v", err)
	}

	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].Name != "economic_times" {
		t.Fatalf("expected name=economic_times, got %q", sources[0].Name)
	}
	if sources[0].Kind != "rss" {
		t.Fatalf("expected kind=rss, got %q", sources[0].Kind)
	}
	if sources[1].Kind != "" {
		t.Fatalf("expected empty kind, got %q", sources[1].Kind)
	}
}

func TestValidateSourceList_MissingURL(t *testing.T) {
	payload := []byte(`[{"name":"economic_times"}]`)

	_, err := ValidateSourceList(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for missing url")
	}
}

func TestValidateSourceList_DuplicateName(t *testing.T) {
	payload := []byte(`[
		{"name":"economic_times","url":"https://a.example.com/feed"},
		{"name":"economic_times","url":"https://b.example.com/feed"}
	]`)

	_, err := ValidateSourceList(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for duplicate source name")
	}
	if !strings.Contains(err.Error(), "duplicate source name") {
		t.Fatalf("expected duplicate name semantic error, got: %v", err)
	}
}

func TestValidateSourceList_BadScheme(t *testing.T) {
	payload := []byte(`[{"name":"local","url":"ftp://example.com/feed"}]`)

	_, err := ValidateSourceList(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for non-http scheme")
	}
	if !strings.Contains(err.Error(), "http or https") {
		t.Fatalf("expected scheme semantic error, got: %v", err)
	}
}

func TestValidateSourceList_UnknownKind(t *testing.T) {
	payload := []byte(`[{"name":"local","url":"https://example.com/feed","kind":"jsonfeed"}]`)

	_, err := ValidateSourceList(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for unknown kind")
	}
}

func TestValidateSourceList_Empty(t *testing.T) {
	_, err := ValidateSourceList([]byte("  "))
	if err == nil {
		t.Fatalf("expected validation to fail for empty payload")
	}
}

func TestValidateSourceList_TrailingContent(t *testing.T) {
	_, err := ValidateSourceList([]byte(`[{"name":"a","url":"https://example.com/f"}] extra`))
	if err == nil {
		t.Fatalf("expected validation to fail for trailing content")
	}
	if !strings.Contains(err.Error(), "trailing content") {
		t.Fatalf("expected trailing content error, got: %v", err)
	}
}
