package alert

import (
	"strings"
	"testing"
)

func TestEvaluateSentiment_Matrix(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()

	cases := []struct {
		name  string
		label string
		score float64
		want  []Level
	}{
		{"high confidence negative", "negative", 0.95, []Level{LevelHighRisk}},
		{"high confidence positive", "positive", 0.95, []Level{LevelBullish}},
		{"high confidence neutral", "neutral", 0.95, nil},
		{"score at threshold", "negative", 0.90, nil},
		{"low confidence negative", "negative", 0.50, nil},
		{"uppercase label", "NEGATIVE", 0.95, []Level{LevelHighRisk}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			alerts := rules.EvaluateSentiment(42, "some story", tc.label, tc.score)
			if len(alerts) != len(tc.want) {
				t.Fatalf("got %d alerts, want %d", len(alerts), len(tc.want))
			}
			for i, level := range tc.want {
				if alerts[i].Level != level {
					t.Fatalf("alert %d level %s, want %s", i, alerts[i].Level, level)
				}
				if alerts[i].SubjectID != 42 {
					t.Fatalf("alert subject %d, want 42", alerts[i].SubjectID)
				}
			}
		})
	}
}

func TestEvaluateSentiment_Metadata(t *testing.T) {
	t.Parallel()

	alerts := DefaultRules().EvaluateSentiment(7, "text", "negative", 0.987)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Metadata["sentiment"] != "negative" {
		t.Fatalf("metadata sentiment = %q", alerts[0].Metadata["sentiment"])
	}
	if alerts[0].Metadata["score"] != "0.987" {
		t.Fatalf("metadata score = %q", alerts[0].Metadata["score"])
	}
}

func TestEvaluateSummary_Keywords(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()

	regulatory := rules.EvaluateSummary(1, "t", "RBI kept the repo rate steady")
	if len(regulatory) != 1 || regulatory[0].Level != LevelRegulatory {
		t.Fatalf("expected one regulatory alert, got %v", regulatory)
	}

	earnings := rules.EvaluateSummary(2, "t", "Quarterly profit rose sharply")
	if len(earnings) != 1 || earnings[0].Level != LevelEarnings {
		t.Fatalf("expected one earnings alert, got %v", earnings)
	}

	both := rules.EvaluateSummary(3, "t", "Inflation eased as revenue climbed")
	if len(both) != 2 {
		t.Fatalf("expected both alert kinds, got %v", both)
	}

	none := rules.EvaluateSummary(4, "t", "Weather stays dry this week")
	if len(none) != 0 {
		t.Fatalf("expected no alerts, got %v", none)
	}
}

func TestEvaluateSummary_CaseInsensitive(t *testing.T) {
	t.Parallel()

	alerts := DefaultRules().EvaluateSummary(5, "t", "DIVIDEND announcement expected")
	if len(alerts) != 1 || alerts[0].Level != LevelEarnings {
		t.Fatalf("expected case-insensitive keyword match, got %v", alerts)
	}
}

func TestNew_TruncatesExcerpt(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 500)
	a := New(LevelHighRisk, 9, long, nil)
	if len([]rune(a.Excerpt)) != 123 {
		t.Fatalf("excerpt length %d, want 120 runes plus ellipsis", len([]rune(a.Excerpt)))
	}
	if !strings.HasSuffix(a.Excerpt, "...") {
		t.Fatalf("truncated excerpt must end with ellipsis: %q", a.Excerpt)
	}

	short := New(LevelBullish, 9, "short text", nil)
	if short.Excerpt != "short text" {
		t.Fatalf("short excerpt must be untouched, got %q", short.Excerpt)
	}
}
