package alert

import (
	"fmt"
	"strings"
)

// Rules evaluates enrichment output against the configured alert conditions.
// Each rule is independent; one item may raise several alerts.
type Rules struct {
	SentimentThreshold float64
	RegulatoryKeywords []string
	EarningsKeywords   []string
}

func DefaultRules() Rules {
	return Rules{
		SentimentThreshold: 0.90,
		RegulatoryKeywords: []string{"repo", "inflation", "rbi", "reserve bank", "monetary policy"},
		EarningsKeywords:   []string{"profit", "growth", "earnings", "revenue", "dividend"},
	}
}

// EvaluateSentiment raises at most one of high_risk/bullish for a
// high-confidence classification.
func (r Rules) EvaluateSentiment(subjectID int64, text, label string, score float64) []Alert {
	if score <= r.SentimentThreshold {
		return nil
	}

	metadata := map[string]string{
		"sentiment": label,
		"score":     fmt.Sprintf("%.3f", score),
	}

	switch strings.ToLower(label) {
	case "negative":
		return []Alert{New(LevelHighRisk, subjectID, text, metadata)}
	case "positive":
		return []Alert{New(LevelBullish, subjectID, text, metadata)}
	default:
		return nil
	}
}

// EvaluateSummary raises regulatory and/or earnings alerts when the generated
// summary mentions configured keywords.
func (r Rules) EvaluateSummary(subjectID int64, text, summary string) []Alert {
	lowered := strings.ToLower(summary)

	var alerts []Alert
	if containsAny(lowered, r.RegulatoryKeywords) {
		alerts = append(alerts, New(LevelRegulatory, subjectID, text, map[string]string{"summary": truncateExcerpt(summary)}))
	}
	if containsAny(lowered, r.EarningsKeywords) {
		alerts = append(alerts, New(LevelEarnings, subjectID, text, map[string]string{"summary": truncateExcerpt(summary)}))
	}
	return alerts
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
