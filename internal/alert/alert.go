package alert

import (
	"time"

	"horse.fit/finnews/internal/globaltime"
)

// Level classifies an alert.
type Level string

const (
	LevelHighRisk   Level = "high_risk"
	LevelBullish    Level = "bullish"
	LevelRegulatory Level = "regulatory"
	LevelEarnings   Level = "earnings"
)

const excerptLimit = 120

// Alert is an immutable notification produced by the enrichment pipeline.
type Alert struct {
	Level     Level             `json:"level"`
	SubjectID int64             `json:"subject_id"`
	Excerpt   string            `json:"excerpt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// New builds an alert with a bounded excerpt of the subject text.
func New(level Level, subjectID int64, text string, metadata map[string]string) Alert {
	return Alert{
		Level:     level,
		SubjectID: subjectID,
		Excerpt:   truncateExcerpt(text),
		Metadata:  metadata,
		Timestamp: globaltime.UTC(),
	}
}

func truncateExcerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLimit {
		return text
	}
	return string(runes[:excerptLimit]) + "..."
}
