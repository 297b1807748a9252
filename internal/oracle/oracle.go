package oracle

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout marks an oracle call that ran out of time. Callers distinguish
// it from a malformed response when deciding what to record.
var ErrTimeout = errors.New("oracle call timed out")

// Entities is the structured output of the entity extractor.
type Entities struct {
	Companies  []string `json:"companies"`
	Sectors    []string `json:"sectors"`
	Regulators []string `json:"regulators"`
	People     []string `json:"people"`
	Events     []string `json:"events"`
}

// Sentiment is one classification result.
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (s Sentiment) Validate() error {
	switch s.Label {
	case "positive", "negative", "neutral":
	default:
		return fmt.Errorf("unexpected sentiment label %q", s.Label)
	}
	if s.Score < 0 || s.Score > 1 {
		return fmt.Errorf("sentiment score %f outside [0,1]", s.Score)
	}
	return nil
}

func wrapCallErr(ctx context.Context, operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || (ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return fmt.Errorf("%s: %w", operation, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", operation, err)
}
