package scoring

import (
	"context"
)

// Adjustment is an external classifier's contribution to a message score.
type Adjustment struct {
	// ScoreDelta is added to the lexicon score (result clamped to 0..MaxScore).
	ScoreDelta int
	// Categories are supplemental category hits merged into the lexicon hits.
	Categories map[string]int
}

// Classifier is the optional external semantic classification hook.
// Implementations must honor ctx cancellation; the scorer applies the
// configured timeout. When a Classifier fails or times out the lexicon-only
// score is used unmodified and the fallback is recorded on the message.
type Classifier interface {
	Classify(ctx context.Context, content string) (Adjustment, error)
}
