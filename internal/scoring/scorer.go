// Package scoring assigns each message a bounded risk score and the set of
// matched lexicon categories. Lexicon scoring is a pure function of the
// content and the compiled lexicon; the optional external classifier only
// ever adjusts on top of it and degrades to lexicon-only on failure.
package scoring

import (
	"context"
	"time"

	"commsight/internal/logging"
	"commsight/internal/message"
)

// Scorer scores resolved messages against a compiled lexicon, optionally
// consulting an external classifier.
type Scorer struct {
	lexicon    *Lexicon
	classifier Classifier
	timeout    time.Duration
	logger     *logging.Logger
}

// NewScorer creates a lexicon-only scorer.
func NewScorer(lexicon *Lexicon, logger *logging.Logger) *Scorer {
	return &Scorer{
		lexicon: lexicon,
		logger:  logger,
	}
}

// WithClassifier attaches an external classifier with a hard timeout.
func (s *Scorer) WithClassifier(classifier Classifier, timeout time.Duration) *Scorer {
	s.classifier = classifier
	s.timeout = timeout
	return s
}

// Score produces the ScoredMessage for one resolved message. Safe for
// concurrent use: scoring is stateless per message.
func (s *Scorer) Score(ctx context.Context, resolved message.ResolvedMessage) message.ScoredMessage {
	scored := message.ScoredMessage{
		ResolvedMessage: resolved,
	}

	score, categories, unscored := s.lexicon.Score(resolved.Content)
	scored.Score = score
	scored.Categories = categories
	scored.Unscored = unscored

	if unscored || s.classifier == nil {
		return scored
	}

	adj, err := s.classify(ctx, resolved.Content)
	if err != nil {
		// Lexicon-only fallback, recorded rather than silently dropped.
		scored.ClassifierFallback = true
		s.logger.Warn("classifier unavailable, using lexicon-only score", map[string]interface{}{
			"platform": resolved.Platform,
			"seq":      resolved.Seq,
			"error":    err.Error(),
		})
		return scored
	}

	scored.Score = clampScore(scored.Score + adj.ScoreDelta)
	for cat, hits := range adj.Categories {
		if hits <= 0 {
			continue
		}
		if scored.Categories == nil {
			scored.Categories = make(map[string]int)
		}
		scored.Categories[cat] += hits
	}

	return scored
}

func (s *Scorer) classify(ctx context.Context, content string) (Adjustment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type outcome struct {
		adj Adjustment
		err error
	}
	ch := make(chan outcome, 1)

	go func() {
		adj, err := s.classifier.Classify(ctx, content)
		ch <- outcome{adj: adj, err: err}
	}()

	select {
	case out := <-ch:
		return out.adj, out.err
	case <-ctx.Done():
		return Adjustment{}, ctx.Err()
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
