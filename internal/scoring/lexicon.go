package scoring

import (
	"strings"

	"commsight/internal/config"
)

// MaxScore is the upper bound of a message risk score.
const MaxScore = 100

// Lexicon is a compiled, immutable form of the configured risk categories.
// Compiling once up front keeps Score a pure function of its input.
type Lexicon struct {
	categories []compiledCategory
}

type compiledCategory struct {
	name     string
	weight   int
	patterns []string // lowercased
}

// Compile validates and compiles a configured lexicon.
func Compile(categories []config.Category) (*Lexicon, error) {
	if err := config.ValidateLexicon(categories); err != nil {
		return nil, err
	}

	lex := &Lexicon{
		categories: make([]compiledCategory, 0, len(categories)),
	}
	for _, cat := range categories {
		compiled := compiledCategory{
			name:     cat.Name,
			weight:   cat.Weight,
			patterns: make([]string, 0, len(cat.Patterns)),
		}
		for _, p := range cat.Patterns {
			compiled.patterns = append(compiled.patterns, strings.ToLower(p))
		}
		lex.categories = append(lex.categories, compiled)
	}

	return lex, nil
}

// Score computes the lexicon score for one message's content:
// sum of weight times occurrence count per category, capped at MaxScore.
// Categories with at least one hit are returned with their local hit count.
// Empty or whitespace-only content is unscored, which is distinct from a
// genuinely low score of zero.
func (l *Lexicon) Score(content string) (score int, categories map[string]int, unscored bool) {
	if strings.TrimSpace(content) == "" {
		return 0, nil, true
	}

	lowered := strings.ToLower(content)

	total := 0
	for _, cat := range l.categories {
		hits := 0
		for _, pattern := range cat.patterns {
			hits += strings.Count(lowered, pattern)
		}
		if hits > 0 {
			if categories == nil {
				categories = make(map[string]int)
			}
			categories[cat.name] = hits
			total += cat.weight * hits
		}
	}

	if total > MaxScore {
		total = MaxScore
	}
	return total, categories, false
}
