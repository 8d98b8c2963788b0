package scoring

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"commsight/internal/config"
	"commsight/internal/logging"
	"commsight/internal/message"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.ErrorLevel,
		Output: io.Discard,
	})
}

func testLexicon(t *testing.T) *Lexicon {
	t.Helper()
	lex, err := Compile([]config.Category{
		{Name: "threat", Weight: 50, Patterns: []string{"hurt you", "kill you"}},
		{Name: "danger", Weight: 25, Patterns: []string{"dangerous"}},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return lex
}

func TestLexiconScore(t *testing.T) {
	lex := testLexicon(t)

	tests := []struct {
		name       string
		content    string
		wantScore  int
		wantCats   map[string]int
		wantUnscor bool
	}{
		{
			name:      "single hit",
			content:   "this is dangerous",
			wantScore: 25,
			wantCats:  map[string]int{"danger": 1},
		},
		{
			name:      "case insensitive",
			content:   "This Is DANGEROUS",
			wantScore: 25,
			wantCats:  map[string]int{"danger": 1},
		},
		{
			name:      "multiple categories sum",
			content:   "dangerous people hurt you",
			wantScore: 75,
			wantCats:  map[string]int{"danger": 1, "threat": 1},
		},
		{
			name:      "repeated pattern counts each occurrence",
			content:   "hurt you and hurt you again",
			wantScore: 100,
			wantCats:  map[string]int{"threat": 2},
		},
		{
			name:      "score capped",
			content:   "hurt you kill you hurt you kill you",
			wantScore: 100,
			wantCats:  map[string]int{"threat": 4},
		},
		{
			name:      "no hits",
			content:   "see you tomorrow",
			wantScore: 0,
		},
		{
			name:       "empty content is unscored",
			content:    "",
			wantUnscor: true,
		},
		{
			name:       "whitespace only is unscored",
			content:    "   \n\t ",
			wantUnscor: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, cats, unscored := lex.Score(tt.content)
			if score != tt.wantScore {
				t.Errorf("score = %d, want %d", score, tt.wantScore)
			}
			if unscored != tt.wantUnscor {
				t.Errorf("unscored = %v, want %v", unscored, tt.wantUnscor)
			}
			if len(cats) != len(tt.wantCats) {
				t.Fatalf("categories = %v, want %v", cats, tt.wantCats)
			}
			for cat, hits := range tt.wantCats {
				if cats[cat] != hits {
					t.Errorf("category %s hits = %d, want %d", cat, cats[cat], hits)
				}
			}
		})
	}
}

func TestLexiconScoreDeterministic(t *testing.T) {
	lex := testLexicon(t)
	content := "dangerous people hurt you"

	wantScore, _, _ := lex.Score(content)
	for i := 0; i < 100; i++ {
		score, _, _ := lex.Score(content)
		if score != wantScore {
			t.Fatalf("iteration %d: score %d != %d", i, score, wantScore)
		}
	}
}

func TestCompileRejectsInvalidLexicon(t *testing.T) {
	tests := []struct {
		name       string
		categories []config.Category
	}{
		{"empty lexicon", nil},
		{"zero weight", []config.Category{{Name: "x", Weight: 0, Patterns: []string{"a"}}}},
		{"weight above max", []config.Category{{Name: "x", Weight: 101, Patterns: []string{"a"}}}},
		{"no patterns", []config.Category{{Name: "x", Weight: 10}}},
		{"duplicate names", []config.Category{
			{Name: "x", Weight: 10, Patterns: []string{"a"}},
			{Name: "x", Weight: 20, Patterns: []string{"b"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.categories); err == nil {
				t.Error("expected a compile error")
			}
		})
	}
}

type stubClassifier struct {
	adj   Adjustment
	err   error
	delay time.Duration
}

func (s *stubClassifier) Classify(ctx context.Context, content string) (Adjustment, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Adjustment{}, ctx.Err()
		}
	}
	return s.adj, s.err
}

func resolved(content string) message.ResolvedMessage {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return message.ResolvedMessage{
		NormalizedMessage: message.NormalizedMessage{Platform: "email", Content: content},
		IdentityID:        "id-1",
		UTC:               &ts,
	}
}

func TestScorerLexiconOnly(t *testing.T) {
	s := NewScorer(testLexicon(t), testLogger())
	got := s.Score(context.Background(), resolved("this is dangerous"))

	if got.Score != 25 || got.Unscored || got.ClassifierFallback {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestScorerClassifierAdjusts(t *testing.T) {
	s := NewScorer(testLexicon(t), testLogger()).
		WithClassifier(&stubClassifier{adj: Adjustment{ScoreDelta: 30, Categories: map[string]int{"coercion": 1}}}, time.Second)

	got := s.Score(context.Background(), resolved("this is dangerous"))

	if got.Score != 55 {
		t.Errorf("score = %d, want 55", got.Score)
	}
	if got.Categories["coercion"] != 1 {
		t.Errorf("classifier category not merged: %v", got.Categories)
	}
	if got.ClassifierFallback {
		t.Error("fallback must not be set on a successful classification")
	}
}

func TestScorerClassifierFailureFallsBack(t *testing.T) {
	s := NewScorer(testLexicon(t), testLogger()).
		WithClassifier(&stubClassifier{err: errors.New("service down")}, time.Second)

	got := s.Score(context.Background(), resolved("this is dangerous"))

	if got.Score != 25 {
		t.Errorf("score = %d, want the lexicon-only 25", got.Score)
	}
	if !got.ClassifierFallback {
		t.Error("fallback must be recorded on the message")
	}
}

func TestScorerClassifierTimeoutFallsBack(t *testing.T) {
	s := NewScorer(testLexicon(t), testLogger()).
		WithClassifier(&stubClassifier{delay: time.Second, adj: Adjustment{ScoreDelta: 30}}, 10*time.Millisecond)

	got := s.Score(context.Background(), resolved("this is dangerous"))

	if got.Score != 25 {
		t.Errorf("score = %d, want the lexicon-only 25", got.Score)
	}
	if !got.ClassifierFallback {
		t.Error("timeout must fall back to the lexicon score")
	}
}

func TestScorerClassifierClampsScore(t *testing.T) {
	tests := []struct {
		name  string
		delta int
		want  int
	}{
		{"clamped at max", 200, MaxScore},
		{"clamped at zero", -200, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(testLexicon(t), testLogger()).
				WithClassifier(&stubClassifier{adj: Adjustment{ScoreDelta: tt.delta}}, time.Second)
			got := s.Score(context.Background(), resolved("this is dangerous"))
			if got.Score != tt.want {
				t.Errorf("score = %d, want %d", got.Score, tt.want)
			}
		})
	}
}

func TestScorerSkipsClassifierForUnscored(t *testing.T) {
	s := NewScorer(testLexicon(t), testLogger()).
		WithClassifier(&stubClassifier{adj: Adjustment{ScoreDelta: 30}}, time.Second)

	got := s.Score(context.Background(), resolved("   "))

	if !got.Unscored || got.Score != 0 {
		t.Errorf("whitespace content must stay unscored, got %+v", got)
	}
}
