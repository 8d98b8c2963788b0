package pattern

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"commsight/internal/config"
	"commsight/internal/message"
)

func testConfig() config.AggregationConfig {
	return config.AggregationConfig{
		BucketHours: 24,
		TopN:        10,
	}
}

func scored(identity string, ts time.Time, score int, cats map[string]int) message.ScoredMessage {
	return message.ScoredMessage{
		ResolvedMessage: message.ResolvedMessage{
			NormalizedMessage: message.NormalizedMessage{Platform: "email"},
			IdentityID:        identity,
			UTC:               &ts,
		},
		Score:      score,
		Categories: cats,
	}
}

var base = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestAggregateCounts(t *testing.T) {
	input := []message.ScoredMessage{
		scored("id-1", base, 50, map[string]int{"threat": 1}),
		scored("id-1", base.Add(time.Hour), 25, map[string]int{"danger": 1}),
		{
			ResolvedMessage: message.ResolvedMessage{
				NormalizedMessage: message.NormalizedMessage{Platform: "sms"},
				IdentityID:        "id-2",
				Undated:           true,
			},
			Unscored: true,
		},
	}

	got := Aggregate(input, testConfig())

	if got.TotalMessages != 3 {
		t.Errorf("TotalMessages = %d, want 3", got.TotalMessages)
	}
	if got.UnscoredMessages != 1 {
		t.Errorf("UnscoredMessages = %d, want 1", got.UnscoredMessages)
	}
	if got.UndatedMessages != 1 {
		t.Errorf("UndatedMessages = %d, want 1", got.UndatedMessages)
	}
}

func TestAggregateRanking(t *testing.T) {
	input := []message.ScoredMessage{
		scored("id-quiet", base, 10, map[string]int{"danger": 1}),
		scored("id-loud", base, 80, map[string]int{"threat": 2}),
		scored("id-loud", base.Add(time.Hour), 60, map[string]int{"threat": 1}),
	}

	got := Aggregate(input, testConfig())

	wantCats := []CategoryCount{
		{Category: "threat", Hits: 3},
		{Category: "danger", Hits: 1},
	}
	if !reflect.DeepEqual(got.TopCategories, wantCats) {
		t.Errorf("TopCategories = %+v, want %+v", got.TopCategories, wantCats)
	}

	if got.TopIdentities[0].IdentityID != "id-loud" {
		t.Errorf("top identity = %s, want id-loud", got.TopIdentities[0].IdentityID)
	}
	if got.TopIdentities[0].Messages != 2 || got.TopIdentities[0].ScoreTotal != 140 {
		t.Errorf("top identity stats = %+v", got.TopIdentities[0])
	}
}

func TestAggregateRankingTieBreaks(t *testing.T) {
	input := []message.ScoredMessage{
		scored("id-b", base, 50, map[string]int{"zeta": 1}),
		scored("id-a", base, 50, map[string]int{"alpha": 1}),
	}

	got := Aggregate(input, testConfig())

	// Equal hits then category name; equal volume and score then identity.
	if got.TopCategories[0].Category != "alpha" {
		t.Errorf("tied categories not alphabetical: %+v", got.TopCategories)
	}
	if got.TopIdentities[0].IdentityID != "id-a" {
		t.Errorf("tied identities not ordered by ID: %+v", got.TopIdentities)
	}
}

func TestAggregateTopNCaps(t *testing.T) {
	var input []message.ScoredMessage
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		input = append(input, scored("id-"+id, base, i+1, map[string]int{"cat-" + id: 1}))
	}

	cfg := testConfig()
	cfg.TopN = 5
	got := Aggregate(input, cfg)

	if len(got.TopCategories) != 5 || len(got.TopIdentities) != 5 {
		t.Errorf("TopN not applied: %d categories, %d identities",
			len(got.TopCategories), len(got.TopIdentities))
	}
	if got.TotalMessages != 20 {
		t.Errorf("TopN must not affect totals: %d", got.TotalMessages)
	}
}

func TestAggregateHistogram(t *testing.T) {
	input := []message.ScoredMessage{
		scored("id-1", base, 40, nil),
		scored("id-1", base.Add(2*time.Hour), 60, nil),
		scored("id-1", base.Add(25*time.Hour), 30, nil),
		{
			ResolvedMessage: message.ResolvedMessage{
				NormalizedMessage: message.NormalizedMessage{Platform: "email"},
				IdentityID:        "id-1",
				Undated:           true,
			},
			Score: 99,
		},
	}

	got := Aggregate(input, testConfig())

	if len(got.Histogram) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(got.Histogram))
	}

	day1 := got.Histogram[0]
	if !day1.Start.Equal(base) || day1.Messages != 2 || day1.MeanScore != 50 {
		t.Errorf("first bucket = %+v", day1)
	}

	day2 := got.Histogram[1]
	if day2.Messages != 1 || day2.MeanScore != 30 {
		t.Errorf("second bucket = %+v", day2)
	}

	// The undated message counts in totals but occupies no bucket.
	if got.TotalMessages != 4 {
		t.Errorf("TotalMessages = %d, want 4", got.TotalMessages)
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	var input []message.ScoredMessage
	for i := 0; i < 200; i++ {
		cats := map[string]int{"threat": i % 3, "danger": i % 2}
		input = append(input, scored("id-"+string(rune('a'+i%7)), base.Add(time.Duration(i)*time.Hour), i%100, cats))
	}

	want := Aggregate(input, testConfig())

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 5; trial++ {
		shuffled := make([]message.ScoredMessage, len(input))
		copy(shuffled, input)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		got := Aggregate(shuffled, testConfig())
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("trial %d: aggregation depends on input order", trial)
		}
	}
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil, testConfig())

	if got.TotalMessages != 0 {
		t.Errorf("TotalMessages = %d, want 0", got.TotalMessages)
	}
	if len(got.TopCategories) != 0 || len(got.TopIdentities) != 0 || len(got.Histogram) != 0 {
		t.Errorf("empty input must produce an empty summary: %+v", got)
	}
}
