// Package pattern computes corpus-wide statistics over the scored message
// set. Aggregation is a commutative, order-independent reduction: permuting
// the input never changes the result. That property is what distinguishes
// it from the order-sensitive timeline and flagger, and is what makes the
// internal parallel map-reduce safe.
package pattern

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"commsight/internal/config"
	"commsight/internal/message"
)

// CategoryCount ranks one category by its total hit count.
type CategoryCount struct {
	Category string `json:"category"`
	Hits     int    `json:"hits"`
}

// IdentityStat ranks one identity by message volume and score mass.
type IdentityStat struct {
	IdentityID string `json:"identityId"`
	Messages   int    `json:"messages"`
	ScoreTotal int    `json:"scoreTotal"`
}

// Bucket is one cell of the temporal frequency histogram.
type Bucket struct {
	Start     time.Time `json:"start"`
	Messages  int       `json:"messages"`
	MeanScore float64   `json:"meanScore"`
}

// Summary is the corpus-level pattern report. It is derived and
// recomputable at any time from the full scored set; it is never a primary
// entity.
type Summary struct {
	TotalMessages    int             `json:"totalMessages"`
	UnscoredMessages int             `json:"unscoredMessages"`
	UndatedMessages  int             `json:"undatedMessages"`
	TopCategories    []CategoryCount `json:"topCategories"`
	TopIdentities    []IdentityStat  `json:"topIdentities"`
	Histogram        []Bucket        `json:"histogram"`
}

// accumulator is one shard's partial reduction state.
type accumulator struct {
	total      int
	unscored   int
	undated    int
	categories map[string]int
	identities map[string]*IdentityStat
	buckets    map[time.Time]*bucketAcc
}

type bucketAcc struct {
	messages int
	scoreSum int
}

func newAccumulator() *accumulator {
	return &accumulator{
		categories: make(map[string]int),
		identities: make(map[string]*IdentityStat),
		buckets:    make(map[time.Time]*bucketAcc),
	}
}

func (a *accumulator) add(m *message.ScoredMessage, bucketWidth time.Duration) {
	a.total++
	if m.Unscored {
		a.unscored++
	}

	for cat, hits := range m.Categories {
		a.categories[cat] += hits
	}

	stat := a.identities[m.IdentityID]
	if stat == nil {
		stat = &IdentityStat{IdentityID: m.IdentityID}
		a.identities[m.IdentityID] = stat
	}
	stat.Messages++
	stat.ScoreTotal += m.Score

	if m.Undated {
		// Undated messages count in the totals but have no histogram cell.
		a.undated++
		return
	}
	start := m.UTC.Truncate(bucketWidth)
	b := a.buckets[start]
	if b == nil {
		b = &bucketAcc{}
		a.buckets[start] = b
	}
	b.messages++
	b.scoreSum += m.Score
}

// merge folds another shard's state into this one. Merging is commutative
// and associative, so shard boundaries never affect the result.
func (a *accumulator) merge(other *accumulator) {
	a.total += other.total
	a.unscored += other.unscored
	a.undated += other.undated
	for cat, hits := range other.categories {
		a.categories[cat] += hits
	}
	for id, stat := range other.identities {
		mine := a.identities[id]
		if mine == nil {
			a.identities[id] = &IdentityStat{IdentityID: id, Messages: stat.Messages, ScoreTotal: stat.ScoreTotal}
			continue
		}
		mine.Messages += stat.Messages
		mine.ScoreTotal += stat.ScoreTotal
	}
	for start, b := range other.buckets {
		mine := a.buckets[start]
		if mine == nil {
			a.buckets[start] = &bucketAcc{messages: b.messages, scoreSum: b.scoreSum}
			continue
		}
		mine.messages += b.messages
		mine.scoreSum += b.scoreSum
	}
}

// Aggregate reduces the full scored set into a Summary. Input order is
// irrelevant; the reduction runs as a parallel map-reduce over shards.
func Aggregate(scored []message.ScoredMessage, cfg config.AggregationConfig) *Summary {
	bucketWidth := time.Duration(cfg.BucketHours) * time.Hour

	shards := runtime.NumCPU()
	if shards > len(scored) {
		shards = 1
	}

	partials := make([]*accumulator, shards)
	var wg sync.WaitGroup
	chunk := (len(scored) + shards - 1) / shards
	for s := 0; s < shards; s++ {
		lo := s * chunk
		hi := lo + chunk
		if hi > len(scored) {
			hi = len(scored)
		}
		wg.Add(1)
		go func(slot, lo, hi int) {
			defer wg.Done()
			acc := newAccumulator()
			for i := lo; i < hi; i++ {
				acc.add(&scored[i], bucketWidth)
			}
			partials[slot] = acc
		}(s, lo, hi)
	}
	wg.Wait()

	acc := newAccumulator()
	for _, p := range partials {
		acc.merge(p)
	}

	return acc.summary(cfg.TopN)
}

// summary finalizes the reduction into ranked, deterministically ordered
// lists.
func (a *accumulator) summary(topN int) *Summary {
	s := &Summary{
		TotalMessages:    a.total,
		UnscoredMessages: a.unscored,
		UndatedMessages:  a.undated,
	}

	for cat, hits := range a.categories {
		s.TopCategories = append(s.TopCategories, CategoryCount{Category: cat, Hits: hits})
	}
	sort.SliceStable(s.TopCategories, func(i, j int) bool {
		if s.TopCategories[i].Hits != s.TopCategories[j].Hits {
			return s.TopCategories[i].Hits > s.TopCategories[j].Hits
		}
		return s.TopCategories[i].Category < s.TopCategories[j].Category
	})

	for _, stat := range a.identities {
		s.TopIdentities = append(s.TopIdentities, *stat)
	}
	sort.SliceStable(s.TopIdentities, func(i, j int) bool {
		if s.TopIdentities[i].Messages != s.TopIdentities[j].Messages {
			return s.TopIdentities[i].Messages > s.TopIdentities[j].Messages
		}
		if s.TopIdentities[i].ScoreTotal != s.TopIdentities[j].ScoreTotal {
			return s.TopIdentities[i].ScoreTotal > s.TopIdentities[j].ScoreTotal
		}
		return s.TopIdentities[i].IdentityID < s.TopIdentities[j].IdentityID
	})

	if topN > 0 {
		if len(s.TopCategories) > topN {
			s.TopCategories = s.TopCategories[:topN]
		}
		if len(s.TopIdentities) > topN {
			s.TopIdentities = s.TopIdentities[:topN]
		}
	}

	for start, b := range a.buckets {
		s.Histogram = append(s.Histogram, Bucket{
			Start:     start,
			Messages:  b.messages,
			MeanScore: float64(b.scoreSum) / float64(b.messages),
		})
	}
	sort.SliceStable(s.Histogram, func(i, j int) bool {
		return s.Histogram[i].Start.Before(s.Histogram[j].Start)
	})

	return s
}
