// Package incident groups temporally and identity-clustered high-scoring
// messages into discrete incidents. Traversal is per-identity and each
// identity's own message list is processed in chronological order; work
// across identities is independent and runs in parallel.
package incident

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"commsight/internal/config"
	"commsight/internal/logging"
	"commsight/internal/message"
)

// Severity classifies an incident by its peak contributing score.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// MessageRef identifies one contributing scored message within the timeline.
type MessageRef struct {
	Platform   string     `json:"platform"`
	Seq        int        `json:"seq"`
	ExternalID string     `json:"externalId,omitempty"`
	UTC        *time.Time `json:"utc"`
	Score      int        `json:"score"`
}

// Incident is a time-bounded cluster of high-risk messages attributed to
// one identity. Never mutated after creation except to append messages
// discovered to belong to the still-open window.
type Incident struct {
	IncidentID  string       `json:"incidentId"`
	IdentityID  string       `json:"identityId"`
	Category    string       `json:"category"`
	Severity    Severity     `json:"severity"`
	WindowStart time.Time    `json:"windowStart"`
	WindowEnd   time.Time    `json:"windowEnd"`
	Messages    []MessageRef `json:"messages"`

	// categoryHits accumulates per-category hits while the window is open;
	// the dominant category is fixed when the incident is sealed.
	categoryHits map[string]int
	peakScore    int
}

// Flagger produces incidents from the scored timeline.
type Flagger struct {
	cfg    config.IncidentConfig
	logger *logging.Logger
}

// New creates a Flagger.
func New(cfg config.IncidentConfig, logger *logging.Logger) *Flagger {
	return &Flagger{
		cfg:    cfg,
		logger: logger,
	}
}

// Flag walks the chronological scored timeline and returns the incident
// list, sorted by (window start, identity, id) for determinism. Undated
// messages cannot anchor or join a time window and are skipped here; they
// still appear in the timeline and the pattern summary.
//
// Raising the score threshold never increases the number or size of the
// incidents produced from the same input.
func (f *Flagger) Flag(timeline []message.ScoredMessage) []Incident {
	// Group per identity, preserving chronological order.
	byIdentity := make(map[string][]message.ScoredMessage)
	var order []string
	for _, m := range timeline {
		if m.Undated {
			continue
		}
		if _, ok := byIdentity[m.IdentityID]; !ok {
			order = append(order, m.IdentityID)
		}
		byIdentity[m.IdentityID] = append(byIdentity[m.IdentityID], m)
	}

	results := make([][]Incident, len(order))
	var wg sync.WaitGroup
	for i, identityID := range order {
		wg.Add(1)
		go func(slot int, identityID string, msgs []message.ScoredMessage) {
			defer wg.Done()
			results[slot] = f.flagIdentity(identityID, msgs)
		}(i, identityID, byIdentity[identityID])
	}
	wg.Wait()

	var incidents []Incident
	for _, r := range results {
		incidents = append(incidents, r...)
	}

	sort.SliceStable(incidents, func(i, j int) bool {
		if !incidents[i].WindowStart.Equal(incidents[j].WindowStart) {
			return incidents[i].WindowStart.Before(incidents[j].WindowStart)
		}
		if incidents[i].IdentityID != incidents[j].IdentityID {
			return incidents[i].IdentityID < incidents[j].IdentityID
		}
		return incidents[i].IncidentID < incidents[j].IncidentID
	})

	f.logger.Info("incident flagging complete", map[string]interface{}{
		"identities": len(order),
		"incidents":  len(incidents),
	})

	return incidents
}

// flagIdentity walks one identity's chronological messages.
func (f *Flagger) flagIdentity(identityID string, msgs []message.ScoredMessage) []Incident {
	window := time.Duration(f.cfg.WindowMinutes) * time.Minute

	var incidents []Incident
	var open *Incident

	// lastClosed bounds the cumulative running window so messages that
	// already contributed to a sealed incident are never counted twice.
	var lastClosed time.Time

	for i := range msgs {
		m := &msgs[i]
		ts := *m.UTC

		if open != nil {
			if !ts.After(open.WindowEnd) {
				appendMessage(open, m)
				continue
			}
			// Window closed; seal and fall through to re-evaluate.
			seal(open)
			incidents = append(incidents, *open)
			lastClosed = open.WindowEnd
			open = nil
		}

		switch f.cfg.Policy {
		case config.PolicyCumulative:
			start, sum := runningWindow(msgs[:i+1], ts, window, lastClosed)
			if sum >= f.cfg.ScoreThreshold {
				open = f.openIncident(identityID, msgs[start:i+1], window)
			}
		default: // peak
			if m.Score >= f.cfg.ScoreThreshold {
				open = f.openIncident(identityID, msgs[i:i+1], window)
			}
		}
	}

	if open != nil {
		seal(open)
		incidents = append(incidents, *open)
	}

	return incidents
}

// runningWindow finds the earliest index whose message still falls inside
// the sliding window ending at ts, excluding anything at or before the
// last sealed window's end, and sums the scores inside.
func runningWindow(msgs []message.ScoredMessage, ts time.Time, window time.Duration, lastClosed time.Time) (start, sum int) {
	cutoff := ts.Add(-window)
	start = len(msgs) - 1
	for start > 0 {
		prev := *msgs[start-1].UTC
		if prev.Before(cutoff) || !prev.After(lastClosed) {
			break
		}
		start--
	}
	for _, m := range msgs[start:] {
		sum += m.Score
	}
	return start, sum
}

// openIncident opens a window anchored at the first contributing message.
func (f *Flagger) openIncident(identityID string, contributing []message.ScoredMessage, window time.Duration) *Incident {
	anchor := *contributing[0].UTC
	inc := &Incident{
		IncidentID:   incidentID(identityID, anchor),
		IdentityID:   identityID,
		WindowStart:  anchor,
		WindowEnd:    anchor.Add(window),
		categoryHits: make(map[string]int),
	}
	for i := range contributing {
		appendMessage(inc, &contributing[i])
	}
	return inc
}

func appendMessage(inc *Incident, m *message.ScoredMessage) {
	inc.Messages = append(inc.Messages, MessageRef{
		Platform:   m.Platform,
		Seq:        m.Seq,
		ExternalID: m.ExternalID,
		UTC:        m.UTC,
		Score:      m.Score,
	})
	for cat, hits := range m.Categories {
		inc.categoryHits[cat] += hits
	}
	if m.Score > inc.peakScore {
		inc.peakScore = m.Score
	}
}

// seal fixes the dominant category and severity once the window is done.
// Dominant category is the one with the most total hits; ties break by
// earliest category alphabetically.
func seal(inc *Incident) {
	var best string
	bestHits := -1
	cats := make([]string, 0, len(inc.categoryHits))
	for cat := range inc.categoryHits {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	for _, cat := range cats {
		if inc.categoryHits[cat] > bestHits {
			best = cat
			bestHits = inc.categoryHits[cat]
		}
	}
	inc.Category = best
	inc.Severity = severityOf(inc.peakScore)
}

func severityOf(peak int) Severity {
	switch {
	case peak >= 80:
		return SeverityHigh
	case peak >= 40:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// incidentID derives a stable incident identifier from the identity and the
// window anchor, so re-runs reproduce identical IDs.
func incidentID(identityID string, anchor time.Time) string {
	name := fmt.Sprintf("commsight:incident:%s:%s", identityID, anchor.UTC().Format(time.RFC3339Nano))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
