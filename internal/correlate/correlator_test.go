package correlate

import (
	"io"
	"testing"
	"time"

	"commsight/internal/config"
	"commsight/internal/logging"
	"commsight/internal/message"
	"commsight/internal/registry"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.ErrorLevel,
		Output: io.Discard,
	})
}

func testSnapshot() *registry.Snapshot {
	return registry.NewSnapshot("case-1", func() string { return "2026-01-01T00:00:00Z" })
}

func testCorrelator() *Correlator {
	return New(config.CorrelationConfig{
		ConfidenceThreshold: 0.85,
		PossibleThreshold:   0.70,
	}, testLogger())
}

func batch(platform string, senders ...string) message.Batch {
	b := message.Batch{Platform: platform}
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, s := range senders {
		t := ts.Add(time.Duration(i) * time.Minute)
		b.Messages = append(b.Messages, message.NormalizedMessage{
			Platform:  platform,
			RawSender: s,
			Timestamp: &t,
			Content:   "hello",
		})
	}
	return b
}

func TestCorrelateNewSenderCreatesIdentity(t *testing.T) {
	snap := testSnapshot()
	result := testCorrelator().Correlate([]message.Batch{batch("email", "John", "John")}, snap, nil)

	if len(result.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(result.Messages))
	}
	if result.Messages[0].IdentityID == "" {
		t.Fatal("expected an identity to be assigned")
	}
	if result.Messages[0].IdentityID != result.Messages[1].IdentityID {
		t.Errorf("same sender resolved to different identities: %s vs %s",
			result.Messages[0].IdentityID, result.Messages[1].IdentityID)
	}

	identities, aliases := snap.StagedCounts()
	if identities != 1 || aliases != 1 {
		t.Errorf("staged counts = (%d, %d), want (1, 1)", identities, aliases)
	}
}

func TestCorrelateExactAliasAcrossRuns(t *testing.T) {
	snap := testSnapshot()
	first := testCorrelator().Correlate([]message.Batch{batch("email", "John")}, snap, nil)
	wantID := first.Messages[0].IdentityID

	// Second run against the same snapshot state must resolve identically
	// without staging anything new.
	second := testCorrelator().Correlate([]message.Batch{batch("email", "john")}, snap, nil)
	if got := second.Messages[0].IdentityID; got != wantID {
		t.Errorf("re-run resolved to %s, want %s", got, wantID)
	}
}

func TestCorrelateSimilarityAttachesLowConfidence(t *testing.T) {
	snap := testSnapshot()
	c := testCorrelator()

	first := c.Correlate([]message.Batch{batch("email", "john")}, snap, nil)
	wantID := first.Messages[0].IdentityID

	// "jon" vs "john": similarity 0.75, between possible and confidence.
	second := c.Correlate([]message.Batch{batch("chat", "jon")}, snap, nil)
	got := second.Messages[0]
	if got.IdentityID != wantID {
		t.Errorf("similar alias resolved to %s, want %s", got.IdentityID, wantID)
	}
	if got.IdentityConfidence == 0 {
		t.Error("expected a heuristic confidence on the resolved message")
	}
	if got.IdentityConfidence >= 0.85 {
		t.Errorf("confidence = %v, expected below the confidence threshold", got.IdentityConfidence)
	}
}

func TestCorrelateBelowPossibleCreatesNewIdentity(t *testing.T) {
	snap := testSnapshot()
	c := testCorrelator()

	first := c.Correlate([]message.Batch{batch("email", "john")}, snap, nil)
	second := c.Correlate([]message.Batch{batch("chat", "alexandra")}, snap, nil)

	if first.Messages[0].IdentityID == second.Messages[0].IdentityID {
		t.Error("dissimilar aliases must not share an identity")
	}
}

func TestCorrelateAliasMapOverrideWins(t *testing.T) {
	snap := testSnapshot()
	c := testCorrelator()

	mappings := []AliasMapping{
		{Alias: "john_b", Canonical: "John"},
	}

	result := c.Correlate([]message.Batch{
		batch("email", "John"),
		batch("forum", "john_b"),
	}, snap, mappings)

	if result.Messages[0].IdentityID != result.Messages[1].IdentityID {
		t.Errorf("override did not unify identities: %s vs %s",
			result.Messages[0].IdentityID, result.Messages[1].IdentityID)
	}
	if result.Messages[1].IdentityConfidence != 0 {
		t.Error("override match must not record a heuristic confidence")
	}
}

func TestCorrelateIdempotent(t *testing.T) {
	batches := []message.Batch{
		batch("email", "John", "Jane"),
		batch("sms", "jon", "jane d"),
	}

	run := func() []string {
		snap := testSnapshot()
		result := testCorrelator().Correlate(batches, snap, nil)
		ids := make([]string, len(result.Messages))
		for i, m := range result.Messages {
			ids[i] = m.IdentityID
		}
		return ids
	}

	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("message %d resolved differently across runs: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestCorrelateTimestampNormalization(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	local := time.Date(2026, 3, 1, 9, 0, 0, 0, est)

	b := message.Batch{
		Platform: "email",
		Messages: []message.NormalizedMessage{
			{Platform: "email", RawSender: "John", Timestamp: &local, Content: "hi"},
			{Platform: "email", RawSender: "John", Content: "undated"},
		},
	}

	result := testCorrelator().Correlate([]message.Batch{b}, testSnapshot(), nil)

	dated := result.Messages[0]
	if dated.UTC == nil || !dated.UTC.Equal(local) || dated.UTC.Location() != time.UTC {
		t.Errorf("timestamp not normalized to UTC: %v", dated.UTC)
	}

	undated := result.Messages[1]
	if !undated.Undated || undated.UTC != nil {
		t.Errorf("missing timestamp must mark the message undated, got %+v", undated)
	}
}

func TestCorrelateEmptyBatchStatus(t *testing.T) {
	result := testCorrelator().Correlate([]message.Batch{
		{Platform: "email"},
		batch("sms", "John"),
	}, testSnapshot(), nil)

	if got := result.Statuses["email"].State; got != message.SourceEmpty {
		t.Errorf("email state = %q, want %q", got, message.SourceEmpty)
	}
	if got := result.Statuses["sms"]; got.State != message.SourceOK || got.MessageCount != 1 {
		t.Errorf("sms status = %+v, want ok with 1 message", got)
	}
}
