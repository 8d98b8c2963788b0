// Package message defines the record types that flow through the analysis
// pipeline. A communication record passes through three enrichment stages:
// NormalizedMessage (parser handoff), ResolvedMessage (identity assigned),
// ScoredMessage (risk scored). Each stage is immutable once produced.
package message

import (
	"time"
)

// NormalizedMessage is the input contract from the platform parsers.
// Parsers are responsible for character-encoding normalization; the
// timestamp is best-effort and may be absent (source timezone unknown).
type NormalizedMessage struct {
	Platform   string     `json:"platform"`
	RawSender  string     `json:"rawSender"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Content    string     `json:"content"`
	ExternalID string     `json:"externalId,omitempty"`
}

// Batch is one platform's worth of normalized messages handed to a run.
type Batch struct {
	Platform string              `json:"platform"`
	Messages []NormalizedMessage `json:"messages"`
}

// ResolvedMessage is a NormalizedMessage after identity correlation:
// a canonical identity is assigned and the timestamp is normalized to UTC
// or explicitly marked undated. Owned by the pipeline once correlation
// completes.
type ResolvedMessage struct {
	NormalizedMessage

	IdentityID string     `json:"identityId"`
	UTC        *time.Time `json:"utc,omitempty"`
	Undated    bool       `json:"undated,omitempty"`

	// Seq is the ingestion sequence number within the message's platform
	// batch. It is the final tie-break for equal timestamps and fixes the
	// order of the undated partition.
	Seq int `json:"seq"`

	// IdentityConfidence is set only when the identity was attached through
	// the similarity heuristic. Values below the confidence threshold mark
	// the binding for manual review.
	IdentityConfidence float64 `json:"identityConfidence,omitempty"`
}

// ScoredMessage is a ResolvedMessage after risk scoring. Created once by
// the scorer; immutable afterward.
type ScoredMessage struct {
	ResolvedMessage

	Score      int            `json:"score"`
	Categories map[string]int `json:"categories,omitempty"`

	// Unscored distinguishes empty or non-text content from a genuinely
	// low score of 0.
	Unscored bool `json:"unscored,omitempty"`

	// ClassifierFallback records that the external classifier hook failed
	// or timed out and the lexicon-only score was kept.
	ClassifierFallback bool `json:"classifierFallback,omitempty"`
}

// SourceState describes the outcome of reading and correlating one
// platform's batch.
type SourceState string

const (
	// SourceOK means the batch was read and correlated.
	SourceOK SourceState = "ok"
	// SourceEmpty means the batch contained no messages.
	SourceEmpty SourceState = "empty"
	// SourceFailed means the batch was missing or unreadable.
	SourceFailed SourceState = "failed"
)

// SourceStatus is the per-source entry in the Analysis status map.
type SourceStatus struct {
	State        SourceState `json:"state"`
	Reason       string      `json:"reason,omitempty"`
	MessageCount int         `json:"messageCount"`
}
