// Package analysis defines the Analysis artifact, the single output the
// orchestrator assembles for a case run, and its stable serialized form.
// Downstream report and UI consumers must treat it as read-only.
package analysis

import (
	"commsight/internal/incident"
	"commsight/internal/message"
	"commsight/internal/pattern"
)

// IdentityRecord summarizes one canonical identity seen in the run.
type IdentityRecord struct {
	IdentityID     string   `json:"identityId"`
	CanonicalLabel string   `json:"canonicalLabel"`
	Platforms      []string `json:"platforms"`
	Aliases        []string `json:"aliases"`
}

// Analysis is the artifact a run returns. It is owned by the case and
// replaced wholesale on re-run, never partially mutated. It carries no
// wall-clock fields: re-running on identical inputs and registry state must
// reproduce a byte-identical artifact.
type Analysis struct {
	CaseID     string                          `json:"caseId"`
	Version    string                          `json:"version"`
	Sources    map[string]message.SourceStatus `json:"sources"`
	Identities []IdentityRecord                `json:"identities"`
	Timeline   []message.ScoredMessage         `json:"timeline"`
	Incidents  []incident.Incident             `json:"incidents"`
	Patterns   *pattern.Summary                `json:"patterns"`
}
