// Package correlate resolves raw per-platform sender strings into canonical
// identities, consulting and extending the case's Identity Registry.
//
// Resolution order for each sender: curated alias-map override, exact alias
// match within the platform, similarity match against all known aliases
// across platforms, new identity. The heuristic path only ever appends
// bindings; re-running on unchanged input and registry reproduces identical
// assignments.
package correlate

import (
	"github.com/agnivade/levenshtein"

	"commsight/internal/config"
	"commsight/internal/logging"
	"commsight/internal/message"
	"commsight/internal/registry"
)

// mapPlatform is the pseudo-platform under which alias-map canonical names
// are bound, so repeated overrides resolve to one identity.
const mapPlatform = "~aliasmap"

// Correlator resolves sender identities for a run.
type Correlator struct {
	cfg    config.CorrelationConfig
	logger *logging.Logger
}

// New creates a Correlator.
func New(cfg config.CorrelationConfig, logger *logging.Logger) *Correlator {
	return &Correlator{
		cfg:    cfg,
		logger: logger,
	}
}

// Result is the output of one correlation pass.
type Result struct {
	Messages []message.ResolvedMessage
	Statuses map[string]message.SourceStatus
}

// Correlate resolves every message in the given batches against the registry
// snapshot, staging new identities and alias bindings on the snapshot. The
// staged additions become durable only when the caller commits the registry,
// after the whole correlation phase has succeeded.
//
// Correlation is a synchronization point: all batches for the run must be
// present, because similarity matching considers aliases across platforms.
func (c *Correlator) Correlate(batches []message.Batch, snap *registry.Snapshot, mappings []AliasMapping) *Result {
	idx := buildAliasMapIndex(mappings)

	result := &Result{
		Statuses: make(map[string]message.SourceStatus, len(batches)),
	}

	for _, batch := range batches {
		if len(batch.Messages) == 0 {
			result.Statuses[batch.Platform] = message.SourceStatus{State: message.SourceEmpty}
			continue
		}

		for i, msg := range batch.Messages {
			resolved := message.ResolvedMessage{
				NormalizedMessage: msg,
				Seq:               i,
			}

			if msg.Timestamp != nil {
				utc := msg.Timestamp.UTC()
				resolved.UTC = &utc
			} else {
				resolved.Undated = true
			}

			identityID, confidence, heuristic := c.resolveSender(snap, idx, batch.Platform, msg.RawSender)
			resolved.IdentityID = identityID
			if heuristic {
				resolved.IdentityConfidence = confidence
			}

			result.Messages = append(result.Messages, resolved)
		}

		result.Statuses[batch.Platform] = message.SourceStatus{
			State:        message.SourceOK,
			MessageCount: len(batch.Messages),
		}
	}

	stagedIdentities, stagedAliases := snap.StagedCounts()
	c.logger.Info("correlation complete", map[string]interface{}{
		"case":          snap.CaseID,
		"messages":      len(result.Messages),
		"newIdentities": stagedIdentities,
		"newAliases":    stagedAliases,
	})

	return result
}

// resolveSender resolves one raw sender to an identity ID, staging registry
// additions as needed. Returns the identity, the match confidence, and
// whether the similarity heuristic decided the match.
func (c *Correlator) resolveSender(snap *registry.Snapshot, idx *aliasMapIndex, platform, rawSender string) (string, float64, bool) {
	alias := NormalizeSender(rawSender)

	// Curated override always wins.
	if canonical, ok := idx.lookup(platform, alias); ok {
		identityID := c.identityForCanonical(snap, canonical)
		snap.StageAlias(platform, alias, identityID, 1.0)
		return identityID, 1.0, false
	}

	// Exact match against an alias already owned within the same platform.
	if bound := snap.LookupAlias(platform, alias); bound != nil {
		return snap.Canonical(bound.IdentityID), 1.0, false
	}

	// Similarity against all known aliases across platforms.
	if identityID, sim, ok := c.bestSimilarityMatch(snap, alias); ok {
		if sim < c.cfg.ConfidenceThreshold {
			// Above the "possible" threshold only: attach as a
			// low-confidence binding surfaced for manual review.
			c.logger.Warn("ambiguous identity match", map[string]interface{}{
				"platform":   platform,
				"alias":      alias,
				"identity":   identityID,
				"similarity": sim,
			})
		}
		snap.StageAlias(platform, alias, identityID, sim)
		return identityID, sim, true
	}

	// First sighting: new identity owning this alias.
	identity := snap.StageIdentity(alias, platform, alias)
	snap.StageAlias(platform, alias, identity.IdentityID, 1.0)
	c.logger.Debug("new identity", map[string]interface{}{
		"platform": platform,
		"alias":    alias,
		"identity": identity.IdentityID,
	})
	return identity.IdentityID, 1.0, false
}

// identityForCanonical finds or creates the identity named by an alias-map
// canonical target. An existing alias equal to the canonical name (any
// platform, earliest binding wins) reuses that identity.
func (c *Correlator) identityForCanonical(snap *registry.Snapshot, canonical string) string {
	for _, a := range snap.Aliases() {
		if a.Alias == canonical {
			return snap.Canonical(a.IdentityID)
		}
	}

	identity := snap.StageIdentity(canonical, mapPlatform, canonical)
	snap.StageAlias(mapPlatform, canonical, identity.IdentityID, 1.0)
	return identity.IdentityID
}

// bestSimilarityMatch scores the alias against every known alias and picks
// the owning identity of the best match at or above the possible threshold.
// Ties on similarity break by earliest-created alias, which keeps the
// result stable across runs.
func (c *Correlator) bestSimilarityMatch(snap *registry.Snapshot, alias string) (string, float64, bool) {
	var (
		bestIdentity string
		bestSim      float64
		bestSeq      int64
		found        bool
	)

	for _, known := range snap.Aliases() {
		sim := similarity(alias, known.Alias)
		if sim < c.cfg.PossibleThreshold {
			continue
		}

		identityID := snap.Canonical(known.IdentityID)
		seq := snap.EarliestAliasSeq(identityID)

		better := sim > bestSim || (sim == bestSim && found && seq < bestSeq)
		if !found || better {
			bestIdentity = identityID
			bestSim = sim
			bestSeq = seq
			found = true
		}
	}

	return bestIdentity, bestSim, found
}

// similarity is the normalized Levenshtein similarity of two aliases:
// 1 - distance/maxLen, in [0,1]. Identical strings score 1.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la := len([]rune(a))
	lb := len([]rune(b))
	max := la
	if lb > max {
		max = lb
	}
	if max == 0 {
		return 1.0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(d)/float64(max)
}
