// Package orchestrator sequences the analysis pipeline for one case run:
// correlation, timeline construction, scoring, incident flagging, and
// pattern aggregation, assembled into a single Analysis artifact.
//
// Partial-source failures are recorded per source and never abort the run;
// configuration errors are validated eagerly and are fatal, since no
// partial result would be meaningful. Registry mutations commit only after
// the whole correlation phase succeeds, so an aborted run leaves the
// registry untouched.
package orchestrator

import (
	"context"
	"sort"
	"time"

	"commsight/internal/analysis"
	"commsight/internal/config"
	"commsight/internal/correlate"
	"commsight/internal/errors"
	"commsight/internal/incident"
	"commsight/internal/logging"
	"commsight/internal/message"
	"commsight/internal/pattern"
	"commsight/internal/registry"
	"commsight/internal/scoring"
	"commsight/internal/timeline"
	"commsight/internal/version"
)

// Source is one platform's input to a run. Err carries a read failure from
// the caller (e.g. an unreadable export file); a failed source is recorded
// in the status map and the remaining platforms proceed.
type Source struct {
	Platform string
	Messages []message.NormalizedMessage
	Err      error
}

// Orchestrator is the single entry point of the pipeline.
type Orchestrator struct {
	registry   *registry.Registry
	cfg        *config.Config
	classifier scoring.Classifier
	logger     *logging.Logger

	// workers bounds the scoring pool; 0 means one per CPU.
	workers int
}

// New creates an Orchestrator for a case's registry and configuration.
func New(reg *registry.Registry, cfg *config.Config, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		cfg:      cfg,
		logger:   logger,
	}
}

// WithClassifier attaches the optional external semantic classifier.
func (o *Orchestrator) WithClassifier(c scoring.Classifier) *Orchestrator {
	o.classifier = c
	return o
}

// Run executes the full pipeline for a case. Re-running with the same
// inputs and an unchanged registry reproduces an identical Analysis;
// running again with one more platform batch only adds new identities,
// messages, and incidents without perturbing existing ones.
func (o *Orchestrator) Run(ctx context.Context, caseID string, sources []Source, aliasMap []correlate.AliasMapping) (*analysis.Analysis, error) {
	// Configuration is validated before any processing begins.
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	lexicon, err := scoring.Compile(o.cfg.Scoring.Lexicon)
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]message.SourceStatus, len(sources))
	var batches []message.Batch
	total := 0
	for _, src := range sources {
		if src.Err != nil {
			statuses[src.Platform] = message.SourceStatus{
				State:  message.SourceFailed,
				Reason: src.Err.Error(),
			}
			o.logger.Warn("source unavailable", map[string]interface{}{
				"case":     caseID,
				"platform": src.Platform,
				"error":    src.Err.Error(),
			})
			continue
		}
		batches = append(batches, message.Batch{Platform: src.Platform, Messages: src.Messages})
		total += len(src.Messages)
	}

	// Batches correlate in a fixed order (platform priority, then name) so
	// identity creation order is independent of caller ordering.
	o.sortBatches(batches)

	snap, err := o.registry.Load(caseID)
	if err != nil {
		return nil, errors.New(errors.StorageFailure, "failed to load identity registry", err)
	}

	correlator := correlate.New(o.cfg.Correlation, o.logger)
	correlated := correlator.Correlate(batches, snap, aliasMap)

	// Cancellation before commit leaves the registry exactly as it was.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := o.registry.Commit(snap); err != nil {
		return nil, errors.New(errors.StorageFailure, "failed to commit identity registry", err)
	}

	ordered := timeline.Build(correlated.Messages, o.cfg.PlatformPriority)

	scorer := scoring.NewScorer(lexicon, o.logger)
	if o.classifier != nil && o.cfg.Classifier.Enabled {
		scorer = scorer.WithClassifier(o.classifier, time.Duration(o.cfg.Classifier.TimeoutMs)*time.Millisecond)
	}

	// Scoring is stateless per message; run it across the pool, writing
	// by index so the timeline order survives scheduling.
	scored := make([]message.ScoredMessage, len(ordered))
	forEachParallel(o.workers, len(ordered), func(i int) {
		scored[i] = scorer.Score(ctx, ordered[i])
	})

	// Every input message appears in exactly one scored message.
	if len(scored) != total {
		return nil, errors.Newf(errors.InternalError,
			"message loss detected: %d in, %d scored", total, len(scored))
	}

	flagger := incident.New(o.cfg.Incidents, o.logger)
	incidents := flagger.Flag(scored)

	patterns := pattern.Aggregate(scored, o.cfg.Aggregation)

	result := &analysis.Analysis{
		CaseID:     caseID,
		Version:    version.Version,
		Sources:    mergeStatuses(statuses, correlated.Statuses),
		Identities: identityRecords(snap, scored),
		Timeline:   scored,
		Incidents:  incidents,
		Patterns:   patterns,
	}

	o.logger.Info("analysis complete", map[string]interface{}{
		"case":       caseID,
		"messages":   len(scored),
		"incidents":  len(incidents),
		"identities": len(result.Identities),
	})

	return result, nil
}

// sortBatches orders batches by configured platform priority, then name.
func (o *Orchestrator) sortBatches(batches []message.Batch) {
	prio := make(map[string]int, len(o.cfg.PlatformPriority))
	for i, p := range o.cfg.PlatformPriority {
		prio[p] = i
	}
	rank := func(p string) int {
		if r, ok := prio[p]; ok {
			return r
		}
		return len(o.cfg.PlatformPriority)
	}
	sort.SliceStable(batches, func(i, j int) bool {
		ri, rj := rank(batches[i].Platform), rank(batches[j].Platform)
		if ri != rj {
			return ri < rj
		}
		return batches[i].Platform < batches[j].Platform
	})
}

func mergeStatuses(a, b map[string]message.SourceStatus) map[string]message.SourceStatus {
	merged := make(map[string]message.SourceStatus, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}

// identityRecords summarizes the identities that own messages in this run,
// ordered by identity ID for a stable artifact.
func identityRecords(snap *registry.Snapshot, scored []message.ScoredMessage) []analysis.IdentityRecord {
	seen := make(map[string]bool)
	for _, m := range scored {
		seen[m.IdentityID] = true
	}

	records := make([]analysis.IdentityRecord, 0, len(seen))
	for identityID := range seen {
		rec := analysis.IdentityRecord{IdentityID: identityID}
		if id := snap.Identity(identityID); id != nil {
			rec.CanonicalLabel = id.CanonicalLabel
		}

		platforms := make(map[string]bool)
		for _, a := range snap.Aliases() {
			if snap.Canonical(a.IdentityID) != identityID {
				continue
			}
			rec.Aliases = append(rec.Aliases, a.Alias)
			platforms[a.Platform] = true
		}
		for p := range platforms {
			rec.Platforms = append(rec.Platforms, p)
		}
		sort.Strings(rec.Aliases)
		sort.Strings(rec.Platforms)

		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].IdentityID < records[j].IdentityID
	})
	return records
}
