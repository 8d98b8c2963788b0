// Package registry implements the case-scoped Identity Registry: a durable,
// append-only mapping of platform-specific sender aliases to canonical
// identities. Bindings are never rebound by the heuristic path; identity
// consolidation supersedes old identities instead of deleting them.
package registry

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Identity is a canonical person/entity resolved from one or more
// per-platform aliases. CreatedSeq records creation order within the case
// and drives the deterministic similarity tie-break.
type Identity struct {
	IdentityID     string `json:"identityId"`
	CaseID         string `json:"caseId"`
	CanonicalLabel string `json:"canonicalLabel"`
	CreatedSeq     int64  `json:"createdSeq"`
	SupersededBy   string `json:"supersededBy,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

// Superseded reports whether this identity was replaced by a consolidation.
func (i *Identity) Superseded() bool {
	return i.SupersededBy != ""
}

// Alias is one (platform, alias) -> identity binding. Confidence below 1.0
// marks a heuristic binding surfaced for manual review.
type Alias struct {
	CaseID     string  `json:"caseId"`
	Platform   string  `json:"platform"`
	Alias      string  `json:"alias"`
	IdentityID string  `json:"identityId"`
	Confidence float64 `json:"confidence"`
	CreatedSeq int64   `json:"createdSeq"`
	CreatedAt  string  `json:"createdAt"`
}

func aliasKey(platform, alias string) string {
	return platform + "\x00" + alias
}

// Snapshot is the in-memory, run-local view of one case's registry. The
// correlator consults and extends it; staged additions become durable only
// when Registry.Commit succeeds, so an aborted run leaves the store exactly
// as it was.
//
// A Snapshot must only be mutated by one logical writer at a time.
type Snapshot struct {
	CaseID string

	identities map[string]*Identity
	aliases    map[string]*Alias

	// aliasOrder holds all aliases sorted by CreatedSeq so similarity
	// scans iterate deterministically.
	aliasOrder []*Alias

	stagedIdentities []*Identity
	stagedAliases    []*Alias

	nextIdentitySeq int64
	nextAliasSeq    int64

	// now stamps staged rows; injected so commits are reproducible in tests.
	now func() string
}

// NewSnapshot creates an empty snapshot for a case.
func NewSnapshot(caseID string, now func() string) *Snapshot {
	return &Snapshot{
		CaseID:     caseID,
		identities: make(map[string]*Identity),
		aliases:    make(map[string]*Alias),
		now:        now,
	}
}

func (s *Snapshot) addLoaded(identities []*Identity, aliases []*Alias) {
	for _, id := range identities {
		s.identities[id.IdentityID] = id
		if id.CreatedSeq >= s.nextIdentitySeq {
			s.nextIdentitySeq = id.CreatedSeq + 1
		}
	}
	for _, a := range aliases {
		s.aliases[aliasKey(a.Platform, a.Alias)] = a
		s.aliasOrder = append(s.aliasOrder, a)
		if a.CreatedSeq >= s.nextAliasSeq {
			s.nextAliasSeq = a.CreatedSeq + 1
		}
	}
	sort.Slice(s.aliasOrder, func(i, j int) bool {
		return s.aliasOrder[i].CreatedSeq < s.aliasOrder[j].CreatedSeq
	})
}

// Identity returns the identity with the given ID, or nil.
func (s *Snapshot) Identity(identityID string) *Identity {
	return s.identities[identityID]
}

// LookupAlias returns the binding for (platform, alias), or nil.
func (s *Snapshot) LookupAlias(platform, alias string) *Alias {
	return s.aliases[aliasKey(platform, alias)]
}

// Aliases returns all bindings ordered by creation sequence.
func (s *Snapshot) Aliases() []*Alias {
	return s.aliasOrder
}

// EarliestAliasSeq returns the creation sequence of the identity's earliest
// alias, used as the deterministic similarity tie-break. Identities without
// aliases sort by their own creation sequence after all aliased ones.
func (s *Snapshot) EarliestAliasSeq(identityID string) int64 {
	for _, a := range s.aliasOrder {
		if a.IdentityID == identityID {
			return a.CreatedSeq
		}
	}
	id := s.identities[identityID]
	if id == nil {
		return 1<<62 - 1
	}
	return 1<<61 + id.CreatedSeq
}

// Canonical follows supersedes links from an identity to the current
// consolidated identity, so messages always attribute to the identity that
// replaced a merged one.
func (s *Snapshot) Canonical(identityID string) string {
	seen := make(map[string]bool)
	current := identityID
	for {
		id := s.identities[current]
		if id == nil || !id.Superseded() || seen[current] {
			return current
		}
		seen[current] = true
		current = id.SupersededBy
	}
}

// IdentityIDFor derives the stable identity ID for a first-seen alias.
// IDs are content-derived (UUIDv5) so re-running correlation on an
// unchanged registry reproduces identical assignments.
func IdentityIDFor(caseID, platform, alias string) string {
	name := fmt.Sprintf("commsight:identity:%s:%s:%s", caseID, platform, alias)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// StageIdentity creates a new identity for a first-seen alias and stages it
// for commit. Returns the new identity.
func (s *Snapshot) StageIdentity(label, platform, alias string) *Identity {
	id := &Identity{
		IdentityID:     IdentityIDFor(s.CaseID, platform, alias),
		CaseID:         s.CaseID,
		CanonicalLabel: label,
		CreatedSeq:     s.nextIdentitySeq,
		CreatedAt:      s.now(),
	}
	s.nextIdentitySeq++
	s.identities[id.IdentityID] = id
	s.stagedIdentities = append(s.stagedIdentities, id)
	return id
}

// StageAlias binds (platform, alias) to an identity and stages the binding
// for commit. Existing bindings are never replaced.
func (s *Snapshot) StageAlias(platform, alias, identityID string, confidence float64) *Alias {
	key := aliasKey(platform, alias)
	if existing := s.aliases[key]; existing != nil {
		return existing
	}
	a := &Alias{
		CaseID:     s.CaseID,
		Platform:   platform,
		Alias:      alias,
		IdentityID: identityID,
		Confidence: confidence,
		CreatedSeq: s.nextAliasSeq,
		CreatedAt:  s.now(),
	}
	s.nextAliasSeq++
	s.aliases[key] = a
	s.aliasOrder = append(s.aliasOrder, a)
	s.stagedAliases = append(s.stagedAliases, a)
	return a
}

// StagedCounts returns the number of staged identities and aliases.
func (s *Snapshot) StagedCounts() (identities, aliases int) {
	return len(s.stagedIdentities), len(s.stagedAliases)
}
