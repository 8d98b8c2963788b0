package registry

import (
	"io"
	"testing"

	"commsight/internal/logging"
	"commsight/internal/storage"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.ErrorLevel,
		Output: io.Discard,
	})
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := storage.Open(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRegistry(db, testLogger())
}

func fixedNow() string { return "2026-03-01T00:00:00Z" }

func TestCommitAndReload(t *testing.T) {
	reg := testRegistry(t)

	snap := NewSnapshot("case-1", fixedNow)
	id := snap.StageIdentity("john", "email", "john")
	snap.StageAlias("email", "john", id.IdentityID, 1.0)
	snap.StageAlias("sms", "jon", id.IdentityID, 0.75)

	if err := reg.Commit(snap); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	reloaded, err := reg.Load("case-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got := reloaded.Identity(id.IdentityID)
	if got == nil || got.CanonicalLabel != "john" {
		t.Fatalf("identity not persisted: %+v", got)
	}

	aliases := reloaded.Aliases()
	if len(aliases) != 2 {
		t.Fatalf("expected 2 aliases, got %d", len(aliases))
	}
	if aliases[0].Alias != "john" || aliases[1].Alias != "jon" {
		t.Errorf("aliases not in creation order: %s, %s", aliases[0].Alias, aliases[1].Alias)
	}
	if aliases[1].Confidence != 0.75 {
		t.Errorf("confidence not persisted: %v", aliases[1].Confidence)
	}
}

func TestCommitClearsStaged(t *testing.T) {
	reg := testRegistry(t)

	snap := NewSnapshot("case-1", fixedNow)
	id := snap.StageIdentity("john", "email", "john")
	snap.StageAlias("email", "john", id.IdentityID, 1.0)

	if err := reg.Commit(snap); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	identities, aliases := snap.StagedCounts()
	if identities != 0 || aliases != 0 {
		t.Errorf("staged counts after commit = (%d, %d), want (0, 0)", identities, aliases)
	}

	// A second commit of the same snapshot is a no-op.
	if err := reg.Commit(snap); err != nil {
		t.Fatalf("re-commit failed: %v", err)
	}
}

func TestUncommittedStagingIsInvisible(t *testing.T) {
	reg := testRegistry(t)

	snap := NewSnapshot("case-1", fixedNow)
	id := snap.StageIdentity("john", "email", "john")
	snap.StageAlias("email", "john", id.IdentityID, 1.0)
	// No commit: an aborted run leaves the store untouched.

	reloaded, err := reg.Load("case-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(reloaded.Aliases()) != 0 {
		t.Error("uncommitted staging leaked into the store")
	}
}

func TestCasesAreIsolated(t *testing.T) {
	reg := testRegistry(t)

	snapA := NewSnapshot("case-a", fixedNow)
	idA := snapA.StageIdentity("john", "email", "john")
	snapA.StageAlias("email", "john", idA.IdentityID, 1.0)
	if err := reg.Commit(snapA); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	snapB, err := reg.Load("case-b")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(snapB.Aliases()) != 0 {
		t.Error("case-b sees case-a's aliases")
	}

	// Identical aliases in different cases yield different identity IDs.
	idB := snapB.StageIdentity("john", "email", "john")
	if idA.IdentityID == idB.IdentityID {
		t.Error("identity IDs must be case-scoped")
	}
}

func TestIdentityIDForDeterministic(t *testing.T) {
	a := IdentityIDFor("case-1", "email", "john")
	b := IdentityIDFor("case-1", "email", "john")
	if a != b {
		t.Errorf("same inputs produced different IDs: %s vs %s", a, b)
	}
	if IdentityIDFor("case-1", "sms", "john") == a {
		t.Error("platform must participate in the ID derivation")
	}
}

func TestStageAliasNeverRebinds(t *testing.T) {
	snap := NewSnapshot("case-1", fixedNow)
	first := snap.StageAlias("email", "john", "identity-a", 1.0)
	second := snap.StageAlias("email", "john", "identity-b", 0.9)

	if second != first {
		t.Error("an existing binding must be returned, not replaced")
	}
	if snap.LookupAlias("email", "john").IdentityID != "identity-a" {
		t.Error("binding was rebound")
	}
}

func TestReset(t *testing.T) {
	reg := testRegistry(t)

	snap := NewSnapshot("case-1", fixedNow)
	id := snap.StageIdentity("john", "email", "john")
	snap.StageAlias("email", "john", id.IdentityID, 1.0)
	if err := reg.Commit(snap); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := reg.Reset("case-1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	reloaded, err := reg.Load("case-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(reloaded.Aliases()) != 0 {
		t.Error("reset left aliases behind")
	}
}

func TestSupersede(t *testing.T) {
	reg := testRegistry(t)

	snap := NewSnapshot("case-1", fixedNow)
	idA := snap.StageIdentity("john", "email", "john")
	snap.StageAlias("email", "john", idA.IdentityID, 1.0)
	idB := snap.StageIdentity("johnny", "sms", "johnny")
	snap.StageAlias("sms", "johnny", idB.IdentityID, 1.0)
	if err := reg.Commit(snap); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	merged, err := reg.Supersede("case-1", []string{idA.IdentityID, idB.IdentityID}, "John Smith")
	if err != nil {
		t.Fatalf("Supersede failed: %v", err)
	}
	if merged.CanonicalLabel != "John Smith" {
		t.Errorf("merged label = %q", merged.CanonicalLabel)
	}

	// Old identities remain, marked superseded; their aliases still exist.
	reloaded, err := reg.Load("case-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	oldA := reloaded.Identity(idA.IdentityID)
	if oldA == nil || !oldA.Superseded() {
		t.Fatalf("old identity not marked superseded: %+v", oldA)
	}
	if len(reloaded.Aliases()) != 2 {
		t.Errorf("aliases dropped during consolidation: %d", len(reloaded.Aliases()))
	}

	// Resolution through the link lands on the merged identity.
	if got := reloaded.Canonical(idA.IdentityID); got != merged.IdentityID {
		t.Errorf("Canonical(%s) = %s, want %s", idA.IdentityID, got, merged.IdentityID)
	}

	resolved, err := reg.ResolveCanonical("case-1", idB.IdentityID)
	if err != nil {
		t.Fatalf("ResolveCanonical failed: %v", err)
	}
	if resolved.IdentityID != merged.IdentityID {
		t.Errorf("ResolveCanonical = %s, want %s", resolved.IdentityID, merged.IdentityID)
	}
}

func TestEarliestAliasSeq(t *testing.T) {
	snap := NewSnapshot("case-1", fixedNow)
	idA := snap.StageIdentity("a", "email", "a")
	snap.StageAlias("email", "a", idA.IdentityID, 1.0)
	idB := snap.StageIdentity("b", "email", "b")
	snap.StageAlias("email", "b", idB.IdentityID, 1.0)

	if snap.EarliestAliasSeq(idA.IdentityID) >= snap.EarliestAliasSeq(idB.IdentityID) {
		t.Error("earlier identity must have the smaller alias sequence")
	}
}
