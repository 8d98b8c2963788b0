package registry

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"commsight/internal/logging"
	"commsight/internal/storage"
)

// Registry provides durable, case-scoped access to identity and alias rows.
// All mutation goes through Commit, which writes a run's staged additions in
// a single transaction (buffer-then-commit: an aborted run never leaves a
// partial registry behind).
type Registry struct {
	db     *storage.DB
	logger *logging.Logger
}

// NewRegistry creates a registry over an open database.
func NewRegistry(db *storage.DB, logger *logging.Logger) *Registry {
	return &Registry{
		db:     db,
		logger: logger,
	}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Load reads the full registry state for a case into a Snapshot.
func (r *Registry) Load(caseID string) (*Snapshot, error) {
	identities, err := r.ListIdentities(caseID)
	if err != nil {
		return nil, err
	}
	aliases, err := r.ListAliases(caseID)
	if err != nil {
		return nil, err
	}

	snap := NewSnapshot(caseID, nowRFC3339)
	snap.addLoaded(identities, aliases)
	return snap, nil
}

// Commit durably appends the snapshot's staged identities and aliases in
// one transaction and clears the staged lists.
func (r *Registry) Commit(snap *Snapshot) error {
	if len(snap.stagedIdentities) == 0 && len(snap.stagedAliases) == 0 {
		return nil
	}

	err := r.db.WithTx(func(tx *sql.Tx) error {
		for _, id := range snap.stagedIdentities {
			_, err := tx.Exec(`
				INSERT INTO identities (identity_id, case_id, canonical_label, created_seq, superseded_by, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, id.IdentityID, id.CaseID, id.CanonicalLabel, id.CreatedSeq, nullString(id.SupersededBy), id.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert identity %s: %w", id.IdentityID, err)
			}
		}
		for _, a := range snap.stagedAliases {
			_, err := tx.Exec(`
				INSERT INTO aliases (case_id, platform, alias, identity_id, confidence, created_seq, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, a.CaseID, a.Platform, a.Alias, a.IdentityID, a.Confidence, a.CreatedSeq, a.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert alias %s/%s: %w", a.Platform, a.Alias, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("registry committed", map[string]interface{}{
		"case":       snap.CaseID,
		"identities": len(snap.stagedIdentities),
		"aliases":    len(snap.stagedAliases),
	})

	snap.stagedIdentities = nil
	snap.stagedAliases = nil
	return nil
}

// Reset removes all registry rows for a case. Only an explicit operator
// reset may do this; the pipeline itself never deletes.
func (r *Registry) Reset(caseID string) error {
	return r.db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM aliases WHERE case_id = ?`, caseID); err != nil {
			return fmt.Errorf("failed to reset aliases: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM identities WHERE case_id = ?`, caseID); err != nil {
			return fmt.Errorf("failed to reset identities: %w", err)
		}
		r.logger.Info("registry reset", map[string]interface{}{
			"case": caseID,
		})
		return nil
	})
}

// ListIdentities returns all identities for a case in creation order.
func (r *Registry) ListIdentities(caseID string) ([]*Identity, error) {
	rows, err := r.db.Query(`
		SELECT identity_id, case_id, canonical_label, created_seq, superseded_by, created_at
		FROM identities
		WHERE case_id = ?
		ORDER BY created_seq ASC
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []*Identity
	for rows.Next() {
		var id Identity
		var supersededBy sql.NullString
		if err := rows.Scan(&id.IdentityID, &id.CaseID, &id.CanonicalLabel, &id.CreatedSeq, &supersededBy, &id.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		if supersededBy.Valid {
			id.SupersededBy = supersededBy.String
		}
		identities = append(identities, &id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identities: %w", err)
	}

	return identities, nil
}

// ListAliases returns all alias bindings for a case in creation order.
func (r *Registry) ListAliases(caseID string) ([]*Alias, error) {
	rows, err := r.db.Query(`
		SELECT case_id, platform, alias, identity_id, confidence, created_seq, created_at
		FROM aliases
		WHERE case_id = ?
		ORDER BY created_seq ASC
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	defer rows.Close()

	var aliases []*Alias
	for rows.Next() {
		var a Alias
		if err := rows.Scan(&a.CaseID, &a.Platform, &a.Alias, &a.IdentityID, &a.Confidence, &a.CreatedSeq, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		aliases = append(aliases, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aliases: %w", err)
	}

	return aliases, nil
}

// Supersede consolidates the given identities into a new identity with the
// given label. The old identities are marked superseded, never deleted, so
// the merge history stays auditable. Alias rows keep pointing at the old
// identities; resolution through superseded identities follows SupersededBy.
func (r *Registry) Supersede(caseID string, oldIDs []string, label string) (*Identity, error) {
	if len(oldIDs) < 2 {
		return nil, fmt.Errorf("consolidation requires at least two identities")
	}

	var maxSeq int64
	err := r.db.QueryRow(`
		SELECT COALESCE(MAX(created_seq), -1) FROM identities WHERE case_id = ?
	`, caseID).Scan(&maxSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity sequence: %w", err)
	}

	merged := &Identity{
		IdentityID:     uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("commsight:merge:%s:%v", caseID, oldIDs))).String(),
		CaseID:         caseID,
		CanonicalLabel: label,
		CreatedSeq:     maxSeq + 1,
		CreatedAt:      nowRFC3339(),
	}

	err = r.db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO identities (identity_id, case_id, canonical_label, created_seq, superseded_by, created_at)
			VALUES (?, ?, ?, ?, NULL, ?)
		`, merged.IdentityID, merged.CaseID, merged.CanonicalLabel, merged.CreatedSeq, merged.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert consolidated identity: %w", err)
		}

		for _, oldID := range oldIDs {
			result, err := tx.Exec(`
				UPDATE identities SET superseded_by = ?
				WHERE case_id = ? AND identity_id = ? AND superseded_by IS NULL
			`, merged.IdentityID, caseID, oldID)
			if err != nil {
				return fmt.Errorf("failed to supersede identity %s: %w", oldID, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("identity not found or already superseded: %s", oldID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("identities consolidated", map[string]interface{}{
		"case":   caseID,
		"merged": merged.IdentityID,
		"old":    len(oldIDs),
	})

	return merged, nil
}

// ResolveCanonical follows SupersededBy links from an identity to the
// current consolidated identity.
func (r *Registry) ResolveCanonical(caseID, identityID string) (*Identity, error) {
	seen := make(map[string]bool)
	current := identityID

	for {
		if seen[current] {
			return nil, fmt.Errorf("supersede cycle detected at %s", current)
		}
		seen[current] = true

		var id Identity
		var supersededBy sql.NullString
		err := r.db.QueryRow(`
			SELECT identity_id, case_id, canonical_label, created_seq, superseded_by, created_at
			FROM identities
			WHERE case_id = ? AND identity_id = ?
		`, caseID, current).Scan(&id.IdentityID, &id.CaseID, &id.CanonicalLabel, &id.CreatedSeq, &supersededBy, &id.CreatedAt)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve identity: %w", err)
		}

		if !supersededBy.Valid {
			return &id, nil
		}
		id.SupersededBy = supersededBy.String
		current = id.SupersededBy
	}
}

// nullString converts a string to sql.NullString
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
