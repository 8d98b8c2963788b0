// Package analysiscache stores finished analyses keyed by the exact inputs
// that produced them, so re-running an unchanged case returns the stored
// bytes instead of recomputing the pipeline.
package analysiscache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"commsight/internal/logging"
	"commsight/internal/storage"
	"commsight/internal/version"
)

// Cache persists compressed analysis payloads in the analysis_cache table.
// Every failure on the cache path is logged and swallowed: a broken cache
// degrades to a recompute, never to a failed run.
type Cache struct {
	db      *storage.DB
	logger  *logging.Logger
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// New creates a cache over the given database.
func New(db *storage.DB, logger *logging.Logger) (*Cache, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Cache{db: db, logger: logger, encoder: encoder, decoder: decoder}, nil
}

// Close releases the compression state.
func (c *Cache) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

// Key derives the cache key for one run. It hashes the case, the content of
// every source batch, and the effective configuration, so any change to the
// inputs produces a different key. Source order does not matter.
func Key(caseID string, batches map[string][]byte, configFingerprint string) string {
	platforms := make([]string, 0, len(batches))
	for platform := range batches {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)

	h := sha256.New()
	fmt.Fprintf(h, "case=%s\n", caseID)
	fmt.Fprintf(h, "config=%s\n", configFingerprint)
	fmt.Fprintf(h, "version=%s\n", version.Version)
	for _, platform := range platforms {
		content := sha256.Sum256(batches[platform])
		fmt.Fprintf(h, "source=%s:%s\n", platform, hex.EncodeToString(content[:]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the stored analysis bytes for a key, or (nil, false) on any
// miss. Entries written by a different version never hit.
func (c *Cache) Get(key string) ([]byte, bool) {
	var (
		storedVersion string
		payload       []byte
	)
	row := c.db.QueryRow(`
		SELECT version, payload FROM analysis_cache WHERE cache_key = ?
	`, key)
	if err := row.Scan(&storedVersion, &payload); err != nil {
		if err != sql.ErrNoRows {
			c.logger.Warn("cache read failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return nil, false
	}
	if storedVersion != version.Version {
		return nil, false
	}

	decoded, err := c.decoder.DecodeAll(payload, nil)
	if err != nil {
		c.logger.Warn("cache entry corrupt, ignoring", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false
	}
	return decoded, true
}

// Put stores analysis bytes under a key, replacing any previous entry.
func (c *Cache) Put(key, caseID string, analysis []byte) {
	compressed := c.encoder.EncodeAll(analysis, nil)
	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO analysis_cache (cache_key, case_id, version, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, key, caseID, version.Version, compressed, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// Clear removes every cached analysis for a case. An empty caseID clears all.
func (c *Cache) Clear(caseID string) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if caseID == "" {
		result, err = c.db.Exec(`DELETE FROM analysis_cache`)
	} else {
		result, err = c.db.Exec(`DELETE FROM analysis_cache WHERE case_id = ?`, caseID)
	}
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
