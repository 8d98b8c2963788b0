// Package config defines the analysis configuration surface consumed by the
// orchestrator. There are no hidden process-wide defaults: lexicon,
// thresholds, window lengths, and platform priorities are all explicit
// values threaded through the call chain.
package config

import (
	"path/filepath"

	"github.com/spf13/viper"

	"commsight/internal/errors"
)

// Config is the complete analysis configuration for a run.
type Config struct {
	Correlation CorrelationConfig `json:"correlation" mapstructure:"correlation"`
	Scoring     ScoringConfig     `json:"scoring" mapstructure:"scoring"`
	Incidents   IncidentConfig    `json:"incidents" mapstructure:"incidents"`
	Aggregation AggregationConfig `json:"aggregation" mapstructure:"aggregation"`
	Classifier  ClassifierConfig  `json:"classifier" mapstructure:"classifier"`
	Cache       CacheConfig       `json:"cache" mapstructure:"cache"`

	// PlatformPriority orders platforms for timestamp tie-breaks.
	// Platforms not listed sort after listed ones, by name.
	PlatformPriority []string `json:"platformPriority" mapstructure:"platformPriority"`
}

// CorrelationConfig tunes the identity similarity heuristic.
type CorrelationConfig struct {
	// ConfidenceThreshold is the minimum normalized similarity at which an
	// alias attaches to an existing identity.
	ConfidenceThreshold float64 `json:"confidenceThreshold" mapstructure:"confidenceThreshold"`
	// PossibleThreshold is the secondary threshold below confidence; matches
	// in between attach as low-confidence bindings for manual review.
	PossibleThreshold float64 `json:"possibleThreshold" mapstructure:"possibleThreshold"`
}

// ScoringConfig carries the lexicon driving per-message scoring.
type ScoringConfig struct {
	// LexiconPath optionally points at a standalone lexicon YAML file.
	// When set it replaces the inline Lexicon.
	LexiconPath string     `json:"lexiconPath,omitempty" mapstructure:"lexiconPath"`
	Lexicon     []Category `json:"lexicon" mapstructure:"lexicon"`
}

// IncidentPolicy selects how the flagger's threshold is applied.
type IncidentPolicy string

const (
	// PolicyPeak triggers on a single message score crossing the threshold.
	PolicyPeak IncidentPolicy = "peak"
	// PolicyCumulative triggers on the running window's combined score.
	PolicyCumulative IncidentPolicy = "cumulative"
)

// IncidentConfig tunes incident flagging.
type IncidentConfig struct {
	ScoreThreshold int            `json:"scoreThreshold" mapstructure:"scoreThreshold"`
	WindowMinutes  int            `json:"windowMinutes" mapstructure:"windowMinutes"`
	Policy         IncidentPolicy `json:"policy" mapstructure:"policy"`
}

// AggregationConfig tunes the pattern summary.
type AggregationConfig struct {
	// BucketHours is the width of the temporal frequency histogram buckets.
	BucketHours int `json:"bucketHours" mapstructure:"bucketHours"`
	// TopN caps the ranked category and identity lists (0 = unlimited).
	TopN int `json:"topN" mapstructure:"topN"`
}

// ClassifierConfig configures the optional external semantic classifier.
type ClassifierConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Endpoint  string `json:"endpoint,omitempty" mapstructure:"endpoint"`
	TimeoutMs int    `json:"timeoutMs" mapstructure:"timeoutMs"`
}

// CacheConfig configures analysis result caching.
type CacheConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// DefaultConfig returns the default configuration. Similarity thresholds,
// incident window, and policy are deliberate tunables, not guessed
// constants; the defaults here are starting points for operator adjustment.
func DefaultConfig() *Config {
	return &Config{
		Correlation: CorrelationConfig{
			ConfidenceThreshold: 0.85,
			PossibleThreshold:   0.70,
		},
		Scoring: ScoringConfig{
			Lexicon: DefaultLexicon(),
		},
		Incidents: IncidentConfig{
			ScoreThreshold: 60,
			WindowMinutes:  10,
			Policy:         PolicyPeak,
		},
		Aggregation: AggregationConfig{
			BucketHours: 168, // weekly
			TopN:        10,
		},
		Classifier: ClassifierConfig{
			Enabled:   false,
			TimeoutMs: 2000,
		},
		Cache: CacheConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration from <dataDir>/config.yaml (or an explicit file
// path). A missing config file yields the defaults.
func Load(dataDir, explicitPath string) (*Config, error) {
	v := viper.New()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dataDir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && explicitPath == "" {
			return DefaultConfig(), nil
		}
		return nil, errors.New(errors.InvalidConfiguration, "failed to read config file", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.New(errors.InvalidConfiguration, "failed to parse config file", err)
	}

	if cfg.Scoring.LexiconPath != "" {
		path := cfg.Scoring.LexiconPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(dataDir, path)
		}
		lexicon, err := LoadLexicon(path)
		if err != nil {
			return nil, err
		}
		cfg.Scoring.Lexicon = lexicon
	}

	return cfg, nil
}

// Validate checks the configuration eagerly at orchestration start.
// Any error here is fatal for the whole run: no partial Analysis would be
// meaningful against a broken lexicon or non-positive threshold.
func (c *Config) Validate() error {
	if err := ValidateLexicon(c.Scoring.Lexicon); err != nil {
		return err
	}

	if c.Correlation.ConfidenceThreshold <= 0 || c.Correlation.ConfidenceThreshold > 1 {
		return errors.Newf(errors.InvalidConfiguration,
			"correlation confidence threshold must be in (0,1], got %v", c.Correlation.ConfidenceThreshold)
	}
	if c.Correlation.PossibleThreshold <= 0 || c.Correlation.PossibleThreshold > 1 {
		return errors.Newf(errors.InvalidConfiguration,
			"correlation possible threshold must be in (0,1], got %v", c.Correlation.PossibleThreshold)
	}
	if c.Correlation.PossibleThreshold > c.Correlation.ConfidenceThreshold {
		return errors.Newf(errors.InvalidConfiguration,
			"possible threshold %v must not exceed confidence threshold %v",
			c.Correlation.PossibleThreshold, c.Correlation.ConfidenceThreshold)
	}

	if c.Incidents.ScoreThreshold <= 0 {
		return errors.Newf(errors.InvalidConfiguration,
			"incident score threshold must be positive, got %d", c.Incidents.ScoreThreshold)
	}
	if c.Incidents.WindowMinutes <= 0 {
		return errors.Newf(errors.InvalidConfiguration,
			"incident window must be positive, got %d minutes", c.Incidents.WindowMinutes)
	}
	switch c.Incidents.Policy {
	case PolicyPeak, PolicyCumulative:
	default:
		return errors.Newf(errors.InvalidConfiguration,
			"incident policy must be %q or %q, got %q", PolicyPeak, PolicyCumulative, c.Incidents.Policy)
	}

	if c.Aggregation.BucketHours <= 0 {
		return errors.Newf(errors.InvalidConfiguration,
			"aggregation bucket width must be positive, got %d hours", c.Aggregation.BucketHours)
	}

	if c.Classifier.Enabled {
		if c.Classifier.TimeoutMs <= 0 {
			return errors.Newf(errors.InvalidConfiguration,
				"classifier timeout must be positive, got %d ms", c.Classifier.TimeoutMs)
		}
	}

	seen := make(map[string]bool, len(c.PlatformPriority))
	for _, p := range c.PlatformPriority {
		if seen[p] {
			return errors.Newf(errors.InvalidConfiguration, "duplicate platform in priority list: %q", p)
		}
		seen[p] = true
	}

	return nil
}

// Fingerprint returns a short stable description of the tunables that affect
// analysis output, used in cache keys.
func (c *Config) Fingerprint() map[string]interface{} {
	return map[string]interface{}{
		"correlation": c.Correlation,
		"lexicon":     c.Scoring.Lexicon,
		"incidents":   c.Incidents,
		"aggregation": c.Aggregation,
		"platforms":   c.PlatformPriority,
	}
}
