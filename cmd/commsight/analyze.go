package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"commsight/internal/analysis"
	"commsight/internal/analysiscache"
	"commsight/internal/config"
	"commsight/internal/correlate"
	"commsight/internal/message"
	"commsight/internal/orchestrator"
	"commsight/internal/scoring"
)

var (
	analyzeAliasMap      string
	analyzeOutput        string
	analyzeNoCache       bool
	analyzeResetRegistry bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [batch files...]",
	Short: "Run the full analysis pipeline over platform message batches",
	Long: `Run the analysis pipeline for a case over one or more normalized message
batch files, one JSON file per platform:

  {"platform": "email", "messages": [{"rawSender": "...", "content": "...", ...}]}

An unreadable batch is recorded as a failed source; the remaining platforms
still analyze. The analysis artifact is written to stdout (or --output) as
deterministic JSON: re-running on unchanged inputs reproduces it byte for
byte.

Examples:
  commsight analyze --case=c-101 email.json sms.json
  commsight analyze --case=c-101 --alias-map=aliases.yaml exports/*.json
  commsight analyze --case=c-101 --reset-registry --no-cache email.json`,
	Args: cobra.MinimumNArgs(1),
	Run:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeAliasMap, "alias-map", "", "Path to a curated alias map YAML file")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Write the analysis to a file instead of stdout")
	analyzeCmd.Flags().BoolVar(&analyzeNoCache, "no-cache", false, "Bypass the analysis cache for this run")
	analyzeCmd.Flags().BoolVar(&analyzeResetRegistry, "reset-registry", false, "Clear the case's identity registry before analyzing")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	start := time.Now()
	logger := newLogger()
	caseID := mustCase()
	cfg := mustConfig()

	var aliasMap []correlate.AliasMapping
	if analyzeAliasMap != "" {
		mappings, err := correlate.LoadAliasMap(analyzeAliasMap)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading alias map: %v\n", err)
			os.Exit(1)
		}
		aliasMap = mappings
	}

	db, reg := mustOpenRegistry(logger)
	defer db.Close()

	if analyzeResetRegistry {
		if err := reg.Reset(caseID); err != nil {
			fmt.Fprintf(os.Stderr, "Error resetting registry: %v\n", err)
			os.Exit(1)
		}
		logger.Info("registry reset", map[string]interface{}{"case": caseID})
	}

	sources, raw := readSources(args)

	// The cache only answers when every source was readable: a failed
	// source has no content hash to key on.
	useCache := cfg.Cache.Enabled && !analyzeNoCache && len(raw) == len(sources)
	var (
		cache    *analysiscache.Cache
		cacheKey string
	)
	if useCache {
		c, err := analysiscache.New(db, logger)
		if err != nil {
			logger.Warn("cache unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			cache = c
			defer cache.Close()
			cacheKey = analysiscache.Key(caseID, raw, configFingerprint(cfg))
			if stored, ok := cache.Get(cacheKey); ok {
				logger.Info("analysis served from cache", map[string]interface{}{
					"case": caseID,
					"key":  cacheKey,
				})
				writeAnalysis(stored)
				return
			}
		}
	}

	orch := orchestrator.New(reg, cfg, logger)
	if cfg.Classifier.Enabled && cfg.Classifier.Endpoint != "" {
		orch = orch.WithClassifier(scoring.NewHTTPClassifier(cfg.Classifier.Endpoint))
	}

	result, err := orch.Run(context.Background(), caseID, sources, aliasMap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running analysis: %v\n", err)
		os.Exit(1)
	}

	encoded, err := analysis.EncodeDeterministic(result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding analysis: %v\n", err)
		os.Exit(1)
	}

	if cache != nil {
		cache.Put(cacheKey, caseID, encoded)
	}

	writeAnalysis(encoded)

	logger.Debug("analyze completed", map[string]interface{}{
		"case":     caseID,
		"duration": time.Since(start).Milliseconds(),
	})
}

// readSources reads each batch file into an orchestrator source. Unreadable
// or malformed files become failed sources named after the file; the raw map
// holds the bytes of each successfully read batch, keyed by platform.
func readSources(paths []string) ([]orchestrator.Source, map[string][]byte) {
	sources := make([]orchestrator.Source, 0, len(paths))
	raw := make(map[string][]byte, len(paths))

	for _, path := range paths {
		fallback := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		data, err := os.ReadFile(path)
		if err != nil {
			sources = append(sources, orchestrator.Source{Platform: fallback, Err: err})
			continue
		}

		var batch message.Batch
		if err := json.Unmarshal(data, &batch); err != nil {
			sources = append(sources, orchestrator.Source{
				Platform: fallback,
				Err:      fmt.Errorf("invalid batch file %s: %w", path, err),
			})
			continue
		}
		if batch.Platform == "" {
			batch.Platform = fallback
		}
		for i := range batch.Messages {
			batch.Messages[i].Platform = batch.Platform
		}

		sources = append(sources, orchestrator.Source{
			Platform: batch.Platform,
			Messages: batch.Messages,
		})
		raw[batch.Platform] = data
	}

	return sources, raw
}

// writeAnalysis writes the encoded artifact to --output or stdout.
func writeAnalysis(encoded []byte) {
	out := append(encoded, '\n')
	if analyzeOutput != "" {
		if err := os.WriteFile(analyzeOutput, out, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			os.Exit(1)
		}
		return
	}
	os.Stdout.Write(out)
}

// configFingerprint renders the analysis-relevant configuration as a stable
// string for the cache key.
func configFingerprint(cfg *config.Config) string {
	encoded, err := analysis.EncodeDeterministic(cfg.Fingerprint())
	if err != nil {
		return fmt.Sprintf("%v", cfg.Fingerprint())
	}
	return string(encoded)
}
