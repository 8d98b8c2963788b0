package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"commsight/internal/config"
	"commsight/internal/logging"
	"commsight/internal/registry"
	"commsight/internal/storage"
	"commsight/internal/version"
)

var (
	// caseFlag selects the investigation case; most commands require it.
	caseFlag string
	// dataDirFlag is the root directory for the registry database, cache,
	// and default config file.
	dataDirFlag string
	// configFlag points at an explicit config file.
	configFlag string
	// logFormatFlag selects diagnostic log formatting on stderr.
	logFormatFlag string
	// verboseFlag enables debug logging.
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "commsight",
	Short: "CommSight - communications risk analysis",
	Long: `CommSight analyzes normalized message exports from multiple communication
platforms for one investigation case: it correlates sender aliases into
canonical identities, orders messages into a unified timeline, scores each
message against a risk lexicon, flags incident windows, and aggregates
case-level patterns into a single analysis artifact.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("CommSight version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&caseFlag, "case", "", "Case identifier")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory (default: ~/.commsight)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "format", "human", "Log format (json, human)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
}

// newLogger creates the stderr diagnostic logger from the global flags.
func newLogger() *logging.Logger {
	format := logging.HumanFormat
	if logFormatFlag == "json" {
		format = logging.JSONFormat
	}
	level := logging.InfoLevel
	if verboseFlag {
		level = logging.DebugLevel
	}
	return logging.NewLogger(logging.Config{
		Format: format,
		Level:  level,
	})
}

// dataDir resolves the effective data directory.
func dataDir() string {
	if dataDirFlag != "" {
		return dataDirFlag
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".commsight"
	}
	return filepath.Join(home, ".commsight")
}

// mustCase returns the case ID, exiting when the flag is missing.
func mustCase() string {
	if caseFlag == "" {
		fmt.Fprintln(os.Stderr, "Error: --case is required")
		os.Exit(1)
	}
	return caseFlag
}

// mustConfig loads the configuration, exiting on failure.
func mustConfig() *config.Config {
	cfg, err := config.Load(dataDir(), configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// mustOpenRegistry opens the case database and wraps it in a Registry.
// The caller owns closing the returned DB.
func mustOpenRegistry(logger *logging.Logger) (*storage.DB, *registry.Registry) {
	db, err := storage.Open(dataDir(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	return db, registry.NewRegistry(db, logger)
}
