package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"commsight/internal/analysiscache"
)

var cacheClearAll bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the analysis result cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached analyses for a case (or all cases with --all)",
	Run:   runCacheClear,
}

func init() {
	cacheClearCmd.Flags().BoolVar(&cacheClearAll, "all", false, "Clear the cache for every case")
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) {
	logger := newLogger()

	caseID := ""
	if !cacheClearAll {
		caseID = mustCase()
	}

	db, _ := mustOpenRegistry(logger)
	defer db.Close()

	cache, err := analysiscache.New(db, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening cache: %v\n", err)
		os.Exit(1)
	}
	defer cache.Close()

	removed, err := cache.Clear(caseID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error clearing cache: %v\n", err)
		os.Exit(1)
	}

	logger.Info("cache cleared", map[string]interface{}{
		"case":    caseID,
		"removed": removed,
	})
}
