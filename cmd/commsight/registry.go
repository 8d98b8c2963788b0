package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect and maintain the case identity registry",
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the canonical identities known for a case",
	Run:   runRegistryList,
}

var registryAliasesCmd = &cobra.Command{
	Use:   "aliases",
	Short: "List the alias bindings for a case",
	Run:   runRegistryAliases,
}

var registryMergeLabel string

var registryMergeCmd = &cobra.Command{
	Use:   "merge [identity IDs...]",
	Short: "Consolidate two or more identities into one",
	Long: `Consolidate identities that turned out to be the same person. The old
identities are superseded, not deleted: their alias bindings stay in place
and resolve to the merged identity on the next analysis run.`,
	Args: cobra.MinimumNArgs(2),
	Run:  runRegistryMerge,
}

func init() {
	registryMergeCmd.Flags().StringVar(&registryMergeLabel, "label", "", "Canonical label for the merged identity (required)")
	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryAliasesCmd)
	registryCmd.AddCommand(registryMergeCmd)
	rootCmd.AddCommand(registryCmd)
}

func runRegistryList(cmd *cobra.Command, args []string) {
	logger := newLogger()
	caseID := mustCase()

	db, reg := mustOpenRegistry(logger)
	defer db.Close()

	identities, err := reg.ListIdentities(caseID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing identities: %v\n", err)
		os.Exit(1)
	}

	printJSON(identities)
}

func runRegistryAliases(cmd *cobra.Command, args []string) {
	logger := newLogger()
	caseID := mustCase()

	db, reg := mustOpenRegistry(logger)
	defer db.Close()

	aliases, err := reg.ListAliases(caseID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing aliases: %v\n", err)
		os.Exit(1)
	}

	printJSON(aliases)
}

func runRegistryMerge(cmd *cobra.Command, args []string) {
	logger := newLogger()
	caseID := mustCase()

	if registryMergeLabel == "" {
		fmt.Fprintln(os.Stderr, "Error: --label is required")
		os.Exit(1)
	}

	db, reg := mustOpenRegistry(logger)
	defer db.Close()

	merged, err := reg.Supersede(caseID, args, registryMergeLabel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error merging identities: %v\n", err)
		os.Exit(1)
	}

	logger.Info("identities merged", map[string]interface{}{
		"case":     caseID,
		"merged":   len(args),
		"identity": merged.IdentityID,
	})
	printJSON(merged)
}

func printJSON(v interface{}) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(encoded))
}
