package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/mnemo/internal/consolidate"
	"github.com/harun/mnemo/internal/engine"
)

var (
	consolidateDryRun         bool
	consolidateNoLLM          bool
	consolidateThreshold      float64
	consolidateMaxCandidates  int
	consolidateOverrideGuards bool
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Find and consolidate near-duplicate memories",
	Long: `Scan live memories for near-duplicates and consolidate them.
Exact duplicates are removed with their links transferred to the
survivor; similar pairs are merged through the configured LLM or linked
when no merge is possible.`,
	RunE: runConsolidate,
}

func init() {
	consolidateCmd.Flags().BoolVar(&consolidateDryRun, "dry-run", false, "report what would happen without changing anything")
	consolidateCmd.Flags().BoolVar(&consolidateNoLLM, "no-llm", false, "disable LLM merging, fall back to links")
	consolidateCmd.Flags().Float64Var(&consolidateThreshold, "threshold", 0, "similarity floor for candidates (default from config)")
	consolidateCmd.Flags().IntVar(&consolidateMaxCandidates, "max-candidates", 0, "cap on candidates per scan (default from config)")
	consolidateCmd.Flags().BoolVar(&consolidateOverrideGuards, "force", false, "scan even small or young corpora")
	rootCmd.AddCommand(consolidateCmd)
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, cleanup, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()

	set, err := eng.FindConsolidationCandidates(ctx, engine.FindOptions{
		Threshold:      consolidateThreshold,
		MaxCandidates:  consolidateMaxCandidates,
		OverrideGuards: consolidateOverrideGuards,
	})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(set.Candidates) == 0 {
		fmt.Printf("Scanned %d memories, no consolidation candidates found\n", set.Scanned)
		return nil
	}

	fmt.Printf("Scanned %d memories, found %d candidates:\n\n", set.Scanned, len(set.Candidates))
	for _, c := range set.Candidates {
		fmt.Printf("  %-17s (%d, %d)  similarity %.3f  %s\n", c.Action, c.ID1, c.ID2, c.Similarity, c.Reason)
	}
	fmt.Println()

	result, err := eng.ExecuteConsolidation(ctx, set.Candidates, consolidate.Options{
		DryRun:       consolidateDryRun,
		MergeWithLLM: cfg.Consolidation.MergeWithLLM && !consolidateNoLLM,
	})
	if err != nil {
		return fmt.Errorf("consolidation failed: %w", err)
	}

	prefix := ""
	if result.DryRun {
		prefix = "[dry-run] "
	}
	fmt.Printf("%sProcessed %d pairs: %d deleted, %d merged, %d kept\n",
		prefix, result.Processed, result.Deleted, result.Merged, result.Kept)
	if len(result.MergedIDs) > 0 {
		ids := make([]string, len(result.MergedIDs))
		for i, id := range result.MergedIDs {
			ids[i] = fmt.Sprintf("%d", id)
		}
		fmt.Printf("Merged memories: %s (undo with: mnemo undo <id>)\n", strings.Join(ids, ", "))
	}
	for _, e := range result.Errors {
		fmt.Printf("Warning: %s\n", e)
	}

	return nil
}
