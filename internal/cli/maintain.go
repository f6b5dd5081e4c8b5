package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/mnemo/internal/maintenance"
)

var (
	maintainDryRun          bool
	maintainSkipPrune       bool
	maintainSkipEnrich      bool
	maintainSkipOrphans     bool
	maintainSkipContext     bool
	maintainSkipCommunities bool
	maintainSkipCentrality  bool
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run graph maintenance",
	Long: `Run one graph maintenance pass: prune weak unenriched links,
classify link relations through the configured LLM, reconnect orphaned
memories, and refresh community and centrality analytics.`,
	RunE: runMaintain,
}

func init() {
	maintainCmd.Flags().BoolVar(&maintainDryRun, "dry-run", false, "report what would happen without changing anything")
	maintainCmd.Flags().BoolVar(&maintainSkipPrune, "skip-prune", false, "skip link pruning")
	maintainCmd.Flags().BoolVar(&maintainSkipEnrich, "skip-enrich", false, "skip LLM enrichment")
	maintainCmd.Flags().BoolVar(&maintainSkipOrphans, "skip-orphans", false, "skip orphan reconnection")
	maintainCmd.Flags().BoolVar(&maintainSkipContext, "skip-context", false, "skip shared-tag contextual linking")
	maintainCmd.Flags().BoolVar(&maintainSkipCommunities, "skip-communities", false, "skip community detection")
	maintainCmd.Flags().BoolVar(&maintainSkipCentrality, "skip-centrality", false, "skip centrality refresh")
	rootCmd.AddCommand(maintainCmd)
}

func runMaintain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, cleanup, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	progress := func(step maintenance.Step, detail string) {
		fmt.Printf("  %-12s %s\n", step, detail)
	}

	result, err := eng.GraphCleanup(context.Background(), maintenance.Options{
		DryRun:          maintainDryRun,
		PruneThreshold:  cfg.Maintenance.PruneThreshold,
		EnrichLimit:     cfg.Maintenance.EnrichLimit,
		OrphanThreshold: cfg.Maintenance.OrphanThreshold,
		OrphanMaxLinks:  cfg.Maintenance.OrphanMaxLinks,
		ContextMinTags:  cfg.Maintenance.ContextMinTags,
		SkipPrune:       maintainSkipPrune,
		SkipEnrich:      maintainSkipEnrich,
		SkipOrphans:     maintainSkipOrphans,
		SkipContext:     maintainSkipContext,
		SkipCommunities: maintainSkipCommunities,
		SkipCentrality:  maintainSkipCentrality,
	}, progress)
	if err != nil {
		return fmt.Errorf("maintenance failed: %w", err)
	}

	prefix := ""
	if result.DryRun {
		prefix = "[dry-run] "
	}
	fmt.Printf("\n%sMaintenance finished in %s\n", prefix, result.Duration)
	fmt.Printf("  Links loaded: %d\n", result.LinksLoaded)
	fmt.Printf("  Pruned: %d\n", result.Pruned)
	fmt.Printf("  Enriched: %d\n", result.Enriched)
	fmt.Printf("  Orphans connected: %d\n", result.OrphansConnected)
	fmt.Printf("  Context links: %d\n", result.ContextLinks)
	if result.Communities >= 0 {
		fmt.Printf("  Communities: %d (%d isolated)\n", result.Communities, result.Isolated)
	}
	if result.CentralityScores >= 0 {
		fmt.Printf("  Centrality scores: %d\n", result.CentralityScores)
	}
	for _, e := range result.Errors {
		fmt.Printf("Warning: %s\n", e)
	}

	return nil
}
