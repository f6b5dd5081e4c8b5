package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/mnemo/internal/graph"
)

var (
	enrichLimit int
	enrichForce bool
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect and enrich the knowledge graph",
}

var graphCommunitiesCmd = &cobra.Command{
	Use:   "communities",
	Short: "Detect topic communities",
	Long:  `Group linked memories into communities by label propagation.`,
	RunE:  runGraphCommunities,
}

var graphCentralityCmd = &cobra.Command{
	Use:   "centrality",
	Short: "Refresh the centrality cache",
	Long: `Recompute degree centrality for every linked memory and persist
the normalized scores for retrieval boosting.`,
	RunE: runGraphCentrality,
}

var graphEnrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Classify link relations with the LLM",
	Long: `Send similarity-only links to the configured LLM and replace them
with typed relations where the classification is confident.`,
	RunE: runGraphEnrich,
}

func init() {
	graphEnrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "max links to classify (0 = all)")
	graphEnrichCmd.Flags().BoolVar(&enrichForce, "force", false, "reclassify links already enriched")

	graphCmd.AddCommand(graphCommunitiesCmd)
	graphCmd.AddCommand(graphCentralityCmd)
	graphCmd.AddCommand(graphEnrichCmd)
	rootCmd.AddCommand(graphCmd)
}

func runGraphCommunities(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, cleanup, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := eng.DetectCommunities(context.Background(), graph.CommunityOptions{})
	if err != nil {
		return err
	}

	if len(result.Communities) == 0 {
		fmt.Println("No communities found")
		return nil
	}

	fmt.Printf("Found %d communities (%d isolated memories, %d iterations):\n",
		len(result.Communities), result.Isolated, result.Iterations)
	for _, c := range result.Communities {
		fmt.Printf("  community %d: %d members %v\n", c.ID, c.Size, c.Members)
	}

	return nil
}

func runGraphCentrality(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, cleanup, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	count, err := eng.UpdateCentralityCache(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Cached centrality for %d memories\n", count)
	return nil
}

func runGraphEnrich(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, cleanup, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := eng.EnrichExistingLinks(context.Background(), graph.EnrichOptions{
		Limit: enrichLimit,
		Force: enrichForce,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %d links: %d enriched, %d upgraded to typed relations\n",
		result.Scanned, result.Enriched, result.Upgraded)
	for _, e := range result.Errors {
		fmt.Printf("Warning: %s\n", e)
	}

	return nil
}
