package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	rememberSource string
	rememberTags   []string
)

var rememberCmd = &cobra.Command{
	Use:   "remember <content>",
	Short: "Store a new memory",
	Long: `Store a new memory in the knowledge base. The content is scored,
embedded, and automatically linked to its nearest neighbors.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemember,
}

func init() {
	rememberCmd.Flags().StringVar(&rememberSource, "source", "cli", "origin of the memory")
	rememberCmd.Flags().StringSliceVar(&rememberTags, "tag", nil, "tag to attach (repeatable)")
	rootCmd.AddCommand(rememberCmd)
}

func runRemember(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, cleanup, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	content := strings.Join(args, " ")

	result, err := eng.Remember(context.Background(), content, rememberSource, rememberTags)
	if err != nil {
		return err
	}

	fmt.Printf("Stored memory %d (quality %.2f, %d links)\n",
		result.MemoryID, result.QualityScore, result.LinksCreated)
	if result.Redacted {
		fmt.Println("Sensitive content was redacted before storing")
	}

	return nil
}
