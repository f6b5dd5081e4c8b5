package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var undoCmd = &cobra.Command{
	Use:   "undo <memory-id>",
	Short: "Undo a consolidation",
	Long: `Undo a consolidation by restoring the memories it invalidated.
The memory ID is the survivor of a duplicate deletion or the synthetic
memory created by a merge; synthetic memories are removed entirely.`,
	Args: cobra.ExactArgs(1),
	RunE: runUndo,
}

func init() {
	rootCmd.AddCommand(undoCmd)
}

func runUndo(cmd *cobra.Command, args []string) error {
	memoryID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid memory ID %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, cleanup, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := eng.UndoConsolidation(context.Background(), memoryID)
	if err != nil {
		return err
	}

	fmt.Printf("Restored %d memories", len(result.Restored))
	if result.HardDeleted {
		fmt.Printf(", removed synthetic memory %d", result.MemoryID)
	}
	fmt.Println()

	return nil
}
