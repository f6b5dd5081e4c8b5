package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolidateCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"consolidate", "--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "near-duplicates")
		assert.Contains(t, helpText, "dry-run")
		assert.Contains(t, helpText, "no-llm")
		assert.Contains(t, helpText, "threshold")
	})

	t.Run("flag defaults", func(t *testing.T) {
		dryRun := consolidateCmd.Flags().Lookup("dry-run")
		require.NotNil(t, dryRun)
		assert.Equal(t, "false", dryRun.DefValue)

		threshold := consolidateCmd.Flags().Lookup("threshold")
		require.NotNil(t, threshold)
		assert.Equal(t, "0", threshold.DefValue)
	})
}

func TestMaintainCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"maintain", "--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "prune")
		assert.Contains(t, helpText, "orphan")
		assert.Contains(t, helpText, "skip-communities")
	})
}

func TestUndoCommand(t *testing.T) {
	t.Run("requires memory id", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"undo"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)
		cmd.SetErr(output)

		err := cmd.Execute()
		assert.Error(t, err)
	})

	t.Run("rejects non-numeric id", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"undo", "abc"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)
		cmd.SetErr(output)

		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid memory ID")
	})
}

func TestGraphCommand(t *testing.T) {
	t.Run("subcommands exist", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range graphCmd.Commands() {
			names[c.Name()] = true
		}

		assert.True(t, names["communities"])
		assert.True(t, names["centrality"])
		assert.True(t, names["enrich"])
	})
}
