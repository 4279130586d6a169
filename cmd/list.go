package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/flowmail/flowmail/internal/core"
	"github.com/flowmail/flowmail/internal/fixtures"
	"github.com/flowmail/flowmail/internal/logging"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List the definitions a fixture directory would register",
	Long: `Load a fixture directory into a throwaway dependency core and print
the resulting definition catalog. Useful for checking fixture naming
before pointing the front end at the serve command.`,
	RunE: runList,
}

var listFixturesDir string

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFixturesDir, "fixtures-dir", "d", "./fixtures", "fixture directory to load")
}

func runList(cmd *cobra.Command, args []string) error {
	logger := logging.NewNopLogger()
	c := core.New(logger)

	provider, err := fixtures.NewProvider(c, logger, listFixturesDir, 0)
	if err != nil {
		return err
	}
	defer provider.Close()

	if err := provider.Scan(cmd.Context()); err != nil {
		return fmt.Errorf("failed to load fixtures from %s: %w", listFixturesDir, err)
	}

	defs := c.Registry.Definitions()
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].ComponentID != defs[j].ComponentID {
			return defs[i].ComponentID < defs[j].ComponentID
		}
		return defs[i].DataType < defs[j].DataType
	})

	if len(defs) == 0 {
		fmt.Printf("No fixtures found in %s\n", listFixturesDir)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Component", "Data Type", "Role", "Registered"})
	for _, def := range defs {
		t.AppendRow(table.Row{
			def.ComponentID,
			def.DataType,
			string(def.Role),
			def.CreatedAt.Format(time.RFC3339),
		})
	}
	t.Render()

	return nil
}
