package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowmail/flowmail/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"i"},
	Short:   "Scaffold a default configuration file",
	Long: `Write a .flowmail.yml with the default configuration into the current
directory. Refuses to overwrite an existing file.`,
	RunE: runInit,
}

var initOutput string

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVarP(&initOutput, "output", "o", config.DefaultConfigFile, "path of the config file to write")
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := config.WriteDefault(initOutput); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", initOutput)
	return nil
}
