package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowmail/flowmail/internal/version"
)

var versionFormat string

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for flowmail including the semantic
version, git commit, build time, Go version, and target platform.

Examples:
  flowmail version               # Show text version info
  flowmail version --format json # Output as JSON`,
	RunE: runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := version.GetBuildInfo()

	switch versionFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case "text":
		fmt.Printf("flowmail %s\n", info.Version)
		fmt.Printf("  commit:     %s\n", info.GitCommit)
		fmt.Printf("  built:      %s\n", info.BuildTime)
		fmt.Printf("  go version: %s\n", info.GoVersion)
		fmt.Printf("  platform:   %s\n", info.Platform)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text or json)", versionFormat)
	}
}
