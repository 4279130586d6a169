// Package cmd provides the command-line interface for the FlowMail
// dependency core with configuration from multiple sources.
//
// Configuration precedence (highest to lowest):
//  1. Command-line flags (--config, --port, ...)
//  2. Individual environment variables (FLOWMAIL_SERVER_PORT, ...)
//  3. Configuration file (.flowmail.yml)
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowmail/flowmail/internal/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flowmail",
	Short: "Component dependency core for the FlowMail web front end",
	Long: `flowmail runs the component dependency core that backs the FlowMail
email-client web front end. UI components declare provider/consumer
capabilities over opaque data types; the core wires concrete pairs at
runtime and propagates payloads and connectivity status between them.

Quick Start:
  flowmail init                   Scaffold a .flowmail.yml config
  flowmail serve                  Start the bridge server
  flowmail list                   List definitions from a fixture directory
  flowmail version                Show version information`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is %s)", config.DefaultConfigFile))
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig points viper at the config file before any command runs.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		return
	}

	if envFile := os.Getenv("FLOWMAIL_CONFIG_FILE"); envFile != "" {
		viper.SetConfigFile(envFile)
		return
	}

	viper.AddConfigPath(".")
	viper.SetConfigName(".flowmail")
	viper.SetConfigType("yml")
}
