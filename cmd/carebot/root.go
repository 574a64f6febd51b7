package main

import (
	"fmt"
	"os"

	"github.com/aretw0/carebot/internal/cli"
	"github.com/aretw0/carebot/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "carebot",
	Short: "carebot is a conversational assistant for patient records",
	Long: `carebot turns free-text requests into create, read, update and delete
operations on a patient-records service, asking for missing details and
confirmation along the way.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.String("base-url", "", "Base URL of the patient-records service")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: text or json")
	flags.String("redis-url", "", "Redis URL for the distributed turn lock")
	flags.String("rules", "", "Pattern rules file replacing the built-in rules")
}

// loadConfig reads configuration with the command's flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path, cmd.Flags())
}

// buildRuntime loads configuration and builds the engine.
func buildRuntime(cmd *cobra.Command) (*cli.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return cli.Build(cfg, cfg.Logger())
}
