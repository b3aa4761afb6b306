// Package main is the tenders CLI: scrape procurement sources, list the
// registry and inspect ingest runs.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/david/tender-finder/internal/config"
	"github.com/david/tender-finder/internal/logging"
)

var (
	configFile   string
	registryFile string
	logLevel     string

	appConfig config.Config
	logger    zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "tenders",
	Short:         "Municipal procurement tender extraction",
	Long:          "tenders scrapes South African municipal procurement pages and their tender documents into normalized 23-column records.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if registryFile != "" {
			cfg.RegistryPath = registryFile
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		appConfig = cfg
		logger = logging.New(cfg.LogLevel, cfg.LogPretty, os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./tenders.yml or ~/tenders.yml)")
	rootCmd.PersistentFlags().StringVar(&registryFile, "registry", "", "Source registry YAML (default embedded)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
