package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/modelpulse/modelpulse/internal/config"
)

var (
	flagConfig  string
	flagAPIURL  string
	flagWSURL   string
	flagVerbose bool
)

// rootCmd is the base command for the modelpulse CLI.
var rootCmd = &cobra.Command{
	Use:   "modelpulse",
	Short: "Terminal client for the MLOps dashboard backend",
	Long: `modelpulse is a terminal client for the MLOps dashboard backend. It
follows the backend's WebSocket event stream (training progress, system
metrics, health changes) and its REST API (datasets, models, pipelines,
monitoring) with reconnection, caching, and deterministic teardown.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if flagVerbose {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("modelpulse - MLOps dashboard client")
		fmt.Println("Use 'modelpulse dash' to run the live dashboard")
	},
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "override API base URL")
	rootCmd.PersistentFlags().StringVar(&flagWSURL, "ws-url", "", "override WebSocket URL")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(dashCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(healthCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration from file, defaults, and
// flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if flagConfig != "" {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if flagAPIURL != "" {
		cfg.API.BaseURL = flagAPIURL
	}
	if flagWSURL != "" {
		cfg.WebSocket.URL = flagWSURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
