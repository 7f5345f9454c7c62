package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bher20/tarifmanager/internal/config"
	"github.com/bher20/tarifmanager/internal/logging"
)

var (
	logger zerolog.Logger
	cfg    config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tarifmanager",
	Short: "Tarifmanager - HP/HC/HSC tariff schedules",
	Long: "Tarifmanager keeps heures pleines / heures creuses schedules, evaluates the current tariff " +
		"and publishes it over HTTP, MQTT and notifications.",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and sets up logging for commands that need
// it.
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = logging.Setup(cfg.Environment)
	return nil
}
