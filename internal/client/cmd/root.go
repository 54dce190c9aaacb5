package cmd

import (
	"fmt"
	"os"

	"github.com/rudransh-shrivastava/exchangelink/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
	brokerURL  string
	logLevel   string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:  `exchangelink`,
	Long: `exchangelink pairs two clients over a direct peer channel and relays currency rate updates between them`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}
		if brokerURL != "" {
			cfg.Broker.URL = brokerURL
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $EXCHANGELINK_CONFIG or ~/.config/exchangelink/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite database path")
	rootCmd.PersistentFlags().StringVar(&brokerURL, "broker", "", "broker websocket url")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(idCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(unpairCmd)
	rootCmd.AddCommand(roleCmd)
	rootCmd.AddCommand(brokerCmd)
}
