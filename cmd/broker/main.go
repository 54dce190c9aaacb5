package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rudransh-shrivastava/exchangelink/internal/client/cmd"
	"github.com/rudransh-shrivastava/exchangelink/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	var configPath, addr string

	root := &cobra.Command{
		Use:          "exchangelink-broker",
		Short:        "runs the exchangelink signaling broker",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Broker.Addr = addr
			}

			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cmd.RunBroker(ctx, cfg)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "config file")
	root.Flags().StringVar(&addr, "addr", "", "listen address (default :9000)")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
