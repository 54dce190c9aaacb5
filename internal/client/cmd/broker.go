package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rudransh-shrivastava/exchangelink/internal/broker"
	"github.com/rudransh-shrivastava/exchangelink/internal/config"
	"github.com/rudransh-shrivastava/exchangelink/internal/logger"
	"github.com/spf13/cobra"
)

var brokerAddr string

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "runs the signaling broker",
	Long:  `runs the signaling broker clients register with to find each other`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if brokerAddr != "" {
			cfg.Broker.Addr = brokerAddr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return RunBroker(ctx, cfg)
	},
}

func init() {
	brokerCmd.Flags().StringVar(&brokerAddr, "addr", "", "listen address (default :9000)")
}

// RunBroker serves the broker until ctx is done.
func RunBroker(ctx context.Context, c config.Config) error {
	srv, err := broker.NewServer(broker.Config{
		Addr:          c.Broker.Addr,
		ClientTimeout: c.Broker.ClientTimeout,
		Logger:        logger.New(os.Stdout, c.Log.Level),
	})
	if err != nil {
		return err
	}

	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
