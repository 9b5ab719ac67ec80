package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"llm-rebalancer/internal/trace"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = trace.Shutdown(shutdownCtx)

	if err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "rebalancer",
		Short: "LLM-guided portfolio rebalancer running against a simulated ledger",
		Long: `rebalancer asks a language model for a target allocation across stocks and
cryptos, gates changes to held positions on news sentiment, simulates the
resulting trades and appends them to an append-only ledger.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeSystem(opts.debug)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newOnceCmd(opts))
	rootCmd.AddCommand(newSetupCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newNotifyCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newEODCmd(opts))

	return rootCmd
}
