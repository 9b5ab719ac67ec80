package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"llm-rebalancer/internal/agent"
	"llm-rebalancer/internal/dashboard"
	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/ledger"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/metrics"
	"llm-rebalancer/internal/notify"
	"llm-rebalancer/internal/scheduler"
	"llm-rebalancer/internal/store"
	"llm-rebalancer/internal/types"
)

// withLedger loads the config, opens the ledger and closes it when fn
// returns.
func withLedger(ctx context.Context, opts *rootOptions, fn func(cfg *store.Config, m *metrics.Collector, st interfaces.LedgerStore) error) error {
	cfg, err := loadConfig(ctx, opts.configPath)
	if err != nil {
		return err
	}
	m := initializeMetrics(ctx)
	st, err := ledger.Open(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, m, st)
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var serve bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the rebalance loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLedger(ctx, opts, func(cfg *store.Config, m *metrics.Collector, st interfaces.LedgerStore) error {
				compressOldLogs(ctx, cfg)

				ag, err := initializeAgent(ctx, cfg, m, st)
				if err != nil {
					return err
				}
				summarizer, err := initializeEOD(ctx, cfg)
				if err != nil {
					return err
				}

				done := make(chan struct{})
				go func() {
					defer close(done)
					runEODWatcher(ctx, summarizer)
				}()
				if serve {
					go func() {
						if err := dashboard.New(st, m).ListenAndServe(ctx, cfg.Dashboard.Listen); err != nil {
							logger.ErrorWithErr(ctx, "Dashboard stopped", err)
						}
					}()
				}

				err = scheduler.Loop(ctx, ag, scheduler.Config{
					Mode:              cfg.Schedule,
					LoopInterval:      cfg.LoopInterval,
					RebalanceInterval: cfg.RebalanceInterval,
				})
				<-done
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&serve, "serve", false, "Also serve the dashboard")
	return cmd
}

// runEODWatcher writes the daily summary once past the cut-off and again
// on shutdown.
func runEODWatcher(ctx context.Context, summarizer interfaces.EodSummarizer) {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			if ok, _ := summarizer.ShouldRunNow(); ok {
				if p, err := summarizer.SummarizeToday(); err == nil && p != "" {
					logger.Info(ctx, "EOD CSV written", "path", p)
				}
			}
		case <-ctx.Done():
			if p, err := summarizer.SummarizeToday(); err == nil && p != "" {
				logger.Info(ctx, "EOD CSV written", "path", p)
			}
			return
		}
	}
}

func newOnceCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single rebalance if one is due",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLedger(ctx, opts, func(cfg *store.Config, m *metrics.Collector, st interfaces.LedgerStore) error {
				ag, err := initializeAgent(ctx, cfg, m, st)
				if err != nil {
					return err
				}

				// The cycle must finish even if a signal arrives mid-way.
				cycleCtx := context.WithoutCancel(ctx)
				var report *agent.CycleReport
				if force {
					report, err = ag.RunCycle(cycleCtx)
				} else {
					report, err = ag.Run(cycleCtx, time.Now())
				}
				if errors.Is(err, agent.ErrNotDue) {
					next := ag.LastRebalance().Add(cfg.RebalanceInterval)
					fmt.Fprintf(cmd.OutOrStdout(), "Rebalance not due until %s\n", next.Format(time.RFC3339))
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Transaction %s committed: %d buys, %d sells, %d holds | Portfolio Value: $%.2f | Cash: $%.2f\n",
					report.TransactionID,
					report.Counts[types.ActionBuy],
					report.Counts[types.ActionSell],
					report.Counts[types.ActionHold],
					report.PortfolioValue,
					report.Cash,
				)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Rebalance even if the interval has not elapsed")
	return cmd
}

func newSetupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the ledger and write the starting cash record",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLedger(ctx, opts, func(cfg *store.Config, _ *metrics.Collector, st interfaces.LedgerStore) error {
				if err := os.MkdirAll(cfg.Tradelog.Dir, 0o755); err != nil {
					return err
				}
				seeded, err := ledger.NewWriter(st).EnsureInitialized(ctx, cfg.MaxInvestment, time.Now())
				if err != nil {
					return err
				}
				if seeded {
					fmt.Fprintf(cmd.OutOrStdout(), "Ledger initialized with $%.2f\n", cfg.MaxInvestment)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Ledger already initialized")
				}
				return nil
			})
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the state the next cycle starts from",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLedger(ctx, opts, func(cfg *store.Config, _ *metrics.Collector, st interfaces.LedgerStore) error {
				state, err := ledger.NewWriter(st).ReadLastCycle(ctx)
				if err != nil {
					return err
				}
				latest, err := st.Latest(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"state":              state,
					"latest_transaction": latest,
					"next_due":           nextDue(state.LastCycleAt, cfg.RebalanceInterval),
				})
			})
		},
	}
}

func nextDue(last time.Time, interval time.Duration) string {
	if last.IsZero() {
		return "now"
	}
	return last.Add(interval).Format(time.RFC3339)
}

func newNotifyCmd(opts *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Mail a summary of unverified cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLedger(ctx, opts, func(cfg *store.Config, _ *metrics.Collector, st interfaces.LedgerStore) error {
				sender, err := initializeSender(ctx, cfg)
				if err != nil {
					return err
				}
				v := notify.NewVerifier(st, sender)
				if once {
					out, err := v.RunOnce(ctx)
					if err != nil {
						return err
					}
					if !out.Sent {
						fmt.Fprintln(cmd.OutOrStdout(), "No new trades to verify.")
						return nil
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Verified %d records across %d cycles up to %s\n", out.Records, out.Cycles, out.VerifiedUpTo)
					return nil
				}
				return v.Loop(ctx, cfg.Notify.Interval)
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Send one report and exit")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLedger(ctx, opts, func(cfg *store.Config, m *metrics.Collector, st interfaces.LedgerStore) error {
				addr := cfg.Dashboard.Listen
				if listen != "" {
					addr = listen
				}
				return dashboard.New(st, m).ListenAndServe(ctx, addr)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address, overrides dashboard.listen")
	return cmd
}

func newEODCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "eod",
		Short: "Write the end-of-day CSV summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, opts.configPath)
			if err != nil {
				return err
			}
			summarizer, err := initializeEOD(ctx, cfg)
			if err != nil {
				return err
			}

			var path string
			if date == "" {
				path, err = summarizer.SummarizeToday()
			} else {
				day, perr := time.ParseInLocation("2006-01-02", date, time.Local)
				if perr != nil {
					return fmt.Errorf("invalid date format, use YYYY-MM-DD: %w", perr)
				}
				path, err = summarizer.SummarizeDay(day)
			}
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No trades for that day.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "EOD CSV written:", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day to summarize in YYYY-MM-DD format (today if not provided)")
	return cmd
}
