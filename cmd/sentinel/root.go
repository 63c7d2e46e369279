package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"SqueezeSentinel/internal/config"
	"SqueezeSentinel/internal/exits"
	"SqueezeSentinel/internal/model"
)

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		cfg     *config.Config
	)
	root := &cobra.Command{
		Use:           "sentinel",
		Short:         "Squeeze scanner and portfolio exit monitor",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := loaded.Validate(); err != nil {
				return fmt.Errorf("config validation: %w", err)
			}
			if err := setupLogging(loaded.Log.Level, loaded.Log.Pretty); err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default $CONFIG_PATH or "+config.DefaultPath+")")

	// withApp builds the components for one command and releases them after.
	withApp := func(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warn().Err(err).Msg("close")
				}
			}()
			return fn(cmd.Context(), a, args)
		}
	}

	root.AddCommand(
		runCmd(withApp),
		scanCmd(withApp),
		monitorCmd(withApp),
		analyzeCmd(withApp),
		haltsCmd(withApp),
		portfolioCmd(withApp),
		historyCmd(withApp),
	)
	return root
}

type appRunner func(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error

func runCmd(withApp appRunner) *cobra.Command {
	var scanOnStart bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitor, scan and cleanup tasks until interrupted",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			log.Info().Msg("SqueezeSentinel starting")
			if err := a.scheduler.RegisterAll(); err != nil {
				return fmt.Errorf("register tasks: %w", err)
			}

			var srv *http.Server
			if addr := a.cfg.Metrics.Addr; addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", a.metrics.Handler())
				srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Str("addr", addr).Msg("metrics server")
					}
				}()
				log.Info().Str("addr", addr).Msg("metrics endpoint listening")
			}

			a.scheduler.Start()
			if a.telegram != nil && a.cfg.Telegram.Commands {
				go a.telegram.StartPolling(ctx, a.scheduler.HandleCommand)
				log.Info().Msg("telegram polling started")
			}
			if scanOnStart || os.Getenv("RUN_ON_START") == "true" {
				go func() {
					if _, err := a.scheduler.RunScanNow(ctx); err != nil {
						log.Warn().Err(err).Msg("startup scan")
					}
				}()
			}

			log.Info().Msg("SqueezeSentinel is running, press Ctrl+C to stop")
			<-ctx.Done()

			log.Info().Msg("shutdown signal received, stopping")
			a.scheduler.Stop()
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}
			log.Info().Msg("SqueezeSentinel stopped")
			return nil
		}),
	}
	cmd.Flags().BoolVar(&scanOnStart, "scan-on-start", false, "run one squeeze scan immediately")
	return cmd
}

func scanCmd(withApp appRunner) *cobra.Command {
	var (
		store     bool
		minChange float64
		minScore  int
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one market-wide squeeze scan",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			if minChange < 0 {
				minChange = a.cfg.Scanner.MinChangePercent
			}
			if minScore < 0 {
				minScore = a.cfg.Scanner.MinScore
			}
			var (
				opps []model.Opportunity
				err  error
			)
			if store {
				a.scheduler.Config.MinChangePercent = minChange
				a.scheduler.Config.MinScore = minScore
				opps, err = a.scheduler.RunScanNow(ctx)
			} else {
				opps, err = a.scanner.Scan(ctx, minChange, minScore)
			}
			printOpportunities(opps)
			return err
		}),
	}
	cmd.Flags().BoolVar(&store, "store", false, "persist the opportunities found")
	cmd.Flags().Float64Var(&minChange, "min-change", -1, "minimum |change %| (default from config)")
	cmd.Flags().IntVar(&minScore, "min-score", -1, "minimum squeeze score (default from config)")
	return cmd
}

func monitorCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Evaluate every held position once, ignoring market hours",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			sigs, err := a.scheduler.RunMonitorNow(ctx)
			if err != nil {
				return err
			}
			printExitSignals(sigs)
			return nil
		}),
	}
}

func analyzeCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze SYMBOL",
		Short: "Score one symbol and run the exit rules on it",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			symbol := strings.ToUpper(args[0])
			opp, err := a.scanner.Analyze(ctx, symbol)
			if err != nil {
				return err
			}
			printOpportunities([]model.Opportunity{*opp})
			for _, s := range opp.Signals {
				fmt.Printf("  signal: %s\n", s)
			}
			for _, w := range opp.RiskWarnings {
				fmt.Printf("  risk:   %s\n", w)
			}

			snap, err := a.scanner.Snapshots.FetchSnapshot(ctx, symbol)
			if err != nil {
				return fmt.Errorf("exit analysis: %w", err)
			}
			if sig := a.analyzer.Evaluate(snap, nil); sig != nil {
				printExitSignals([]model.ExitSignal{*sig})
			} else {
				fmt.Println("No exit signals.")
			}
			return nil
		}),
	}
}

func haltsCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "halts",
		Short: "List active trading halts",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			halts := a.scanner.Halts.Get(ctx)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tTIME\tCODE\tREASON")
			for _, h := range halts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.Symbol, h.HaltTime, h.Code, h.Reason)
			}
			return w.Flush()
		}),
	}
}

func portfolioCmd(withApp appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Manage held positions",
	}
	var name string
	add := &cobra.Command{
		Use:   "add SYMBOL QUANTITY [AVG_PRICE]",
		Short: "Add or replace a position",
		Args:  cobra.RangeArgs(2, 3),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			qty, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("parse quantity: %w", err)
			}
			pos := model.Position{Symbol: args[0], Name: name, Quantity: qty}
			if len(args) == 3 {
				avg, err := strconv.ParseFloat(args[2], 64)
				if err != nil {
					return fmt.Errorf("parse average price: %w", err)
				}
				pos.AvgPrice = &avg
			}
			if err := a.recorder.AddPosition(ctx, pos); err != nil {
				return err
			}
			fmt.Printf("Added %s\n", strings.ToUpper(pos.Symbol))
			return nil
		}),
	}
	add.Flags().StringVar(&name, "name", "", "company name")

	remove := &cobra.Command{
		Use:   "remove SYMBOL",
		Short: "Remove a position and its exit signal",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			symbol := strings.ToUpper(args[0])
			ok, err := a.recorder.RemovePosition(ctx, symbol)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s is not in the portfolio", symbol)
			}
			fmt.Printf("Removed %s\n", symbol)
			return nil
		}),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List positions and the portfolio risk summary",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			positions, err := a.recorder.Positions(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tQUANTITY\tAVG PRICE\tADDED")
			for _, p := range positions {
				avg := "-"
				if p.HasCostBasis() {
					avg = fmt.Sprintf("%.2f", *p.AvgPrice)
				}
				fmt.Fprintf(w, "%s\t%g\t%s\t%s\n", p.Symbol, p.Quantity, avg, p.AddedAt.Format(time.DateTime))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			sigs, err := a.recorder.ExitSignals(ctx)
			if err != nil {
				return err
			}
			risk := exits.Summarize(sigs)
			fmt.Printf("\nRisk: %s - %s\n", risk.OverallRisk, risk.Message)
			return nil
		}),
	}
	cmd.AddCommand(add, remove, list)
	return cmd
}

func historyCmd(withApp appRunner) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently stored opportunities and exit signals",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			opps, err := a.recorder.RecentOpportunities(ctx, limit)
			if err != nil {
				return err
			}
			printOpportunities(opps)
			sigs, err := a.recorder.ExitSignals(ctx)
			if err != nil {
				return err
			}
			fmt.Println()
			printExitSignals(sigs)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "opportunities to show")
	return cmd
}

func printOpportunities(opps []model.Opportunity) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tURGENCY\tSCORE\tPRICE\tCHANGE%\tVOLUME x\tHALT\tDETECTED")
	for _, o := range opps {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%+.1f\t%.1f\t%t\t%s\n", o.Symbol, o.Urgency, o.Score, o.Price,
			o.ChangePercent, o.VolumeSpike, o.Halted, o.DetectedAt.Format(time.DateTime))
	}
	w.Flush()
}

func printExitSignals(sigs []model.ExitSignal) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tURGENCY\tACTION\tPRICE\tDROP%\tACT WITHIN\tRULES")
	for _, s := range sigs {
		kinds := make([]string, len(s.Events))
		for i, e := range s.Events {
			kinds[i] = string(e.Kind)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%.2f\t%.1f\t%s\t%s\n", s.Symbol, s.Urgency, s.Recommendation.Action,
			s.Price, s.DropFromHigh, s.TimeToAct, strings.Join(kinds, ","))
	}
	w.Flush()
}
