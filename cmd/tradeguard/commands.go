package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/tradeguard/internal/application"
	"github.com/sawpanic/tradeguard/internal/backtest/walkforward"
	"github.com/sawpanic/tradeguard/internal/gates"
	httpapi "github.com/sawpanic/tradeguard/internal/interfaces/http"
	"github.com/sawpanic/tradeguard/internal/interfaces/output"
)

const dateLayout = "2006-01-02"

func newScoreCmd(opts *options) *cobra.Command {
	var (
		req     application.SentimentRequest
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "score SYMBOL [SYMBOL...]",
		Short: "Score sentiment snapshots for symbols",
		Long:  "Fetches the trailing mention window, filters manipulation, and scores each symbol against its rolling baseline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.close()

			req.Symbols = args
			resp, err := a.service.ScoreSentiment(cmd.Context(), req)
			for _, w := range resp.Warnings {
				log.Warn().Msg(w)
			}
			if err == nil && outPath != "" {
				if err := output.NewEmitter().Emit(outPath, resp.Snapshots); err != nil {
					return err
				}
				log.Info().Str("path", outPath).Int("snapshots", len(resp.Snapshots)).Msg("Snapshots written")
			}
			return opts.print(cmd.OutOrStdout(), resp.Summary, resp, err)
		},
	}
	cmd.Flags().StringSliceVar(&req.Subreddits, "subreddits", nil, "Communities to scan (default from service.subreddits)")
	cmd.Flags().IntVar(&req.LookbackHours, "lookback-hours", 0, "Mention window in hours (default from config)")
	cmd.Flags().IntVar(&req.BaselineDays, "baseline-days", 0, "Rolling baseline length in days (default from config)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Also write snapshots to a .csv or .json file")
	return cmd
}

func newTrendingCmd(opts *options) *cobra.Command {
	var req application.TrendingRequest
	cmd := &cobra.Command{
		Use:   "trending",
		Short: "List tickers trending across the scanned communities",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.close()

			resp, err := a.service.TrendingTickers(cmd.Context(), req)
			return opts.print(cmd.OutOrStdout(), resp.Summary, resp, err)
		},
	}
	cmd.Flags().StringSliceVar(&req.Subreddits, "subreddits", nil, "Communities to scan (default from service.subreddits)")
	cmd.Flags().IntVar(&req.LookbackHours, "lookback-hours", 0, "Mention window in hours (default from config)")
	cmd.Flags().IntVar(&req.MinMentions, "min-mentions", 0, "Minimum mentions to list a ticker (default from config)")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "Maximum rows (default from config)")
	return cmd
}

func newEvaluateCmd(opts *options) *cobra.Command {
	var (
		order       gates.ProposedOrder
		side        string
		orderType   string
		assetClass  string
		requestFile string
		outPath     string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the pre-trade gate on one proposed order",
		Long:  "Evaluates account, exposure and sentiment guardrails. A deny prints the decision and exits 0.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req application.OrderRequest
			if requestFile != "" {
				data, err := os.ReadFile(requestFile)
				if err != nil {
					return fmt.Errorf("failed to read order request: %w", err)
				}
				if err := json.Unmarshal(data, &req); err != nil {
					return fmt.Errorf("failed to parse order request: %w", err)
				}
			} else {
				order.Side = gates.Side(side)
				order.OrderType = gates.OrderType(orderType)
				order.AssetClass = gates.AssetClass(assetClass)
				req.Order = order
			}

			a, err := buildApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.close()

			resp, err := a.service.EvaluateOrder(cmd.Context(), req)
			for _, w := range resp.Warnings {
				log.Warn().Msg(w)
			}
			if err == nil && outPath != "" {
				if err := output.NewEmitter().EmitDecisionJSON(outPath, &resp.Decision); err != nil {
					return err
				}
			}
			return opts.print(cmd.OutOrStdout(), resp.Summary, resp, err)
		},
	}
	cmd.Flags().StringVar(&order.Symbol, "symbol", "", "Ticker symbol")
	cmd.Flags().StringVar(&side, "side", string(gates.SideBuy), "Order side (buy|sell)")
	cmd.Flags().Float64Var(&order.Quantity, "qty", 0, "Order quantity")
	cmd.Flags().StringVar(&orderType, "type", string(gates.OrderLimit), "Order type (market|limit)")
	cmd.Flags().Float64Var(&order.LimitPrice, "limit-price", 0, "Limit price")
	cmd.Flags().Float64Var(&order.ReferencePrice, "reference-price", 0, "Last quote for market orders")
	cmd.Flags().BoolVar(&order.ExtendedHours, "extended-hours", false, "Allow pre/post market execution")
	cmd.Flags().StringVar(&assetClass, "asset-class", string(gates.AssetStock), "Asset class (stock|crypto)")
	cmd.Flags().StringVar(&requestFile, "request", "", "JSON order request file; overrides the order flags")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Also write the decision to a JSON file")
	return cmd
}

func newBacktestCmd(opts *options) *cobra.Command {
	var (
		req        application.BacktestRequest
		mode       string
		start, end string
		outputDir  string
	)
	cmd := &cobra.Command{
		Use:   "backtest SYMBOL [SYMBOL...]",
		Short: "Walk-forward tune sentiment thresholds against price history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Symbols = args
			req.Mode = walkforward.Mode(mode)
			var err error
			if req.Window.Start, err = parseDate("start", start); err != nil {
				return err
			}
			if req.Window.End, err = parseDate("end", end); err != nil {
				return err
			}
			if outputDir != "" {
				opts.cfg.Backtest.OutputDir = outputDir
			}
			if !opts.jsonOut {
				opts.cfg.Backtest.Progress = true
			}

			a, err := buildApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.close()

			resp, err := a.service.RunBacktest(cmd.Context(), req)
			if resp.Artifacts != nil {
				log.Info().Str("dir", resp.Artifacts.OutputDir).Msg("Backtest artifacts written")
			}
			return opts.print(cmd.OutOrStdout(), resp.Summary, resp, err)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(walkforward.ModeWalkForward), "Backtest mode (walk_forward|single)")
	cmd.Flags().StringVar(&start, "start", "", "First day, YYYY-MM-DD (default from service.backtest_history_days)")
	cmd.Flags().StringVar(&end, "end", "", "Last day (exclusive), YYYY-MM-DD (default today)")
	cmd.Flags().Float64SliceVar(&req.Grid.SentimentThresholds, "sentiment-thresholds", nil, "Sentiment cutoffs to sweep (default from service.grid)")
	cmd.Flags().Float64SliceVar(&req.Grid.ConfidenceThresholds, "confidence-thresholds", nil, "Confidence cutoffs to sweep (default from service.grid)")
	cmd.Flags().IntVar(&req.Window.TrainDays, "train-days", 0, "Training window length in days")
	cmd.Flags().IntVar(&req.Window.TestDays, "test-days", 0, "Test window length in days")
	cmd.Flags().IntVar(&req.Window.StepDays, "step-days", 0, "Days between window pairs")
	cmd.Flags().StringVar(&outputDir, "output", "", "Artifact directory (overrides backtest.output_dir)")
	return cmd
}

func parseDate(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: want YYYY-MM-DD, got %q", flag, value)
	}
	return t.UTC(), nil
}

func newServeCmd(opts *options) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API with /health and /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if host != "" {
				opts.cfg.Server.Host = host
			}
			if port != 0 {
				opts.cfg.Server.Port = port
			}

			a, err := buildApp(cmd.Context(), opts.cfg, true)
			if err != nil {
				return err
			}
			defer a.close()

			server, err := httpapi.NewServer(opts.cfg.Server, a.service, a.health, a.registry.Handler())
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides server.port)")
	return cmd
}

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(opts.cfg); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	})
	return cmd
}
