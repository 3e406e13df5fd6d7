package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/tradeguard/internal/config"
	applog "github.com/sawpanic/tradeguard/internal/log"
)

const (
	appName = "tradeguard"
	version = "v1.0.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}

// options are the persistent flags shared by every subcommand
type options struct {
	configPath string
	logLevel   string
	logFormat  string
	jsonOut    bool
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:     appName,
		Short:   "Retail social sentiment scoring with pre-trade guardrails",
		Version: version,
		Long: `tradeguard scores Reddit ticker sentiment against a rolling baseline,
gates proposed orders on account risk and sentiment, and tunes sentiment
thresholds with walk-forward backtests.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("TRADEGUARD_CONFIG"), "YAML config file (defaults when empty)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log.level (trace|debug|info|warn|error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Override log.format (auto|console|json)")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print the full JSON response instead of the summary")

	root.SetGlobalNormalizationFunc(dashFlags)

	root.AddCommand(
		newScoreCmd(opts),
		newTrendingCmd(opts),
		newEvaluateCmd(opts),
		newBacktestCmd(opts),
		newServeCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// dashFlags lets --lookback_hours match --lookback-hours, mirroring the YAML keys
func dashFlags(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// load reads the config and sets up logging; flags override the file
func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if err := applog.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	o.cfg = cfg

	log.Debug().
		Str("command", cmd.Name()).
		Str("config", o.configPath).
		Msg("Configuration loaded")
	return nil
}

// print writes the summary, or the whole response with --json; a response error fails the command
func (o *options) print(w io.Writer, summary string, resp interface{}, respErr error) error {
	if o.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	} else if summary != "" {
		fmt.Fprintln(w, summary)
	}
	return respErr
}
