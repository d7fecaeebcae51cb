package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"go.pilab.hu/vident/config"
	"go.pilab.hu/vident/internal/metrics"
	"go.pilab.hu/vident/log"
	"go.pilab.hu/vident/tracing"
)

var (
	cfgFile   string
	appConfig *config.Config
	appLogger log.Logger
	tp        *sdktrace.TracerProvider

	metricsOnce sync.Once
)

var rootCmd = &cobra.Command{
	Use:   "vidctl",
	Short: "vidctl administers a vident identity store",
	Long: `A command-line tool for the vident identity core: key bootstrap, token
expiry sweeps, cascading deletes of accounts and applications, and
lookups on the encrypted email index.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		appConfig = cfg
		appLogger = log.NewZerologAdapter(log.ParseLevel(cfg.Log.Level), cfg.Log.Pretty)

		if tp == nil {
			tp, err = tracing.InitTracerProvider(cfg.Otel.ServiceName, cfg.Otel.Stdout)
			if err != nil {
				return fmt.Errorf("failed to initialize tracer provider: %w", err)
			}
		}
		metricsOnce.Do(func() {
			if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
				appLogger.Warn(cmd.Context(), "Metrics registration incomplete", log.Fields{"error": err.Error()})
			}
		})

		appLogger.Debug(cmd.Context(), "vidctl starting", log.Fields{
			"database": cfg.Mongo.Database,
			"cache":    cfg.Cache.Backend,
		})
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx := context.Background()
	err := rootCmd.ExecuteContext(ctx)
	shutdownTracing(ctx)
	if err != nil {
		if appLogger != nil {
			appLogger.Error(ctx, "vidctl failed", err)
		} else {
			fmt.Fprintln(os.Stderr, "vidctl failed:", err)
		}
		os.Exit(1)
	}
}

func shutdownTracing(ctx context.Context) {
	if tp == nil {
		return
	}
	if err := tp.Shutdown(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error shutting down tracer provider:", err)
	}
	tp = nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is vident.yaml in /etc/vident, $HOME/.vident or the working directory)")
}
