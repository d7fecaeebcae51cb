package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"go.pilab.hu/vident/log"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete tokens whose refresh secret has expired",
	Long: `Deletes every token whose refresh expiry has passed. With --every the sweep
repeats until the process receives SIGINT or SIGTERM; --metrics-addr then
exposes the Prometheus counters while it runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		every, _ := cmd.Flags().GetDuration("every")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withStack(ctx, func(s *stack) error {
			if every <= 0 {
				n, err := s.Tokens.SweepExpired(ctx)
				if err != nil {
					return err
				}
				return printYAML(cmd, map[string]int64{"deleted": n})
			}

			if metricsAddr != "" {
				srv := serveMetrics(ctx, metricsAddr)
				defer func() { _ = srv.Shutdown(context.WithoutCancel(ctx)) }()
			}
			return sweepLoop(ctx, s, every)
		})
	},
}

func sweepLoop(ctx context.Context, s *stack, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if n, err := s.Tokens.SweepExpired(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			appLogger.Error(ctx, "Token sweep failed", err)
		} else {
			appLogger.Info(ctx, "Token sweep finished", log.Fields{"deleted": n})
		}

		select {
		case <-ctx.Done():
			appLogger.Info(ctx, "Token sweeper stopping")
			return nil
		case <-ticker.C:
		}
	}
}

func serveMetrics(ctx context.Context, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		appLogger.Info(ctx, "Serving metrics", log.Fields{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error(ctx, "Metrics listener failed", err)
		}
	}()
	return srv
}

func init() {
	sweepCmd.Flags().Duration("every", 0, "repeat the sweep at this interval until interrupted")
	sweepCmd.Flags().String("metrics-addr", "", "serve /metrics on this address while sweeping repeatedly")
	rootCmd.AddCommand(sweepCmd)
}
