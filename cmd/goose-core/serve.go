package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/goose-run/goose-core/internal/conductor"
	"github.com/goose-run/goose-core/internal/coreops"
	"github.com/goose-run/goose-core/internal/logging"
	"github.com/goose-run/goose-core/internal/metrics"
	"github.com/goose-run/goose-core/internal/scheduler"
)

var serveMetricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the long-lived agent runtime: scheduler tick loop, conductor heartbeat, metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		registry := coreops.NewRegistry()
		for _, c := range []coreops.Core{
			coreops.NewFreeformCore(),
			coreops.NewStructuredCore(),
			coreops.NewOrchestratorCore(),
			coreops.NewSwarmCore(),
			coreops.NewWorkflowCore(),
			coreops.NewAdversarialCore(),
		} {
			if err := registry.Register(c); err != nil {
				return err
			}
		}
		if err := registry.SwitchCore(cfg.Core.DefaultCore); err != nil {
			fmt.Printf("warning: configured default core %q not registered\n", cfg.Core.DefaultCore)
		}

		sched := scheduler.New(cfg.Scheduler.MaxHistory)
		reg := metrics.New()

		mux := http.NewServeMux()
		mux.Handle("/metrics", reg.Handler())
		metricsSrv := &http.Server{Addr: serveMetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Get(logging.CategoryBoot).Error("metrics server exited: %v", err)
			}
		}()

		ccfg := conductor.ConfigFromEnv("goose-core")
		if cfg.Conductor.IPCPath != "" && os.Getenv("GOOSE_CONDUCTOR_IPC_PATH") == "" {
			ccfg.IPCPath = cfg.Conductor.IPCPath
		}
		if cfg.Conductor.HeartbeatInterval > 0 && os.Getenv("GOOSE_CONDUCTOR_HEARTBEAT_MS") == "" {
			ccfg.HeartbeatInterval = cfg.Conductor.HeartbeatInterval
		}
		if cfg.Conductor.ReconnectInterval > 0 && os.Getenv("GOOSE_CONDUCTOR_RECONNECT_MS") == "" {
			ccfg.ReconnectInterval = cfg.Conductor.ReconnectInterval
		}
		client := conductor.New(ccfg)
		go client.Run(ctx)

		tick := cfg.Scheduler.TickPeriod
		if tick <= 0 {
			tick = time.Second
		}
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		fmt.Printf("serving metrics on %s/metrics, ticking every %s\n", serveMetricsAddr, tick)
		for {
			select {
			case <-ctx.Done():
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = metricsSrv.Shutdown(shutdownCtx)
				return nil
			case <-ticker.C:
				for _, t := range sched.AllDue() {
					logging.Get(logging.CategoryScheduler).Info("task due: %s (%s)", t.ID, t.Description)
				}
				reg.RefreshCores(registry.ListCoresWithMetrics())
				reg.RefreshQueueDepth(sched)
			}
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", ":9090", "address to serve /metrics on")
	rootCmd.AddCommand(serveCmd)
}
