package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aide/internal/skillrpc"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant: heartbeat scheduler, queue consumer, and skill RPC service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, err := buildCore(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.shutdown()

		c.router.Warmup(ctx)

		if !cfg.Queue.ConsumerDisabled {
			c.queue.Start(ctx)
		}
		c.scheduler.Start(ctx)

		rpc := skillrpc.NewServer(cfg.Skills.ServiceAddr, c.registry)
		errCh := make(chan error, 1)
		go func() { errCh <- rpc.Start() }()

		c.log.Info("aide running",
			zap.String("skill_rpc", cfg.Skills.ServiceAddr),
			zap.Int("heartbeat_interval_s", cfg.Scheduler.IntervalSeconds))

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := rpc.Shutdown(shutdownCtx); err != nil {
			c.log.Warn("skill rpc shutdown failed", zap.Error(err))
		}
		return nil
	},
}
