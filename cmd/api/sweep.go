package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neon-saas/neon-gateway/internal/bootstrap"
	"github.com/neon-saas/neon-gateway/internal/logging"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired and stray files from the staging directory once",
	RunE: func(cmd *cobra.Command, args []string) error {
		relay, err := bootstrap.BuildRelay(cmd.Context(), cfg, logger, nil)
		if err != nil {
			return err
		}
		defer relay.Close()

		ctx := logging.WithContext(cmd.Context(), logger)
		res, err := relay.Stager.Sweep(ctx)
		if err != nil {
			return err
		}
		logger.Info("sweep finished",
			zap.String("dir", relay.Stager.Dir()),
			zap.Int("expired", res.Expired),
			zap.Int("strays", res.Strays),
			zap.Int("busy", res.Busy),
		)
		return nil
	},
}
