package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-moodcam/internal/config"
	"github.com/teslashibe/go-moodcam/internal/log"
	"github.com/teslashibe/go-moodcam/pkg/app"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the detector and serve the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if port, _ := cmd.Flags().GetString("port"); port != "" {
				cfg.Web.Port = port
			}
			if source, _ := cmd.Flags().GetString("source"); source != "" {
				cfg.Camera.Source = source
			}

			log.Init(cfg.Log.Level, cfg.Log.Format)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(ctx, cfg, app.WithLogger(log.L()))
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
	cmd.Flags().String("port", "", "dashboard port (overrides web.port)")
	cmd.Flags().String("source", "", "camera source: webcam, push or webrtc")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}
