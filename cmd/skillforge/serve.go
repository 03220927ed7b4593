package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillforge/pkg/logger"
	"github.com/jingkaihe/skillforge/pkg/presenter"
	"github.com/jingkaihe/skillforge/pkg/prompts"
	"github.com/jingkaihe/skillforge/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for forging and running skills",
	Long: `Start a local HTTP server exposing the SOP workflow, skill compilation, skill
invocation and the skill library as a JSON API under /api. Each client works in its
own session; idle sessions are evicted once serve.max_sessions is reached.

The server listens on http://127.0.0.1:7860 by default.`,
	Run: func(cmd *cobra.Command, _ []string) {
		runServeCommand(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("host", "127.0.0.1", "Host to bind the API server to")
	serveCmd.Flags().Int("port", 7860, "Port to bind the API server to")
	serveCmd.Flags().Int("max-sessions", 256, "Maximum number of live sessions")

	viper.BindPFlag("serve.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("serve.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("serve.max_sessions", serveCmd.Flags().Lookup("max-sessions"))
}

func runServeCommand(ctx context.Context) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, cfg, err := loadServices(ctx)
	if err != nil {
		presenter.Error(err, "Failed to initialise skillforge")
		os.Exit(1)
	}

	srv, err := server.New(services, &server.Config{
		Host:        cfg.Serve.Host,
		Port:        cfg.Serve.Port,
		MaxSessions: cfg.Serve.MaxSessions,
	})
	if err != nil {
		services.Close()
		presenter.Error(err, "Invalid server configuration")
		os.Exit(1)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to close server")
		}
	}()

	if cfg.PromptsDir != "" {
		go func() {
			if err := services.Renderer.Watch(ctx, cfg.PromptsDir, prompts.DefaultDebounce); err != nil {
				logger.G(ctx).WithError(err).Warn("prompt templates will not be reloaded")
			}
		}()
	}

	if err := srv.Start(ctx); err != nil {
		presenter.Error(err, "Server failed")
		os.Exit(1)
	}
	presenter.Success("Server stopped")
}
