package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wp-orm/wpmeta/internal/web/api"
	"github.com/wp-orm/wpmeta/internal/web/server"
)

// NewServeCommand creates the serve command
func NewServeCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the metadata HTTP API",
		Long: `Serve the metadata HTTP API along with /health and Prometheus /metrics.

The server stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			handler := api.NewServer(a.store, a.logger, a.metrics, a.registry).Router()
			srv, err := server.New(server.DefaultConfig(addr, handler), a.logger)
			if err != nil {
				return err
			}
			srv.OnShutdown(func(context.Context) error {
				a.logger.Info("closing stores", zap.String("driver", a.cfg.Database.Driver))
				return a.Close()
			})
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}
