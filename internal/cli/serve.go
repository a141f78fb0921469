package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"github.com/mesh-intelligence/carsync/internal/api"
	"github.com/mesh-intelligence/carsync/internal/logger"
	"github.com/mesh-intelligence/carsync/pkg/carsync"
	"github.com/mesh-intelligence/carsync/pkg/types"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr      string
		reconcile bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API until interrupted",
		Long: `Serve installs the link topology, optionally reconciles client links
with the store contents, and serves the JSON API under /api on the
configured http_addr until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.config.GetHTTPAddr()
			}
			if a.config.GetEnv() != types.EnvLocal {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.withService(func(svc *carsync.Service) error {
				return a.serve(ctx, svc, addr, reconcile)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: http_addr from config.yaml)")
	cmd.Flags().BoolVar(&reconcile, "reconcile", false, "create missing client links before serving")
	return cmd
}

func (a *app) serve(ctx context.Context, svc *carsync.Service, addr string, reconcile bool) error {
	if _, err := svc.InitializeTopology(ctx); err != nil {
		return asSys(err)
	}
	if reconcile {
		n, err := svc.Reconcile(ctx, "serve")
		if err != nil {
			return asSys(err)
		}
		a.log.Info("reconciled client links", slog.Int("created", n))
	}

	router := api.NewRouter(&api.Handler{Service: svc}, a.log.With(slog.String("component", "api")))
	if err := api.ListenAndServe(ctx, addr, router, a.log); err != nil {
		a.log.Error("http api stopped", logger.Err(err))
		return asSys(err)
	}
	return nil
}
