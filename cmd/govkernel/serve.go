package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/api"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the kernel over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := loadRuntime(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()

			ln, err := net.Listen("tcp", ":"+rt.cfg.Port)
			if err != nil {
				return err
			}
			return rt.serve(ctx, ln)
		},
	}
}

// serve runs the HTTP server, the limiter sweeper and the revocation file
// watcher until ctx is cancelled or one of them fails.
func (rt *runtime) serve(ctx context.Context, ln net.Listener) error {
	limiter := api.NewRateLimiter(rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	srv := &http.Server{
		Handler:           api.NewServer(rt.kernel, rt.logger, rt.telemetry.Tracer()).Routes(limiter),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.logger.InfoContext(gctx, "listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error { return limiter.Run(gctx) })
	if rt.revFile != nil {
		g.Go(func() error { return rt.revFile.Watch(gctx) })
	}

	err := g.Wait()
	rt.logger.InfoContext(ctx, "server stopped", "error", err)
	return err
}
