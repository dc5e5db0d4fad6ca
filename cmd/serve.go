package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/M5rkn/NailsBot/internal/scheduler"
	grpctransport "github.com/M5rkn/NailsBot/internal/transport/grpc"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC API, reminder scheduler and completion sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			log.Info("starting",
				slog.String("grpc_addr", cfg.GRPCAddr),
				slog.String("timezone", cfg.TimeZone),
				slog.String("version", Version),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log, migrate)
			if err != nil {
				return err
			}
			defer a.Close()

			calendarSrv := grpctransport.NewCalendarServer(a.avail, a.booking, a.subs, a.notifier, log)
			srv := grpctransport.NewServer(grpctransport.ServerConfig{RequestTimeout: cfg.GRPCRequestTimeout}, calendarSrv, log)

			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return err
			}

			completion := &scheduler.Periodic{
				Name:     "completion_sweep",
				Interval: cfg.Booking.CompletionInterval,
				Fn: func(ctx context.Context) error {
					res, err := a.booking.CompleteDue(ctx)
					if res.Completed > 0 || res.Released > 0 {
						log.InfoContext(ctx, "completion sweep",
							slog.Int("completed", res.Completed),
							slog.Int("released", res.Released),
						)
					}
					return err
				},
				Log: log,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
					return err
				}
				return nil
			})
			g.Go(func() error { return a.scheduler.Run(gctx) })
			g.Go(func() error { return completion.Run(gctx) })
			g.Go(func() error {
				<-gctx.Done()
				log.Info("shutdown signal received")
				srv.Shutdown(cfg.ShutdownTimeout)
				return nil
			})

			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "run database migrations on startup")
	return cmd
}
