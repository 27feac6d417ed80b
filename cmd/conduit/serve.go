package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/conduit/pkg/batcher"
	"github.com/ajitpratap0/conduit/pkg/extract"
	"github.com/ajitpratap0/conduit/pkg/notify"
	"github.com/ajitpratap0/conduit/pkg/server"
)

var defaultRoutes = []string{"user:update", "segment:update", "segment:delete", "ship:update"}

func newServeCommand(configFile *string) *cobra.Command {
	var addr string
	var routes []string
	var events bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept notifications and extraction requests over HTTP",
		Long: `Start the HTTP endpoint. Notifications for each --route are accumulated
per organization and ship and printed as JSON lines once a batch flushes.

Example:
  conduit serve --addr :8082 --route user:update --route segment:update --events`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := setup(ctx, cfg, "conduit-server")
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			registry := batcher.NewRegistry[notify.Notification](
				batcher.WithLogger(rt.log),
				batcher.WithName("notify"),
				batcher.WithDefaults(batcher.Options{
					MaxSize:  cfg.Batcher.MaxSize,
					Throttle: cfg.Batcher.Throttle,
				}))

			sink := newJSONSink(os.Stdout)
			router := notify.NewRouter(registry, notify.WithLogger(rt.log))
			for _, event := range routes {
				router.Handle(event, sink.batch(event), batcher.Options{})
			}
			if events {
				router.HandleEvent(sink.event)
			}

			ex := extract.NewFromConfig(rt.fetcher, cfg.Extract, rt.log)
			srv := server.New(cfg.Server, router,
				server.WithLogger(rt.log),
				server.WithExtractor(ex, sink.records, cfg.Extract.BatchSize))

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()

			rt.log.Info("server started",
				zap.String("addr", cfg.Server.Addr),
				zap.Strings("routes", router.Routes()),
				zap.Strings("schemes", rt.fetcher.Schemes()))

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				rt.log.Warn("server shutdown incomplete", zap.Error(err))
			}
			// Pending batches are flushed before exit
			if err := registry.Close(shutdownCtx); err != nil {
				rt.log.Warn("batch registry close incomplete", zap.Error(err))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	cmd.Flags().StringSliceVar(&routes, "route", defaultRoutes, "Event names to accumulate and print")
	cmd.Flags().BoolVar(&events, "events", false, "Print report sub-events as they arrive")

	return cmd
}
