package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/psantana5/smartworking/pkg/api"
	"github.com/psantana5/smartworking/pkg/logging"
	"github.com/psantana5/smartworking/pkg/shutdown"
	"github.com/psantana5/smartworking/pkg/tls"
	"github.com/psantana5/smartworking/pkg/tracing"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			ctx := cmd.Context()
			logger := newLogger(cfg)

			tracer, err := tracing.InitTracer(ctx, tracing.Config{
				ServiceName:    "smartworking",
				ServiceVersion: Version,
				Environment:    cfg.Tracing.Environment,
				OTLPEndpoint:   cfg.Tracing.Endpoint,
				Insecure:       cfg.Tracing.Insecure,
				SampleRatio:    cfg.Tracing.SampleRatio,
				Enabled:        cfg.Tracing.Enabled,
			}, logger)
			if err != nil {
				return err
			}

			a, err := buildApp(ctx, cfg, logger, tracer)
			if err != nil {
				_ = tracer.Shutdown(context.Background())
				return err
			}

			handler := api.NewRouter(api.NewHandler(a.engine, a.accounts, logger), api.RouterOptions{
				Health:    a.store,
				Metrics:   a.metrics,
				Tracing:   tracer,
				CORSAllow: cfg.Server.CORSOrigins,
			})
			srv := api.NewServer(api.ServerConfig{
				Addr:         cfg.Server.Addr,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}, handler)
			if cfg.Server.TLS.Enabled {
				srv.TLSConfig, err = tls.LoadServerConfig(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
				if err != nil {
					a.close()
					_ = tracer.Shutdown(context.Background())
					return err
				}
			}

			// Hooks run last-registered first: HTTP, then notifications, then storage.
			sm := shutdown.New(cfg.Server.ShutdownTimeout, logger)
			sm.Register("store", func(context.Context) error { a.close(); return nil })
			sm.Register("tracing", tracer.Shutdown)
			sm.Register("notifications", a.dispatcher.Stop)
			sm.Register("http", shutdown.StopHTTPServer(srv))

			a.dispatcher.Start()

			waitCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			var listenErr error
			done := make(chan struct{})
			go func() {
				defer close(done)
				defer cancel()
				logger.Info("Smart working API listening", logging.Fields{
					"addr":     cfg.Server.Addr,
					"tls":      cfg.Server.TLS.Enabled,
					"database": cfg.Database.Type,
					"queue":    cfg.Notify.Queue,
				})
				var err error
				if srv.TLSConfig != nil {
					err = srv.ListenAndServeTLS("", "")
				} else {
					err = srv.ListenAndServe()
				}
				if !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server failed", logging.Fields{"error": err.Error()})
					listenErr = err
				}
			}()

			sm.Wait(waitCtx)
			shutdownErr := sm.Shutdown()
			<-done
			if listenErr != nil {
				return listenErr
			}
			return shutdownErr
		},
	}
}
