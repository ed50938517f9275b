package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/bjaus/topicroute"
	"github.com/bjaus/topicroute/metrics"
	"github.com/bjaus/topicroute/natsbridge"
)

type serveOptions struct {
	natsURL     string
	subject     string
	forward     string
	queue       string
	workers     int
	metricsAddr string
}

func newServeCommand() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Route NATS publishes through the weather controller",
		Long: `Subscribe to <subject>.>, route every message through the demo weather
routes and republish accepted messages under <forward>.

Publishers identify themselves with the Client-Id header. Prometheus metrics
are served on --metrics-addr when it is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.natsURL, "nats-url", nats.DefaultURL, "NATS server URL")
	cmd.Flags().StringVar(&opts.subject, "subject", "publish", "Inbound subject prefix")
	cmd.Flags().StringVar(&opts.forward, "forward", "deliver", "Outbound subject prefix for accepted messages")
	cmd.Flags().StringVar(&opts.queue, "queue", "", "Queue group for load balancing")
	cmd.Flags().IntVar(&opts.workers, "workers", 1, "Concurrent dispatches")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", ":9100", "Prometheus listen address (empty to disable)")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	conn, err := nats.Connect(opts.natsURL,
		nats.Name("topicroute"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer conn.Close()

	bridge, err := natsbridge.New(conn, natsbridge.Config{
		Subject: opts.subject,
		Forward: opts.forward,
		Queue:   opts.queue,
		Workers: opts.workers,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg, "topicroute")
	if err != nil {
		return err
	}

	container := topicroute.NewContainer()
	topicroute.Provide(container, logger)

	routerOpts := append(cfg.Options(), m.Options()...)
	routerOpts = append(routerOpts,
		topicroute.WithLogger(logger),
		topicroute.WithActivator(container),
		topicroute.WithServer(bridge),
	)
	r := topicroute.New(routerOpts...)
	if err := registerWeatherRoutes(r); err != nil {
		return err
	}

	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", opts.metricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics listening", "addr", opts.metricsAddr)
	}

	return bridge.Run(ctx, r)
}
