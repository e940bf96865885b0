// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ewpsec/go-api-security/pkg/config"
	"github.com/ewpsec/go-api-security/pkg/server"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "serve the echo API on every configured endpoint",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Usage:    "configuration file",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "listen",
			Usage: "address to listen on for API, overrides the configuration",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Value: "127.0.0.1:8090",
			Usage: "address to listen on for Prometheus metrics",
		},
		&cli.StringFlag{
			Name:  "tls-cert",
			Usage: "server certificate; TLS is disabled when empty",
		},
		&cli.StringFlag{
			Name:  "tls-key",
			Usage: "server certificate key",
		},
	}, logFlags...),
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	logger, err := newLogger(cCtx)
	if err != nil {
		return err
	}

	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(cCtx.String("config"))
	if err != nil {
		return err
	}

	pipeline, err := config.Build(cfg, nil, config.WithLogger(logger))
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()

	metrics, err := server.NewMetrics(registry)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.Recoverer)

	for i := range cfg.Endpoints {
		ep := &cfg.Endpoints[i]

		mw, err := pipeline.Middleware(ep, server.WithMetrics(metrics))
		if err != nil {
			return err
		}

		handler := mw.Wrap(echoHandler(logger))

		router.Method(http.MethodGet, ep.Path, handler)
		router.Method(http.MethodPost, ep.Path, handler)

		logger.Info("endpoint mounted", zap.String("name", ep.Name), zap.String("path", ep.Path), zap.String("url", ep.URL))
	}

	listen := cCtx.String("listen")
	if listen == "" {
		listen = cfg.Listen
	}

	if listen == "" {
		return errors.New("no listen address configured")
	}

	ctx, stop := signal.NotifyContext(cCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			// certificates are checked against the manifest by the certificate authorizer
			ClientAuth: tls.RequestClientCert,
		},
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	metricsSrv := &http.Server{
		Addr:              cCtx.String("metrics-addr"),
		Handler:           metricsRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("serving API", zap.String("addr", listen))

		if certFile := cCtx.String("tls-cert"); certFile != "" {
			errCh <- srv.ListenAndServeTLS(certFile, cCtx.String("tls-key"))
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	go func() {
		logger.Info("serving metrics", zap.String("addr", metricsSrv.Addr))

		errCh <- metricsSrv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownErr := errors.Join(srv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return shutdownErr
}
