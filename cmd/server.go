/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/blnkfinance/pledge/api"
	"github.com/blnkfinance/pledge/config"
	"github.com/blnkfinance/pledge/internal/traces"
	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const heartbeatInterval = 5 * time.Minute

// serveTLS serves r over HTTPS with certificates managed by CertMagic. An
// empty domain falls back to localhost.
func serveTLS(ctx context.Context, r http.Handler, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: filepath.Join(os.TempDir(), "pledge-certmagic")}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		logrus.Warn("no domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}
	if err := cfg.ManageSync(ctx, domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}
	return runServer(ctx, server, func() error { return server.ListenAndServeTLS("", "") })
}

// runServer blocks until listen fails or ctx is cancelled, then drains
// in-flight requests.
func runServer(ctx context.Context, server *http.Server, listen func() error) error {
	errCh := make(chan error, 1)
	go func() {
		if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logrus.Info("shutting down server")
		return server.Shutdown(shutdownCtx)
	}
}

// sendHeartbeat reports liveness to PostHog until ctx is done.
func sendHeartbeat(ctx context.Context, client posthog.Client, heartbeatID string) {
	ticker := time.NewTicker(heartbeatInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := client.Enqueue(posthog.Capture{
					DistinctId: heartbeatID,
					Event:      "server_heartbeat",
					Properties: map[string]interface{}{
						"timestamp": time.Now().UTC(),
					},
				}); err != nil {
					logrus.Warnf("failed to send heartbeat: %v", err)
				}
			}
		}
	}()
}

func initializePostHog(ctx context.Context, key string) (posthog.Client, error) {
	client, err := posthog.NewWithConfig(key, posthog.Config{Endpoint: "https://us.i.posthog.com"})
	if err != nil {
		return nil, err
	}
	sendHeartbeat(ctx, client, uuid.New().String())
	return client, nil
}

// initializeObservability starts tracing and, when a key is configured, the
// telemetry heartbeat. Both are off unless telemetry is enabled.
func initializeObservability(ctx context.Context, cfg *config.Configuration) (posthog.Client, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.EnableTelemetry {
		return nil, noop, nil
	}

	shutdown, err := traces.SetupOTelSDK(ctx, cfg.ProjectName)
	if err != nil {
		return nil, nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	if cfg.TelemetryKey == "" {
		return nil, shutdown, nil
	}

	phClient, err := initializePostHog(ctx, cfg.TelemetryKey)
	if err != nil {
		logrus.Warnf("telemetry heartbeat disabled: %v", err)
		return nil, shutdown, nil
	}
	return phClient, shutdown, nil
}

func startServer(ctx context.Context, router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(ctx, router, cfg)
	}
	logrus.Infof("starting server on http://localhost:%s", cfg.Port)
	server := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	return runServer(ctx, server, server.ListenAndServe)
}

func serverCommands(b *pledgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the pledge API server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			phClient, shutdown, err := initializeObservability(ctx, b.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logrus.Errorf("error during telemetry shutdown: %v", err)
				}
			}()
			if phClient != nil {
				defer phClient.Close()
			}
			defer b.queue.Close()

			router := api.NewAPI(b.pledge, b.queue, b.cnf).Router()
			if err := startServer(ctx, router, b.cnf.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
