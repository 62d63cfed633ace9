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
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/namecard/api"
	"github.com/blnkfinance/namecard/config"
	trace "github.com/blnkfinance/namecard/internal/traces"
)

/*
tlsServer builds an HTTPS server with certificates managed by CertMagic.
If no domain is specified, the certificate is issued for localhost.
*/
func tlsServer(ctx context.Context, r *gin.Engine, conf config.ServerConfig) (*http.Server, error) {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "certmagic"}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(ctx, domains); err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}, nil
}

func initializeTracing(ctx context.Context, cfg *config.Configuration) (func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return func(context.Context) error { return nil }, nil
	}
	shutdown, err := trace.SetupOTelSDK(ctx, "NAMECARD")
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

// serve runs srv until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, useTLS bool) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

/*
serverCommands returns the command that starts the webhook and admin API.
With the in-process upload backend the server also performs uploads; with
the queue backend it only enqueues unless --with-workers is set.
*/
func serverCommands(n *namecardInstance) *cobra.Command {
	var withWorkers bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start namecard server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown, err := initializeTracing(ctx, n.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			a, err := buildApp(ctx, n.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer a.close()
			a.listenForTenantChanges(ctx)

			if a.queue == nil || withWorkers {
				if err := a.worker.Start(ctx); err != nil {
					log.Fatalf("could not start upload worker: %v", err)
				}
			}

			router := api.NewAPI(a.namecard, a.admin, a.worker, a.blocks).Router()
			srv := &http.Server{Addr: ":" + n.cnf.Server.Port, Handler: router}
			if n.cnf.Server.SSL {
				if srv, err = tlsServer(ctx, router, n.cnf.Server); err != nil {
					log.Fatal(err)
				}
			}

			logrus.WithField("port", n.cnf.Server.Port).Info("starting server")
			if err := serve(ctx, srv, n.cnf.Server.SSL); err != nil {
				logrus.WithError(err).Error("server stopped")
			}

			// Replies for webhooks already acknowledged still go out.
			a.namecard.Wait()
		},
	}
	cmd.Flags().BoolVar(&withWorkers, "with-workers", false, "consume the upload queue in this process")

	return cmd
}
