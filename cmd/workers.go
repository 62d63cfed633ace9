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
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// monitoringServer serves asynqmon for the upload queue.
func monitoringServer(conn asynq.RedisConnOpt, port string) *http.Server {
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: conn,
	})
	return &http.Server{Addr: fmt.Sprintf(":%s", port), Handler: h}
}

// workerCommands defines the "workers" command, which consumes the durable
// upload queue.
func workerCommands(n *namecardInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start namecard upload workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			shutdown, err := initializeTracing(ctx, n.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			a, err := buildApp(ctx, n.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer a.close()
			a.listenForTenantChanges(ctx)

			if a.queue == nil {
				log.Fatal("upload workers need the queue backend and a reachable redis")
			}

			mux := asynq.NewServeMux()
			a.queue.Register(mux)
			srv := asynq.NewServer(a.conn.QueueOpt(), a.queue.ServerConfig())

			monitor := monitoringServer(a.conn.QueueOpt(), n.cnf.Upload.MonitoringPort)
			go func() {
				log.Printf("Asynqmon server listening on %s/monitoring", monitor.Addr)
				if err := monitor.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			// Run blocks until SIGTERM or SIGINT.
			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
			_ = monitor.Close()
		},
	}

	return cmd
}
