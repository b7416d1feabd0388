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

	"github.com/blnkfinance/pledge"
	"github.com/blnkfinance/pledge/config"
	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// initializeQueues weights reconciliation above webhook delivery.
func initializeQueues(cfg *config.Configuration) map[string]int {
	return map[string]int{
		cfg.Queue.ReconcileQueue: 3,
		cfg.Queue.WebhookQueue:   1,
	}
}

func initializeWorkerServer(conf *config.Configuration) (*asynq.Server, error) {
	redisOpt, err := pledge.RedisClientOpt(conf)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: conf.Queue.Concurrency,
		Queues:      initializeQueues(conf),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logrus.WithFields(logrus.Fields{
				"queue":   task.Type(),
				"retried": retried,
				"max":     maxRetry,
			}).Errorf("task failed: %v", err)
		}),
	}), nil
}

func initializeTaskHandlers(b *pledgeInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(b.cnf.Queue.ReconcileQueue, b.pledge.ProcessSyncTask)
	mux.HandleFunc(b.cnf.Queue.WebhookQueue, b.pledge.ProcessWebhook)
}

// startMonitoring serves asynqmon on the monitoring port.
func startMonitoring(conf *config.Configuration) error {
	redisOpt, err := pledge.RedisClientOpt(conf)
	if err != nil {
		return err
	}
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: redisOpt,
	})

	go func() {
		monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
		logrus.Infof("asynqmon listening on %s/monitoring", monitoringAddr)
		if err := http.ListenAndServe(monitoringAddr, h); err != nil {
			logrus.Errorf("could not start asynqmon server: %v", err)
		}
	}()
	return nil
}

// workerCommands starts the background reconciliation and webhook workers.
func workerCommands(b *pledgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start pledge workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			phClient, shutdown, err := initializeObservability(ctx, b.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					logrus.Errorf("error during telemetry shutdown: %v", err)
				}
			}()
			if phClient != nil {
				defer phClient.Close()
			}

			srv, err := initializeWorkerServer(b.cnf)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			if err := startMonitoring(b.cnf); err != nil {
				log.Fatal(err)
			}

			// Run blocks until SIGTERM or SIGINT.
			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
