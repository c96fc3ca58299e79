/*
Copyright 2024 Fable Authors.

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
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/fablehq/fable/config"
	"github.com/fablehq/fable/internal/notification"
	redis_db "github.com/fablehq/fable/internal/redis-db"
)

// processSync handles a queued author sync task, tracing its execution.
func (b *fableInstance) processSync(ctx context.Context, task *asynq.Task) error {
	ctx, span := otel.Tracer("fable.worker").Start(ctx, "ProcessSyncTask")
	defer span.End()

	if err := b.fable.ProcessSyncTask(ctx, task); err != nil {
		span.RecordError(err)
		notification.NotifyError(err)
		return err
	}
	return nil
}

// startWorkers launches the asynq worker server that drains the sync queue,
// plus the asynqmon dashboard for inspecting it.
func startWorkers(b *fableInstance) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	opts, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return err
	}

	queueOptions := asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}

	srv := asynq.NewServer(
		queueOptions,
		asynq.Config{
			Concurrency: conf.Queue.MaxSyncWorkers,
			Queues: map[string]int{
				conf.Queue.SyncQueue: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(conf.Queue.SyncQueue, b.processSync)

	mon := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: queueOptions,
	})

	go func() {
		monMux := http.NewServeMux()
		monMux.Handle(mon.RootPath()+"/", mon)
		log.Printf("starting queue monitoring on http://localhost:%s/monitoring", conf.Queue.MonitoringPort)
		if err := http.ListenAndServe(":"+conf.Queue.MonitoringPort, monMux); err != nil {
			log.Printf("queue monitoring stopped: %v", err)
		}
	}()

	if err := srv.Run(mux); err != nil {
		notification.NotifyError(err)
		log.Fatal("error running worker server", err)
	}
	return nil
}

// workerCommands returns the Cobra command that starts the background
// sync workers.
func workerCommands(b *fableInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start fable workers",
		Run: func(cmd *cobra.Command, args []string) {
			if err := startWorkers(b); err != nil {
				log.Fatal(err)
			}
		},
	}
	return cmd
}
