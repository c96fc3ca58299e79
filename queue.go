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

package fable

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/fablehq/fable/config"
	redis_db "github.com/fablehq/fable/internal/redis-db"
)

// Queue represents a queue for handling sync tasks.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// SyncTaskPayload represents the payload for an author sync task.
type SyncTaskPayload struct {
	AuthorID string `json:"author_id"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// queueSync enqueues a sync task for an author. The task id is derived from
// the author id, so a sync that is already queued is not queued again.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - authorID string: The ID of the author to sync.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) queueSync(ctx context.Context, authorID string) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(SyncTaskPayload{AuthorID: authorID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(cfg.Queue.SyncQueue, payload, syncTaskOptions(cfg, authorID)...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if err == asynq.ErrTaskIDConflict {
			log.Printf(" [*] Sync for %s already queued", authorID)
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued sync for author: %s", authorID)
	return nil
}

// syncTaskOptions builds the enqueue options for an author sync task. The
// task id derives from the author id so duplicate triggers collapse, and
// retries are disabled: a failed sync already wrote a FAILED record, and
// only a new trigger should start another attempt.
func syncTaskOptions(cfg *config.Configuration, authorID string) []asynq.Option {
	return []asynq.Option{
		asynq.TaskID(fmt.Sprintf("sync_%s", authorID)),
		asynq.Queue(cfg.Queue.SyncQueue),
		asynq.MaxRetry(0),
	}
}
