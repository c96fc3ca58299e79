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
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablehq/fable/config"
)

func TestSyncTaskOptions(t *testing.T) {
	cfg := &config.Configuration{
		Queue: config.QueueConfig{SyncQueue: "new:sync"},
	}

	byType := map[asynq.OptionType]interface{}{}
	for _, opt := range syncTaskOptions(cfg, "athr_123") {
		byType[opt.Type()] = opt.Value()
	}

	assert.Equal(t, "sync_athr_123", byType[asynq.TaskIDOpt], "duplicate triggers for one author must collapse onto one task")
	assert.Equal(t, "new:sync", byType[asynq.QueueOpt])

	maxRetry, ok := byType[asynq.MaxRetryOpt]
	require.True(t, ok, "sync tasks must not use the default retry policy")
	assert.Equal(t, 0, maxRetry, "a failed sync is retried only by a new trigger")
}
