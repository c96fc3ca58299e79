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
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/fablehq/fable/config"
	"github.com/fablehq/fable/database"
	"github.com/fablehq/fable/internal/cache"
	"github.com/fablehq/fable/internal/chain"
	"github.com/fablehq/fable/internal/gatekeeper"
	"github.com/fablehq/fable/internal/pinning"
)

// Fable represents the main struct for the Fable application. It owns the
// datasource, the pinning client with its credential pool and request
// scheduler, the chain gateway, and the sync queue.
type Fable struct {
	queue      *Queue
	datasource database.IDataSource
	store      *pinning.Client
	chain      chain.Gateway
	cache      cache.Cache
	scheduler  *gatekeeper.Scheduler

	// sfGroup collapses concurrent syncs for the same author into one
	// run; syncSlots bounds how many authors sync at once.
	sfGroup   singleflight.Group
	syncSlots chan struct{}
}

// NewFable initializes a new instance of Fable with the provided database
// datasource. It fetches the configuration and wires up the pinning client,
// chain gateway, content cache, and sync queue. Redis-backed pieces are
// optional: without Redis the sync queue and content cache are skipped and
// sync jobs run in-process.
//
// Parameters:
// - db database.IDataSource: The datasource for database operations.
//
// Returns:
// - *Fable: A pointer to the newly created Fable instance.
// - error: An error if any of the initialization steps fail.
func NewFable(db database.IDataSource) (*Fable, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	interval := time.Duration(configuration.Pinning.MinRequestIntervalMs) * time.Millisecond
	pool := gatekeeper.NewPool(configuration.Pinning.Credentials, interval)
	scheduler := gatekeeper.NewScheduler(interval)
	store := pinning.NewClient(configuration.Pinning, pool, scheduler)

	gateway := chain.NewGateway(configuration.Chain)

	var queue *Queue
	var contentCache cache.Cache
	if configuration.Redis.Dns != "" {
		queue = NewQueue(configuration)
		contentCache, err = cache.NewCache()
		if err != nil {
			logrus.Warnf("content cache unavailable, reads will hit the store directly: %v", err)
			contentCache = nil
		}
	}

	newFable := &Fable{
		queue:      queue,
		datasource: db,
		store:      store,
		chain:      gateway,
		cache:      contentCache,
		scheduler:  scheduler,
		syncSlots:  make(chan struct{}, configuration.Queue.MaxSyncWorkers),
	}

	return newFable, nil
}

// Close releases the background resources held by the instance: the request
// scheduler and the queue client.
func (f *Fable) Close() error {
	if f.scheduler != nil {
		f.scheduler.Close()
	}
	if f.queue != nil && f.queue.Client != nil {
		return f.queue.Client.Close()
	}
	return nil
}
