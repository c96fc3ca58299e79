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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fablehq/fable/model"
)

// contentCacheTTL bounds how long story content stays cached. Content is
// addressed by CID and never changes, so the TTL only limits memory.
const contentCacheTTL = 24 * time.Hour

// StoryListing is what the read path returns: whatever is cached right now
// plus the sync status, so clients can tell fresh data from stale.
type StoryListing struct {
	Stories    []model.Story `json:"stories"`
	Total      int           `json:"total"`
	SyncStatus string        `json:"sync_status"`
	Message    string        `json:"message,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// GetStoriesForAuthor returns the cached stories for an author together
// with the author's sync status. It never blocks on the ledger or the
// content store; a sync that has not happened yet simply means an empty
// list with a PENDING status. Any status other than COMPLETED also kicks
// off a background sync, so reads double as a freshness signal.
func (f *Fable) GetStoriesForAuthor(ctx context.Context, authorID string) (*StoryListing, error) {
	record, err := f.GetSyncRecord(ctx, authorID)
	if err != nil {
		return nil, err
	}

	if record.Status != model.StatusCompleted {
		f.triggerSyncInBackground(authorID)
	}

	stories, err := f.datasource.GetStoriesByAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}

	listing := &StoryListing{
		Stories:    stories,
		Total:      len(stories),
		SyncStatus: record.Status,
	}

	switch record.Status {
	case model.StatusPending:
		listing.Message = "Sync has not run for this author yet"
	case model.StatusSyncing:
		listing.Message = "Sync in progress, results may be incomplete"
	case model.StatusFailed:
		listing.Message = "Last sync failed, showing cached data"
		if record.ErrorMessage != nil {
			listing.Error = *record.ErrorMessage
		}
	}

	return listing, nil
}

// triggerSyncInBackground fires TriggerSync without making the caller
// wait. The caller already has its answer, so a failure to even start the
// sync is only logged. Repeated reads cannot stampede: runs for one author
// coalesce in the single-flight group and on the queue's task id.
func (f *Fable) triggerSyncInBackground(authorID string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.Errorf("background sync trigger for author %s panicked: %v", authorID, r)
			}
		}()
		if _, err := f.TriggerSync(context.Background(), authorID); err != nil {
			logrus.Warnf("background sync trigger for author %s failed: %v", authorID, err)
		}
	}()
}

// GetStory returns a cached story and, when withContent is set, its content
// payload from the content-addressed store. Content reads go through the
// cache first; a miss fetches through the pinning client and backfills the
// cache.
func (f *Fable) GetStory(ctx context.Context, storyID uint64, withContent bool) (*model.Story, *model.StoryContent, error) {
	story, err := f.datasource.GetStory(ctx, storyID)
	if err != nil {
		return nil, nil, err
	}
	if !withContent || story.ContentCID == "" {
		return story, nil, nil
	}

	content, err := f.fetchContent(ctx, story.ContentCID)
	if err != nil {
		return nil, nil, err
	}
	return story, content, nil
}

// fetchContent loads the payload at cid, preferring the cache. Payloads
// that do not parse as story content are kept anyway: availability beats
// strict validation here, so the raw text is folded into a degraded shape
// instead of being rejected.
func (f *Fable) fetchContent(ctx context.Context, cid string) (*model.StoryContent, error) {
	cacheKey := fmt.Sprintf("content:%s", cid)

	if f.cache != nil {
		var cached model.StoryContent
		if err := f.cache.Get(ctx, cacheKey, &cached); err == nil && (cached.Title != "" || cached.Description != "" || len(cached.Chapters) > 0) {
			return &cached, nil
		}
	}

	raw, err := f.store.Get(ctx, cid)
	if err != nil {
		return nil, err
	}

	var content model.StoryContent
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		logrus.Warnf("content %s is not structured story content, synthesizing preview", cid)
		content = *model.SynthesizeContent(raw)
	}

	if f.cache != nil {
		if err := f.cache.Set(ctx, cacheKey, content, contentCacheTTL); err != nil {
			logrus.Warnf("failed to cache content %s: %v", cid, err)
		}
	}

	return &content, nil
}

// PinStoryContent pins a structured story payload and returns its content
// address. This is what publishing tooling calls before minting the story
// on the ledger.
func (f *Fable) PinStoryContent(ctx context.Context, name string, content *model.StoryContent) (string, error) {
	return f.store.PutJSON(ctx, name, content)
}

// PinText pins a plain text payload and returns its content address.
func (f *Fable) PinText(ctx context.Context, name, content string) (string, error) {
	return f.store.PutText(ctx, name, content)
}

// PinCover pins an opaque binary payload, such as cover art, and returns
// its content address.
func (f *Fable) PinCover(ctx context.Context, name string, data []byte) (string, error) {
	return f.store.PutFile(ctx, name, data)
}
