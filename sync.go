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
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fablehq/fable/internal/chain"
	"github.com/fablehq/fable/internal/notification"
	"github.com/fablehq/fable/model"
)

// TriggerSync marks an author as SYNCING and hands the reconciliation work
// to the background. It returns immediately with the new record; callers
// poll GetSyncRecord for the outcome. Triggering re-enters SYNCING from any
// state, including a stale SYNCING row left behind by a crashed run: actual
// coalescing of concurrent work is the queue's task id across processes and
// the single-flight group in process, never the stored status.
func (f *Fable) TriggerSync(ctx context.Context, authorID string) (*model.SyncRecord, error) {
	if _, err := f.datasource.GetAuthor(ctx, authorID); err != nil {
		return nil, err
	}

	previous, err := f.datasource.GetSyncRecord(ctx, authorID)
	if err != nil {
		return nil, err
	}

	record := &model.SyncRecord{
		AuthorID: authorID,
		Status:   model.StatusSyncing,
	}
	if previous != nil {
		record.LastSyncedAt = previous.LastSyncedAt
		record.RetryCount = previous.RetryCount
	}
	if err := f.datasource.UpsertSyncRecord(ctx, record); err != nil {
		return nil, err
	}

	if f.queue != nil {
		if err := f.queue.queueSync(ctx, authorID); err != nil {
			// roll the row back so the author is not stuck on SYNCING
			// with nothing in flight
			err = errors.Wrapf(err, "enqueueing sync for author %s", authorID)
			f.markSyncFailed(ctx, authorID, err)
			return nil, err
		}
	} else {
		f.launchSync(authorID)
	}

	return record, nil
}

// GetSyncRecord returns the author's sync record. An author that has never
// been synced has no row; the caller gets a synthesized PENDING record so
// the read path always has a status to report.
func (f *Fable) GetSyncRecord(ctx context.Context, authorID string) (*model.SyncRecord, error) {
	if _, err := f.datasource.GetAuthor(ctx, authorID); err != nil {
		return nil, err
	}

	record, err := f.datasource.GetSyncRecord(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		logrus.Warnf("no sync record for author %s, reporting PENDING", authorID)
		return &model.SyncRecord{AuthorID: authorID, Status: model.StatusPending}, nil
	}
	return record, nil
}

// ReconcileAuthor runs the reconciliation for one author. Concurrent calls
// for the same author collapse into a single run.
func (f *Fable) ReconcileAuthor(ctx context.Context, authorID string) error {
	_, err, _ := f.sfGroup.Do(authorID, func() (interface{}, error) {
		return nil, f.reconcile(ctx, authorID)
	})
	return err
}

// ProcessSyncTask is the asynq handler for queued sync tasks.
func (f *Fable) ProcessSyncTask(ctx context.Context, t *asynq.Task) error {
	var payload SyncTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return errors.Wrap(err, "decoding sync task payload")
	}
	return f.ReconcileAuthor(ctx, payload.AuthorID)
}

// launchSync runs the reconciliation in a supervised goroutine. A slot is
// taken from syncSlots so at most MaxSyncWorkers authors sync at once, and
// a panicking sync is recovered, reported, and recorded as FAILED instead
// of taking the process down.
func (f *Fable) launchSync(authorID string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := errors.Errorf("sync for author %s panicked: %v", authorID, r)
				notification.NotifyError(err)
				f.markSyncFailed(context.Background(), authorID, err)
			}
		}()

		f.syncSlots <- struct{}{}
		defer func() { <-f.syncSlots }()

		if err := f.ReconcileAuthor(context.Background(), authorID); err != nil {
			logrus.Errorf("sync for author %s failed: %v", authorID, err)
		}
	}()
}

// reconcile is the core engine. It lists the author's stories on the
// ledger, resolves each story's content through the store, refreshes the
// local cache entry, prunes entries the ledger no longer lists, and writes
// the outcome to the author's sync record. A single story that fails to
// fetch, on the ledger or in the content store, is skipped and logged; the
// batch keeps going and still counts as COMPLETED when anything synced.
func (f *Fable) reconcile(ctx context.Context, authorID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("reconciliation for author %s panicked: %v", authorID, r)
			notification.NotifyError(err)
			f.markSyncFailed(ctx, authorID, err)
		}
	}()

	author, err := f.datasource.GetAuthor(ctx, authorID)
	if err != nil {
		f.markSyncFailed(ctx, authorID, err)
		return err
	}

	storyIDs, err := f.chain.ListStoriesByAuthor(ctx, author.WalletAddress)
	if err != nil {
		err = errors.Wrapf(err, "listing stories for wallet %s", author.WalletAddress)
		notification.NotifyError(err)
		f.markSyncFailed(ctx, authorID, err)
		return err
	}
	if len(storyIDs) == 0 {
		err = errors.Errorf("no stories found on ledger for wallet %s", author.WalletAddress)
		f.markSyncFailed(ctx, authorID, err)
		return err
	}

	synced := 0
	for _, storyID := range storyIDs {
		record, err := f.chain.GetStory(ctx, storyID)
		if err != nil {
			logrus.Warnf("skipping story %d for author %s: %v", storyID, authorID, err)
			continue
		}

		story := storyFromChain(authorID, record)
		if record.ContentCID != "" {
			content, err := f.fetchContent(ctx, record.ContentCID)
			if err != nil {
				logrus.Warnf("skipping story %d for author %s: content %s unavailable: %v", storyID, authorID, record.ContentCID, err)
				continue
			}
			mergeContent(&story, content)
		}
		if story.Title == "" {
			logrus.Warnf("story %d for author %s has no title on ledger or in content, caching degraded entry", storyID, authorID)
		}
		if err := f.datasource.UpsertStory(ctx, &story); err != nil {
			logrus.Warnf("failed to cache story %d for author %s: %v", storyID, authorID, err)
			continue
		}
		synced++
	}

	if synced == 0 {
		err = errors.Errorf("all %d story fetches failed for author %s", len(storyIDs), authorID)
		notification.NotifyError(err)
		f.markSyncFailed(ctx, authorID, err)
		return err
	}

	if pruned, err := f.datasource.DeleteStoriesNotIn(ctx, authorID, storyIDs); err != nil {
		logrus.Warnf("failed to prune stale stories for author %s: %v", authorID, err)
	} else if pruned > 0 {
		logrus.Infof("pruned %d stale stories for author %s", pruned, authorID)
	}

	logrus.Infof("sync completed for author %s: %d of %d stories cached", authorID, synced, len(storyIDs))
	return f.markSyncCompleted(ctx, authorID)
}

// markSyncCompleted writes a COMPLETED record and resets the retry count.
func (f *Fable) markSyncCompleted(ctx context.Context, authorID string) error {
	now := time.Now()
	return f.datasource.UpsertSyncRecord(ctx, &model.SyncRecord{
		AuthorID:     authorID,
		Status:       model.StatusCompleted,
		LastSyncedAt: &now,
		RetryCount:   0,
	})
}

// markSyncFailed writes a FAILED record with the failure message and bumps
// the retry count. The previous successful sync time is preserved so the
// read path can still say how stale the cached data is.
func (f *Fable) markSyncFailed(ctx context.Context, authorID string, cause error) {
	record := &model.SyncRecord{
		AuthorID: authorID,
		Status:   model.StatusFailed,
	}

	previous, err := f.datasource.GetSyncRecord(ctx, authorID)
	if err != nil {
		logrus.Errorf("failed to load sync record for author %s: %v", authorID, err)
	}
	if previous != nil {
		record.LastSyncedAt = previous.LastSyncedAt
		record.RetryCount = previous.RetryCount
	}
	record.RetryCount++

	message := cause.Error()
	record.ErrorMessage = &message

	if err := f.datasource.UpsertSyncRecord(ctx, record); err != nil {
		logrus.Errorf("failed to record sync failure for author %s: %v", authorID, err)
	}
}

// mergeContent folds a resolved content payload into the cached row. The
// ledger wins on title and chapter count when it carries them; description
// only exists in the content.
func mergeContent(story *model.Story, content *model.StoryContent) {
	if story.Title == "" {
		story.Title = content.Title
	}
	story.Description = content.Description
	if story.ChapterCount == 0 {
		story.ChapterCount = len(content.Chapters)
	}
}

// storyFromChain maps a ledger story record onto the local cache model,
// keyed by the ledger-assigned id.
func storyFromChain(authorID string, record *chain.StoryRecord) model.Story {
	return model.Story{
		StoryID:      record.ID,
		AuthorID:     authorID,
		Title:        record.Title,
		ContentCID:   record.ContentCID,
		CoverCID:     record.CoverCID,
		ChapterCount: record.ChapterCount,
		CreatedAt:    record.CreatedAt,
		LastUpdate:   record.LastUpdate,
	}
}
