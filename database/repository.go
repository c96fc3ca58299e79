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

package database

import (
	"context"

	"github.com/fablehq/fable/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	author     // Interface for author-related operations
	story      // Interface for story cache operations
	syncRecord // Interface for sync record operations
}

// author defines methods for handling authors.
type author interface {
	CreateAuthor(ctx context.Context, author model.Author) (model.Author, error)       // Creates a new author
	GetAuthor(ctx context.Context, authorID string) (*model.Author, error)             // Retrieves an author by ID
	GetAuthorByWallet(ctx context.Context, walletAddress string) (*model.Author, error) // Retrieves an author by wallet address
	GetAllAuthors(ctx context.Context, limit, offset int) ([]model.Author, error)      // Retrieves all authors
}

// story defines methods for the local story cache.
type story interface {
	UpsertStory(ctx context.Context, story *model.Story) error                              // Inserts or refreshes a cached story by its ledger id
	GetStory(ctx context.Context, storyID uint64) (*model.Story, error)                     // Retrieves a cached story by ledger id
	GetStoriesByAuthor(ctx context.Context, authorID string) ([]model.Story, error)         // Retrieves all cached stories for an author
	DeleteStoriesNotIn(ctx context.Context, authorID string, storyIDs []uint64) (int64, error) // Removes cached stories the ledger no longer lists
}

// syncRecord defines methods for per-author sync status records.
type syncRecord interface {
	UpsertSyncRecord(ctx context.Context, record *model.SyncRecord) error      // Writes the full sync record for an author
	GetSyncRecord(ctx context.Context, authorID string) (*model.SyncRecord, error) // Retrieves an author's sync record, nil when absent
}
