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
package model

import "time"

// Story is a cached mirror of a ledger story entry. StoryID is the
// ledger-assigned token id; a story minted as id N must never be cached
// under any other id. The content itself stays in the content-addressed
// store and is fetched lazily through the pinning client.
type Story struct {
	StoryID      uint64     `json:"story_id"`
	AuthorID     string     `json:"author_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	ContentCID   string     `json:"content_cid"`
	CoverCID     string     `json:"cover_cid"`
	ChapterCount int        `json:"chapter_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUpdate   time.Time  `json:"last_update"`
	SyncedAt     *time.Time `json:"synced_at,omitempty"`
}

// Chapter is one installment of a serialized story.
type Chapter struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// StoryContent is the structured payload stored at a story's content
// address.
type StoryContent struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Chapters    []Chapter `json:"chapters"`
}

// Author is a local identity that maps a platform account to a ledger
// wallet address.
type Author struct {
	ID            int64                  `json:"-"`
	AuthorID      string                 `json:"author_id"`
	Name          string                 `json:"name"`
	PenName       string                 `json:"pen_name"`
	WalletAddress string                 `json:"wallet_address"`
	CreatedAt     time.Time              `json:"created_at"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

// SyncRecord tracks the outcome of the last reconciliation attempt for one
// author. There is exactly one record per author and every attempt writes
// the full row.
type SyncRecord struct {
	AuthorID     string     `json:"author_id"`
	Status       string     `json:"status"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
}
