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

	"github.com/sirupsen/logrus"

	"github.com/fablehq/fable/model"
)

// CreateAuthor registers a new author and seeds a PENDING sync record so
// the read path has a status to report before the first sync runs.
func (f *Fable) CreateAuthor(ctx context.Context, author model.Author) (model.Author, error) {
	created, err := f.datasource.CreateAuthor(ctx, author)
	if err != nil {
		return model.Author{}, err
	}

	if err := f.datasource.UpsertSyncRecord(ctx, &model.SyncRecord{
		AuthorID: created.AuthorID,
		Status:   model.StatusPending,
	}); err != nil {
		// The author exists; the read path synthesizes PENDING when the
		// record is missing, so this is not fatal.
		logrus.Warnf("failed to seed sync record for author %s: %v", created.AuthorID, err)
	}

	return created, nil
}

// GetAuthor retrieves an author by id.
func (f *Fable) GetAuthor(ctx context.Context, authorID string) (*model.Author, error) {
	return f.datasource.GetAuthor(ctx, authorID)
}

// GetAuthorByWallet retrieves an author by their ledger wallet address.
func (f *Fable) GetAuthorByWallet(ctx context.Context, walletAddress string) (*model.Author, error) {
	return f.datasource.GetAuthorByWallet(ctx, walletAddress)
}

// GetAllAuthors retrieves authors with pagination.
func (f *Fable) GetAllAuthors(ctx context.Context, limit, offset int) ([]model.Author, error) {
	return f.datasource.GetAllAuthors(ctx, limit, offset)
}
