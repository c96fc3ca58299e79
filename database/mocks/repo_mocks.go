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
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fablehq/fable/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Author methods

func (m *MockDataSource) CreateAuthor(ctx context.Context, author model.Author) (model.Author, error) {
	args := m.Called(ctx, author)
	return args.Get(0).(model.Author), args.Error(1)
}

func (m *MockDataSource) GetAuthor(ctx context.Context, authorID string) (*model.Author, error) {
	args := m.Called(ctx, authorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Author), args.Error(1)
}

func (m *MockDataSource) GetAuthorByWallet(ctx context.Context, walletAddress string) (*model.Author, error) {
	args := m.Called(ctx, walletAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Author), args.Error(1)
}

func (m *MockDataSource) GetAllAuthors(ctx context.Context, limit, offset int) ([]model.Author, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Author), args.Error(1)
}

// Story methods

func (m *MockDataSource) UpsertStory(ctx context.Context, story *model.Story) error {
	args := m.Called(ctx, story)
	return args.Error(0)
}

func (m *MockDataSource) GetStory(ctx context.Context, storyID uint64) (*model.Story, error) {
	args := m.Called(ctx, storyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Story), args.Error(1)
}

func (m *MockDataSource) GetStoriesByAuthor(ctx context.Context, authorID string) ([]model.Story, error) {
	args := m.Called(ctx, authorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Story), args.Error(1)
}

func (m *MockDataSource) DeleteStoriesNotIn(ctx context.Context, authorID string, storyIDs []uint64) (int64, error) {
	args := m.Called(ctx, authorID, storyIDs)
	return args.Get(0).(int64), args.Error(1)
}

// Sync record methods

func (m *MockDataSource) UpsertSyncRecord(ctx context.Context, record *model.SyncRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDataSource) GetSyncRecord(ctx context.Context, authorID string) (*model.SyncRecord, error) {
	args := m.Called(ctx, authorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SyncRecord), args.Error(1)
}
