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
	"errors"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fablehq/fable/config"
	"github.com/fablehq/fable/database/mocks"
	"github.com/fablehq/fable/internal/gatekeeper"
	"github.com/fablehq/fable/internal/pinning"
	"github.com/fablehq/fable/model"
)

func cachedStory(id uint64) model.Story {
	return model.Story{
		StoryID:    id,
		AuthorID:   "athr_123",
		Title:      "The Long Road",
		ContentCID: "QmContent",
		LastUpdate: time.Now(),
	}
}

func TestGetStoriesForAuthorReportsFailedSync(t *testing.T) {
	ds := new(mocks.MockDataSource)
	gw := new(MockGateway)
	f := newTestFable(ds, gw)

	failure := "no stories found on ledger for wallet 0xabc123"
	ds.On("GetAuthor", mock.Anything, "athr_123").Return(testAuthor(), nil)
	ds.On("GetSyncRecord", mock.Anything, "athr_123").Return(&model.SyncRecord{
		AuthorID:     "athr_123",
		Status:       model.StatusFailed,
		ErrorMessage: &failure,
		RetryCount:   1,
	}, nil)
	ds.On("GetStoriesByAuthor", mock.Anything, "athr_123").Return([]model.Story{cachedStory(7)}, nil)
	// a non-COMPLETED status kicks off a background retry
	ds.On("UpsertSyncRecord", mock.Anything, mock.Anything).Return(nil).Maybe()
	gw.On("ListStoriesByAuthor", mock.Anything, mock.Anything).Return(nil, errors.New("ledger unavailable")).Maybe()

	listing, err := f.GetStoriesForAuthor(context.Background(), "athr_123")
	require.NoError(t, err, "a failed sync must not fail the read path")
	assert.Equal(t, model.StatusFailed, listing.SyncStatus)
	assert.Equal(t, 1, listing.Total)
	assert.Equal(t, failure, listing.Error)
	assert.NotEmpty(t, listing.Message)
}

func TestGetStoriesForAuthorBeforeFirstSync(t *testing.T) {
	ds := new(mocks.MockDataSource)
	gw := new(MockGateway)
	f := newTestFable(ds, gw)

	ds.On("GetAuthor", mock.Anything, "athr_123").Return(testAuthor(), nil)
	ds.On("GetSyncRecord", mock.Anything, "athr_123").Return(nil, nil)
	ds.On("GetStoriesByAuthor", mock.Anything, "athr_123").Return([]model.Story{}, nil)
	ds.On("UpsertSyncRecord", mock.Anything, mock.Anything).Return(nil).Maybe()
	gw.On("ListStoriesByAuthor", mock.Anything, mock.Anything).Return(nil, errors.New("ledger unavailable")).Maybe()

	listing, err := f.GetStoriesForAuthor(context.Background(), "athr_123")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, listing.SyncStatus)
	assert.Zero(t, listing.Total)
	assert.NotEmpty(t, listing.Message)
}

func TestGetStoriesForAuthorTriggersBackgroundSync(t *testing.T) {
	ds := new(mocks.MockDataSource)
	gw := new(MockGateway)
	f := newTestFable(ds, gw)

	triggered := make(chan struct{})
	ds.On("GetAuthor", mock.Anything, "athr_123").Return(testAuthor(), nil)
	ds.On("GetSyncRecord", mock.Anything, "athr_123").Return(nil, nil)
	ds.On("GetStoriesByAuthor", mock.Anything, "athr_123").Return([]model.Story{}, nil)
	ds.On("UpsertSyncRecord", mock.Anything, matchSyncStatus(model.StatusSyncing)).Return(nil).Run(func(mock.Arguments) {
		close(triggered)
	}).Once()
	ds.On("UpsertSyncRecord", mock.Anything, mock.Anything).Return(nil).Maybe()
	gw.On("ListStoriesByAuthor", mock.Anything, mock.Anything).Return(nil, errors.New("ledger unavailable")).Maybe()

	_, err := f.GetStoriesForAuthor(context.Background(), "athr_123")
	require.NoError(t, err)

	select {
	case <-triggered:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a read on a never-synced author to start a sync")
	}
}

func TestGetStoryWithoutContent(t *testing.T) {
	ds := new(mocks.MockDataSource)
	gw := new(MockGateway)
	f := newTestFable(ds, gw)

	story := cachedStory(7)
	ds.On("GetStory", mock.Anything, uint64(7)).Return(&story, nil)

	got, content, err := f.GetStory(context.Background(), 7, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.StoryID)
	assert.Nil(t, content)
}

func withStoreBackedFable(t *testing.T, ds *mocks.MockDataSource, gw *MockGateway) *Fable {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	f := newTestFable(ds, gw)
	pool := gatekeeper.NewPool([]config.PinningCredential{
		{Name: "primary", APIKey: "key", APISecret: "secret", JWT: "jwt"},
	}, time.Millisecond)
	scheduler := gatekeeper.NewScheduler(time.Millisecond)
	t.Cleanup(scheduler.Close)
	f.scheduler = scheduler
	f.store = pinning.NewClient(config.PinningConfig{
		PinURL:            "https://pin.test/pinning",
		GatewayURL:        "https://gateway.test/ipfs",
		RequestTimeoutSec: 5,
	}, pool, scheduler)
	return f
}

func TestGetStoryWithStructuredContent(t *testing.T) {
	ds := new(mocks.MockDataSource)
	gw := new(MockGateway)
	f := withStoreBackedFable(t, ds, gw)

	story := cachedStory(7)
	ds.On("GetStory", mock.Anything, uint64(7)).Return(&story, nil)

	httpmock.RegisterResponder("GET", "https://gateway.test/ipfs/QmContent",
		httpmock.NewStringResponder(200, `{"title":"The Long Road","description":"A journey","chapters":[{"title":"One","body":"It begins."}]}`))

	got, content, err := f.GetStory(context.Background(), 7, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.StoryID)
	require.NotNil(t, content)
	assert.Equal(t, "The Long Road", content.Title)
	assert.Len(t, content.Chapters, 1)
}

func TestGetStorySynthesizesUnstructuredContent(t *testing.T) {
	ds := new(mocks.MockDataSource)
	gw := new(MockGateway)
	f := withStoreBackedFable(t, ds, gw)

	story := cachedStory(7)
	ds.On("GetStory", mock.Anything, uint64(7)).Return(&story, nil)

	httpmock.RegisterResponder("GET", "https://gateway.test/ipfs/QmContent",
		httpmock.NewStringResponder(200, "just a plain scribble, not JSON at all"))

	_, content, err := f.GetStory(context.Background(), 7, true)
	require.NoError(t, err, "unparseable content is kept, not rejected")
	require.NotNil(t, content)
	assert.Equal(t, "just a plain scribble, not JSON at all", content.Description)
	assert.Empty(t, content.Chapters)
}

func TestPinStoryContent(t *testing.T) {
	ds := new(mocks.MockDataSource)
	gw := new(MockGateway)
	f := withStoreBackedFable(t, ds, gw)

	httpmock.RegisterResponder("POST", "https://pin.test/pinning/pinJSONToIPFS",
		httpmock.NewJsonResponderOrPanic(200, map[string]string{"IpfsHash": "QmNewStory"}))

	cid, err := f.PinStoryContent(context.Background(), "the-long-road", &model.StoryContent{
		Title:       "The Long Road",
		Description: "A journey",
	})
	require.NoError(t, err)
	assert.Equal(t, "QmNewStory", cid)
}
