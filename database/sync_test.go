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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/fablehq/fable/model"
)

func TestUpsertSyncRecord_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	now := time.Now()
	record := &model.SyncRecord{
		AuthorID:     "athr_123",
		Status:       model.StatusCompleted,
		LastSyncedAt: &now,
		RetryCount:   1,
	}

	mock.ExpectExec("INSERT INTO sync_records").
		WithArgs(record.AuthorID, record.Status, record.LastSyncedAt, record.ErrorMessage, record.RetryCount).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.UpsertSyncRecord(context.Background(), record)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSyncRecord_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	errMsg := "chain unreachable"
	rows := sqlmock.NewRows([]string{"author_id", "status", "last_synced_at", "error_message", "retry_count"}).
		AddRow("athr_123", model.StatusFailed, time.Now(), errMsg, 3)

	mock.ExpectQuery("SELECT author_id, status, last_synced_at, error_message, retry_count FROM sync_records").
		WithArgs("athr_123").
		WillReturnRows(rows)

	record, err := ds.GetSyncRecord(context.Background(), "athr_123")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusFailed, record.Status)
	assert.Equal(t, errMsg, *record.ErrorMessage)
	assert.Equal(t, 3, record.RetryCount)
}

func TestGetSyncRecord_Absent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	rows := sqlmock.NewRows([]string{"author_id", "status", "last_synced_at", "error_message", "retry_count"})

	mock.ExpectQuery("SELECT author_id, status, last_synced_at, error_message, retry_count FROM sync_records").
		WithArgs("athr_never_synced").
		WillReturnRows(rows)

	record, err := ds.GetSyncRecord(context.Background(), "athr_never_synced")
	assert.NoError(t, err)
	assert.Nil(t, record, "an author that has never synced has no record")
}
