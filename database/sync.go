package database

import (
	"context"
	"database/sql"

	"go.opentelemetry.io/otel"

	"github.com/fablehq/fable/internal/apierror"
	"github.com/fablehq/fable/model"
)

// UpsertSyncRecord writes the full sync record for an author. Every
// reconciliation attempt replaces the whole row, so the record always
// describes the most recent attempt.
func (d Datasource) UpsertSyncRecord(ctx context.Context, record *model.SyncRecord) error {
	ctx, span := otel.Tracer("SyncRecord").Start(ctx, "Upserting sync record in db")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO sync_records (author_id, status, last_synced_at, error_message, retry_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (author_id) DO UPDATE SET
			status = EXCLUDED.status,
			last_synced_at = EXCLUDED.last_synced_at,
			error_message = EXCLUDED.error_message,
			retry_count = EXCLUDED.retry_count
	`, record.AuthorID, record.Status, record.LastSyncedAt, record.ErrorMessage, record.RetryCount)

	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert sync record", err)
	}
	return nil
}

// GetSyncRecord retrieves an author's sync record. A missing record is not
// an error; callers get nil and decide what an absent record means.
func (d Datasource) GetSyncRecord(ctx context.Context, authorID string) (*model.SyncRecord, error) {
	ctx, span := otel.Tracer("SyncRecord").Start(ctx, "Fetching sync record from db")
	defer span.End()

	record := model.SyncRecord{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT author_id, status, last_synced_at, error_message, retry_count
		FROM sync_records
		WHERE author_id = $1
	`, authorID).Scan(
		&record.AuthorID, &record.Status, &record.LastSyncedAt, &record.ErrorMessage, &record.RetryCount,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve sync record", err)
	}

	return &record, nil
}
