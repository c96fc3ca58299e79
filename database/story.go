package database

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/fablehq/fable/internal/apierror"
	"github.com/fablehq/fable/model"
)

// UpsertStory inserts a cached story or refreshes the existing row. The
// conflict target is the ledger id, so re-syncing the same entity always
// lands on the same row.
func (d Datasource) UpsertStory(ctx context.Context, story *model.Story) error {
	ctx, span := otel.Tracer("Story").Start(ctx, "Upserting story in db")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO stories (story_id, author_id, title, description, content_cid, cover_cid, chapter_count, created_at, last_update, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (story_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			content_cid = EXCLUDED.content_cid,
			cover_cid = EXCLUDED.cover_cid,
			chapter_count = EXCLUDED.chapter_count,
			last_update = EXCLUDED.last_update,
			synced_at = NOW()
	`, story.StoryID, story.AuthorID, story.Title, story.Description, story.ContentCID,
		story.CoverCID, story.ChapterCount, story.CreatedAt, story.LastUpdate)

	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert story", err)
	}
	return nil
}

// GetStory retrieves a cached story by its ledger id.
func (d Datasource) GetStory(ctx context.Context, storyID uint64) (*model.Story, error) {
	ctx, span := otel.Tracer("Story").Start(ctx, "Fetching story from db")
	defer span.End()

	story := model.Story{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT story_id, author_id, title, description, content_cid, cover_cid, chapter_count, created_at, last_update, synced_at
		FROM stories
		WHERE story_id = $1
	`, storyID).Scan(
		&story.StoryID, &story.AuthorID, &story.Title, &story.Description, &story.ContentCID,
		&story.CoverCID, &story.ChapterCount, &story.CreatedAt, &story.LastUpdate, &story.SyncedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Story not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve story", err)
	}

	return &story, nil
}

// GetStoriesByAuthor retrieves all cached stories for an author, newest
// first.
func (d Datasource) GetStoriesByAuthor(ctx context.Context, authorID string) ([]model.Story, error) {
	ctx, span := otel.Tracer("Story").Start(ctx, "Fetching stories by author from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT story_id, author_id, title, description, content_cid, cover_cid, chapter_count, created_at, last_update, synced_at
		FROM stories
		WHERE author_id = $1
		ORDER BY last_update DESC
	`, authorID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stories", err)
	}
	defer rows.Close()

	stories := []model.Story{}

	for rows.Next() {
		story := model.Story{}
		err = rows.Scan(
			&story.StoryID, &story.AuthorID, &story.Title, &story.Description, &story.ContentCID,
			&story.CoverCID, &story.ChapterCount, &story.CreatedAt, &story.LastUpdate, &story.SyncedAt,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan story data", err)
		}

		stories = append(stories, story)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over stories", err)
	}

	return stories, nil
}

// DeleteStoriesNotIn removes cached stories for an author whose ledger ids
// are no longer listed on chain. An empty id list clears the author's cache.
func (d Datasource) DeleteStoriesNotIn(ctx context.Context, authorID string, storyIDs []uint64) (int64, error) {
	ctx, span := otel.Tracer("Story").Start(ctx, "Pruning stale stories from db")
	defer span.End()

	ids := make([]int64, 0, len(storyIDs))
	for _, id := range storyIDs {
		ids = append(ids, int64(id))
	}

	result, err := d.Conn.ExecContext(ctx, `
		DELETE FROM stories
		WHERE author_id = $1 AND NOT (story_id = ANY($2))
	`, authorID, pq.Array(ids))
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to prune stale stories", err)
	}

	return result.RowsAffected()
}
