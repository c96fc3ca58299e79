package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/fablehq/fable/internal/apierror"
	"github.com/fablehq/fable/model"
)

// CreateAuthor inserts a new author row and returns the author with its
// generated id and creation timestamp filled in.
func (d Datasource) CreateAuthor(ctx context.Context, author model.Author) (model.Author, error) {
	ctx, span := otel.Tracer("Author").Start(ctx, "Saving author to db")
	defer span.End()

	metaDataJSON, err := json.Marshal(author.MetaData)
	if err != nil {
		return model.Author{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	author.AuthorID = model.GenerateUUIDWithSuffix("athr")
	author.CreatedAt = time.Now()

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO authors (author_id, name, pen_name, wallet_address, created_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, author.AuthorID, author.Name, author.PenName, author.WalletAddress, author.CreatedAt, metaDataJSON)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return model.Author{}, apierror.NewAPIError(apierror.ErrConflict, "Author with this wallet address already exists", err)
			default:
				return model.Author{}, apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return model.Author{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create author", err)
	}

	return author, nil
}

// GetAuthor retrieves an author by their id.
func (d Datasource) GetAuthor(ctx context.Context, authorID string) (*model.Author, error) {
	ctx, span := otel.Tracer("Author").Start(ctx, "Fetching author from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, author_id, name, pen_name, wallet_address, created_at, meta_data
		FROM authors
		WHERE author_id = $1
	`, authorID)

	return scanAuthor(row)
}

// GetAuthorByWallet retrieves an author by their ledger wallet address.
func (d Datasource) GetAuthorByWallet(ctx context.Context, walletAddress string) (*model.Author, error) {
	ctx, span := otel.Tracer("Author").Start(ctx, "Fetching author by wallet from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, author_id, name, pen_name, wallet_address, created_at, meta_data
		FROM authors
		WHERE wallet_address = $1
	`, walletAddress)

	return scanAuthor(row)
}

// GetAllAuthors retrieves authors with pagination.
func (d Datasource) GetAllAuthors(ctx context.Context, limit, offset int) ([]model.Author, error) {
	ctx, span := otel.Tracer("Author").Start(ctx, "Fetching all authors from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, author_id, name, pen_name, wallet_address, created_at, meta_data
		FROM authors
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve authors", err)
	}
	defer rows.Close()

	authors := []model.Author{}

	for rows.Next() {
		author := model.Author{}
		var metaDataJSON []byte
		err = rows.Scan(&author.ID, &author.AuthorID, &author.Name, &author.PenName, &author.WalletAddress, &author.CreatedAt, &metaDataJSON)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan author data", err)
		}

		if len(metaDataJSON) > 0 {
			err = json.Unmarshal(metaDataJSON, &author.MetaData)
			if err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
			}
		}

		authors = append(authors, author)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over authors", err)
	}

	return authors, nil
}

func scanAuthor(row *sql.Row) (*model.Author, error) {
	author := model.Author{}
	var metaDataJSON []byte

	err := row.Scan(&author.ID, &author.AuthorID, &author.Name, &author.PenName, &author.WalletAddress, &author.CreatedAt, &metaDataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Author not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve author", err)
	}

	if len(metaDataJSON) > 0 {
		err = json.Unmarshal(metaDataJSON, &author.MetaData)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}

	return &author, nil
}
