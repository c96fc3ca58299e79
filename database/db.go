package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"

	"github.com/fablehq/fable/config"
	"github.com/fablehq/fable/internal/cache"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con, Cache: nil}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createAuthorTable(db)
	if err != nil {
		return nil, err
	}
	err = createStoryTable(db)
	if err != nil {
		return nil, err
	}
	err = createSyncRecordTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createAuthorTable creates a PostgreSQL table for the Author struct
func createAuthorTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS authors (
			id SERIAL PRIMARY KEY,
			author_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			pen_name TEXT,
			wallet_address TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	if err != nil {
		log.Printf("Error creating authors table: %v", err)
	}
	return err
}

// createStoryTable creates a PostgreSQL table for the Story struct. The
// primary key is the ledger-assigned token id, so a story can never be
// cached under a different id than the one it was minted with.
func createStoryTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS stories (
			story_id BIGINT PRIMARY KEY,
			author_id TEXT NOT NULL REFERENCES authors(author_id),
			title TEXT,
			description TEXT,
			content_cid TEXT,
			cover_cid TEXT,
			chapter_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			last_update TIMESTAMP NOT NULL DEFAULT NOW(),
			synced_at TIMESTAMP
		)
	`)
	if err != nil {
		log.Printf("Error creating stories table: %v", err)
	}
	return err
}

// createSyncRecordTable creates a PostgreSQL table for the SyncRecord
// struct, one row per author.
func createSyncRecordTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_records (
			author_id TEXT PRIMARY KEY REFERENCES authors(author_id),
			status TEXT NOT NULL,
			last_synced_at TIMESTAMP,
			error_message TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		log.Printf("Error creating sync_records table: %v", err)
	}
	return err
}
