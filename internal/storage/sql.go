package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"

	"spamfightbot/internal/errors"
	"spamfightbot/internal/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore keeps pairs in a single kv_store table. The same queries serve
// sqlite and postgres; sqlx rebinds the placeholders per driver.
type SQLStore struct {
	db *sqlx.DB
}

type kvRow struct {
	Key   string `db:"store_key"`
	Value string `db:"store_value"`
}

// NewSQLiteStore opens (creating if needed) a sqlite database file
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	// _txlock=immediate avoids SQLITE_BUSY upgrades when the CLI and the bot share a file
	return openSQL(ctx, migrations.DialectSQLite, "file:"+path+"?_busy_timeout=5000&_txlock=immediate")
}

// NewPostgresStore connects through the pgx stdlib driver
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	return openSQL(ctx, migrations.DialectPostgres, dsn)
}

func openSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseConnection, "failed to open database")
	}

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseConnection, "failed to ping database")
	}

	statements, err := migrations.Schema(driver)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseMigration, "failed to read schema")
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
			}
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseMigration, "failed to initialize schema")
		}
	}

	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	query := s.db.Rebind(`SELECT store_value FROM kv_store WHERE store_key = ?`)
	err := s.db.GetContext(ctx, &value, query, key)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewDatabaseError("get", err).WithContext("key", key)
	}
	return value, true, nil
}

const (
	upsertQuery = `
		INSERT INTO kv_store (store_key, store_value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (store_key) DO UPDATE SET
			store_value = excluded.store_value,
			updated_at = CURRENT_TIMESTAMP
	`
	deleteQuery = `DELETE FROM kv_store WHERE store_key = ?`
)

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(upsertQuery), key, value); err != nil {
		return errors.NewDatabaseError("set", err).WithContext("key", key)
	}
	return nil
}

// Apply runs the writes in one transaction
func (s *SQLStore) Apply(ctx context.Context, sets map[string]string, deletes []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.NewDatabaseError("begin", err)
	}
	// no-op once committed
	defer func() { _ = tx.Rollback() }()

	upsert := tx.Rebind(upsertQuery)
	for key, value := range sets {
		if _, err := tx.ExecContext(ctx, upsert, key, value); err != nil {
			return errors.NewDatabaseError("set", err).WithContext("key", key)
		}
	}
	del := tx.Rebind(deleteQuery)
	for _, key := range deletes {
		if _, err := tx.ExecContext(ctx, del, key); err != nil {
			return errors.NewDatabaseError("delete", err).WithContext("key", key)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseError("commit", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(deleteQuery), key); err != nil {
		return errors.NewDatabaseError("delete", err).WithContext("key", key)
	}
	return nil
}

func (s *SQLStore) All(ctx context.Context) (map[string]string, error) {
	var rows []kvRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT store_key, store_value FROM kv_store`); err != nil {
		return nil, errors.NewDatabaseError("scan", err)
	}

	result := make(map[string]string, len(rows))
	for _, row := range rows {
		result[row.Key] = row.Value
	}
	return result, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
