package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/firstpro/mock-feedback-service/internal/config"
)

// PostgreSQLStorage implements ObjectStore on a single PostgreSQL table
type PostgreSQLStorage struct {
	db    *sql.DB
	table string // quoted identifier
}

// NewPostgreSQLStorage opens the database and creates the objects table if
// needed
func NewPostgreSQLStorage(ctx context.Context, cfg config.StorageConfig) (*PostgreSQLStorage, error) {
	if cfg.PostgresURI == "" {
		return nil, fmt.Errorf("postgresql storage requires POSTGRES_URI")
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgresql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgresql: %w", err)
	}

	storage := &PostgreSQLStorage{
		db:    db,
		table: pq.QuoteIdentifier(cfg.TableName),
	}
	if err := storage.ensureTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure table exists: %w", err)
	}

	return storage, nil
}

func (p *PostgreSQLStorage) ensureTable(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+p.table+` (
		key          TEXT PRIMARY KEY,
		body         BYTEA NOT NULL,
		content_type TEXT NOT NULL,
		version      BIGINT NOT NULL
	)`)
	return err
}

func (p *PostgreSQLStorage) Get(ctx context.Context, key string) (*Object, error) {
	obj := Object{Key: key}
	var version int64
	err := p.db.QueryRowContext(ctx,
		`SELECT body, content_type, version FROM `+p.table+` WHERE key = $1`, key,
	).Scan(&obj.Body, &obj.ContentType, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}

	obj.Version = strconv.FormatInt(version, 10)
	return &obj, nil
}

func (p *PostgreSQLStorage) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO `+p.table+` (key, body, content_type, version) VALUES ($1, $2, $3, 1)
		 ON CONFLICT (key) DO UPDATE
		 SET body = EXCLUDED.body, content_type = EXCLUDED.content_type, version = `+p.table+`.version + 1`,
		key, body, contentType)
	if err != nil {
		return fmt.Errorf("failed to store object %s: %w", key, err)
	}
	return nil
}

func (p *PostgreSQLStorage) PutIfMatch(ctx context.Context, key string, body []byte, contentType, version string) (string, error) {
	var row *sql.Row
	if version == "" {
		row = p.db.QueryRowContext(ctx,
			`INSERT INTO `+p.table+` (key, body, content_type, version) VALUES ($1, $2, $3, 1)
			 ON CONFLICT (key) DO NOTHING
			 RETURNING version`,
			key, body, contentType)
	} else {
		expected, err := strconv.ParseInt(version, 10, 64)
		if err != nil {
			return "", ErrVersionMismatch
		}
		row = p.db.QueryRowContext(ctx,
			`UPDATE `+p.table+` SET body = $2, content_type = $3, version = version + 1
			 WHERE key = $1 AND version = $4
			 RETURNING version`,
			key, body, contentType, expected)
	}

	var next int64
	if err := row.Scan(&next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrVersionMismatch
		}
		return "", fmt.Errorf("failed to store object %s: %w", key, err)
	}
	return strconv.FormatInt(next, 10), nil
}

func (p *PostgreSQLStorage) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT key FROM `+p.table+` WHERE key LIKE $1 ESCAPE '\' ORDER BY key COLLATE "C" LIMIT $2`,
		escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}
	return keys, nil
}

func (p *PostgreSQLStorage) Close() error {
	return p.db.Close()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
