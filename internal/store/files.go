// Package store reads marketplace file records. The marketplace data model
// owns these tables; this service never writes them.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"partquote/api/internal/resolve"
)

type PostgresFileStore struct {
	db *sql.DB
}

func NewPostgresFileStore(db *sql.DB) *PostgresFileStore {
	return &PostgresFileStore{db: db}
}

func (s *PostgresFileStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// FileRecordsForQuote returns every storage row attached to a quote,
// canonical rows first so resolution priority follows table provenance.
func (s *PostgresFileStore) FileRecordsForQuote(ctx context.Context, quoteID string) ([]resolve.FileRecord, error) {
	var records []resolve.FileRecord

	const canonicalQuery = `
		SELECT file_id, COALESCE(filename, ''), COALESCE(bucket, ''), COALESCE(object_path, '')
		FROM quote_files
		WHERE quote_id = $1
		ORDER BY created_at, file_id
	`
	rows, err := s.db.QueryContext(ctx, canonicalQuery, quoteID)
	if err != nil {
		return nil, fmt.Errorf("query quote_files: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fileID, filename, bucket, objectPath string
		if err := rows.Scan(&fileID, &filename, &bucket, &objectPath); err != nil {
			return nil, fmt.Errorf("scan quote_files: %w", err)
		}
		records = append(records, resolve.FileRecord{
			QuoteID:          quoteID,
			FileID:           fileID,
			DeclaredFilename: filename,
			Fields: map[string]string{
				"bucket":      bucket,
				"object_path": objectPath,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quote_files: %w", err)
	}

	const legacyQuery = `
		SELECT COALESCE(filename, ''), COALESCE(s3_bucket, ''), COALESCE(file_path, '')
		FROM quote_uploads
		WHERE quote_id = $1
		ORDER BY id
	`
	legacyRows, err := s.db.QueryContext(ctx, legacyQuery, quoteID)
	if err != nil {
		// The legacy table is absent on fresh installs.
		if isUndefinedTable(err) {
			return records, nil
		}
		return nil, fmt.Errorf("query quote_uploads: %w", err)
	}
	defer legacyRows.Close()
	for legacyRows.Next() {
		var filename, s3Bucket, filePath string
		if err := legacyRows.Scan(&filename, &s3Bucket, &filePath); err != nil {
			return nil, fmt.Errorf("scan quote_uploads: %w", err)
		}
		records = append(records, resolve.FileRecord{
			QuoteID:          quoteID,
			DeclaredFilename: filename,
			Fields: map[string]string{
				"s3_bucket": s3Bucket,
				"file_path": filePath,
			},
		})
	}
	if err := legacyRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quote_uploads: %w", err)
	}
	return records, nil
}

// DeclaredFilenames returns the quote's declared filename list in its stored
// order. Declared names drive the UI entry list even when storage rows are
// missing.
func (s *PostgresFileStore) DeclaredFilenames(ctx context.Context, quoteID string) ([]string, error) {
	const query = `
		SELECT filename FROM quote_declared_files
		WHERE quote_id = $1
		ORDER BY position, filename
	`
	rows, err := s.db.QueryContext(ctx, query, quoteID)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query quote_declared_files: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan quote_declared_files: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quote_declared_files: %w", err)
	}
	return names, nil
}

func isUndefinedTable(err error) bool {
	// pgx surfaces SQLSTATE 42P01 for undefined tables.
	return err != nil && strings.Contains(err.Error(), "42P01")
}
