package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pdfjobs "github.com/alnah/go-pdfjobs"
)

// Compile-time interface check
var (
	_ pdfjobs.BinaryStore = (*PGStore)(nil)
	_ pdfjobs.Deleter     = (*PGStore)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS pdfjobs_files (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size         BIGINT NOT NULL,
	data         BYTEA NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// PGStore keeps files as bytea rows in the pdfjobs_files table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to databaseURL. Call EnsureSchema before first use
// on a fresh database.
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, ErrStoreRequired
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// EnsureSchema creates the files table if it does not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Upload reads r fully and inserts it under a new uuid.
func (s *PGStore) Upload(ctx context.Context, name string, r io.Reader, contentType string) (pdfjobs.FileRef, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return pdfjobs.FileRef{}, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return pdfjobs.FileRef{}, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, MaxFileSize)
	}

	id := uuid.NewString()
	ref := pdfjobs.FileRef{
		FileID:      id,
		Name:        sanitizeName(name, id),
		ContentType: contentType,
		Size:        int64(len(data)),
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO pdfjobs_files (id, name, content_type, size, data)
VALUES ($1, $2, $3, $4, $5);
`, ref.FileID, ref.Name, ref.ContentType, ref.Size, data)
	if err != nil {
		return pdfjobs.FileRef{}, fmt.Errorf("inserting file: %w", err)
	}
	return ref, nil
}

// Download loads a stored file into memory.
func (s *PGStore) Download(ctx context.Context, fileID string) (io.ReadCloser, pdfjobs.FileMeta, error) {
	if err := checkID(fileID); err != nil {
		return nil, pdfjobs.FileMeta{}, err
	}

	meta := pdfjobs.FileMeta{FileID: fileID}
	var data []byte
	err := s.pool.QueryRow(ctx, `
SELECT name, content_type, size, data
FROM pdfjobs_files
WHERE id = $1;
`, fileID).Scan(&meta.Name, &meta.ContentType, &meta.Size, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pdfjobs.FileMeta{}, fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	if err != nil {
		return nil, pdfjobs.FileMeta{}, fmt.Errorf("loading file: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), meta, nil
}

// Delete removes a stored file.
func (s *PGStore) Delete(ctx context.Context, fileID string) error {
	if err := checkID(fileID); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM pdfjobs_files WHERE id = $1;`, fileID)
	if err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	return nil
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}
