// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chunks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	// Database drivers.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ragwell/corpus/pkg/apperror"
	"github.com/ragwell/corpus/pkg/config"
)

const createChunksTableSQL = `
CREATE TABLE IF NOT EXISTS chunks (
    id VARCHAR(255) PRIMARY KEY,
    document_id VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    content TEXT NOT NULL,
    kind VARCHAR(50) NOT NULL,
    sequence_number INTEGER NOT NULL,
    start_offset INTEGER NOT NULL,
    end_offset INTEGER NOT NULL,
    content_hash VARCHAR(64) NOT NULL,
    metadata TEXT,
    embedding_id VARCHAR(255),
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_document_hash ON chunks(document_id, content_hash);
CREATE UNIQUE INDEX IF NOT EXISTS idx_chunks_document_sequence ON chunks(document_id, sequence_number);
`

// SQLStore is a Store backed by database/sql, sharing the same
// dialect-handling idiom as pkg/jobs.SQLStore.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore opens a pooled connection per cfg and initializes the
// chunks schema if it doesn't already exist.
func NewSQLStore(cfg config.DatabaseConfig) (*SQLStore, error) {
	driverName := cfg.Driver
	if driverName == "sqlite" {
		driverName = "sqlite3"
	}

	db, err := sql.Open(driverName, connectionString(cfg))
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "open chunks database", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperror.Wrap(apperror.ExternalService, "ping chunks database", err)
	}

	s := &SQLStore{db: db, dialect: cfg.Driver}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func connectionString(cfg config.DatabaseConfig) string {
	switch cfg.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	default: // sqlite
		return cfg.Database
	}
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, createChunksTableSQL); err != nil {
		return apperror.Wrap(apperror.Internal, "create chunks schema", err)
	}
	return nil
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

const chunkColumns = `id, document_id, user_id, content, kind, sequence_number, start_offset, end_offset, content_hash, metadata, embedding_id, created_at`

type chunkRow struct {
	ID             string
	DocumentID     string
	UserID         string
	Content        string
	Kind           string
	SequenceNumber int
	StartOffset    int
	EndOffset      int
	ContentHash    string
	Metadata       sql.NullString
	EmbeddingID    sql.NullString
	CreatedAt      time.Time
}

func chunkToRow(c *Chunk) (*chunkRow, error) {
	var metaJSON []byte
	if c.Metadata != nil {
		var err error
		metaJSON, err = json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	row := &chunkRow{
		ID:             c.ID,
		DocumentID:     c.DocumentID,
		UserID:         c.UserID,
		Content:        c.Content,
		Kind:           string(c.Kind),
		SequenceNumber: c.SequenceNumber,
		StartOffset:    c.StartOffset,
		EndOffset:      c.EndOffset,
		ContentHash:    c.ContentHash,
		Metadata:       sql.NullString{String: string(metaJSON), Valid: len(metaJSON) > 0},
		CreatedAt:      c.CreatedAt,
	}
	if c.EmbeddingID != nil {
		row.EmbeddingID = sql.NullString{String: *c.EmbeddingID, Valid: true}
	}
	return row, nil
}

func rowToChunk(row *chunkRow) (*Chunk, error) {
	c := &Chunk{
		ID:             row.ID,
		DocumentID:     row.DocumentID,
		UserID:         row.UserID,
		Content:        row.Content,
		Kind:           Kind(row.Kind),
		SequenceNumber: row.SequenceNumber,
		StartOffset:    row.StartOffset,
		EndOffset:      row.EndOffset,
		ContentHash:    row.ContentHash,
		CreatedAt:      row.CreatedAt,
	}
	if row.Metadata.Valid && row.Metadata.String != "" {
		if err := json.Unmarshal([]byte(row.Metadata.String), &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if row.EmbeddingID.Valid {
		id := row.EmbeddingID.String
		c.EmbeddingID = &id
	}
	return c, nil
}

func (s *SQLStore) scanRow(scanner interface{ Scan(dest ...any) error }) (*Chunk, error) {
	var row chunkRow
	err := scanner.Scan(
		&row.ID, &row.DocumentID, &row.UserID, &row.Content, &row.Kind,
		&row.SequenceNumber, &row.StartOffset, &row.EndOffset, &row.ContentHash,
		&row.Metadata, &row.EmbeddingID, &row.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rowToChunk(&row)
}

func (s *SQLStore) Save(ctx context.Context, chunk *Chunk) error {
	return s.SaveBatch(ctx, []*Chunk{chunk})
}

func (s *SQLStore) SaveBatch(ctx context.Context, batch []*Chunk) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperror.Wrap(apperror.Internal, "begin chunk batch transaction", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, c := range batch {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		row, err := chunkToRow(c)
		if err != nil {
			return apperror.Wrap(apperror.Internal, "serialize chunk", err)
		}

		query := fmt.Sprintf(`INSERT INTO chunks (%s) VALUES (%s)`, chunkColumns, s.placeholders(12))
		_, err = tx.ExecContext(ctx, query,
			row.ID, row.DocumentID, row.UserID, row.Content, row.Kind,
			row.SequenceNumber, row.StartOffset, row.EndOffset, row.ContentHash,
			row.Metadata, row.EmbeddingID, row.CreatedAt,
		)
		if err != nil {
			return apperror.Wrap(apperror.Internal, "insert chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperror.Wrap(apperror.Internal, "commit chunk batch", err)
	}
	return nil
}

func (s *SQLStore) placeholders(n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = s.placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

func (s *SQLStore) FindByID(ctx context.Context, id string) (*Chunk, error) {
	query := fmt.Sprintf(`SELECT %s FROM chunks WHERE id=%s`, chunkColumns, s.placeholder(1))
	chunk, err := s.scanRow(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperror.New(apperror.NotFound, "chunk not found").WithDetails(map[string]any{"chunk_id": id})
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "find chunk by id", err)
	}
	return chunk, nil
}

func (s *SQLStore) FindByIDs(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = s.placeholder(i + 1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT %s FROM chunks WHERE id IN (%s)`, chunkColumns, strings.Join(placeholders, ", "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "find chunks by ids", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

func (s *SQLStore) FindByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	query := fmt.Sprintf(`SELECT %s FROM chunks WHERE document_id=%s ORDER BY sequence_number ASC`, chunkColumns, s.placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "find chunks by document", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

func (s *SQLStore) FindByContentHash(ctx context.Context, documentID, contentHash string) ([]*Chunk, error) {
	query := fmt.Sprintf(`SELECT %s FROM chunks WHERE document_id=%s AND content_hash=%s ORDER BY sequence_number ASC`,
		chunkColumns, s.placeholder(1), s.placeholder(2))
	rows, err := s.db.QueryContext(ctx, query, documentID, contentHash)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "find chunks by content hash", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

func (s *SQLStore) SetEmbeddingID(ctx context.Context, id, embeddingID string) error {
	query := fmt.Sprintf(`UPDATE chunks SET embedding_id=%s WHERE id=%s AND embedding_id IS NULL`,
		s.placeholder(1), s.placeholder(2))
	result, err := s.db.ExecContext(ctx, query, embeddingID, id)
	if err != nil {
		return apperror.Wrap(apperror.Internal, "set chunk embedding id", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperror.Wrap(apperror.Internal, "set chunk embedding id rows affected", err)
	}
	if affected == 0 {
		return apperror.New(apperror.BusinessRule, "chunk already has an embedding_id, or does not exist").WithDetails(map[string]any{"chunk_id": id})
	}
	return nil
}

func (s *SQLStore) DeleteBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = s.placeholder(i + 1)
		args[i] = id
	}
	query := fmt.Sprintf(`DELETE FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ", "))
	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperror.Wrap(apperror.Internal, "delete chunks", err)
	}
	return nil
}

func (s *SQLStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM chunks WHERE document_id=%s`, s.placeholder(1))
	var count int
	if err := s.db.QueryRowContext(ctx, query, documentID).Scan(&count); err != nil {
		return 0, apperror.Wrap(apperror.Internal, "count chunks by document", err)
	}
	return count, nil
}

func (s *SQLStore) collect(rows *sql.Rows) ([]*Chunk, error) {
	var out []*Chunk
	for rows.Next() {
		chunk, err := s.scanRow(rows)
		if err != nil {
			return nil, apperror.Wrap(apperror.Internal, "scan chunk row", err)
		}
		out = append(out, chunk)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
