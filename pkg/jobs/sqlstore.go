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

package jobs

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

const createJobsTableSQL = `
CREATE TABLE IF NOT EXISTS jobs (
    id VARCHAR(255) PRIMARY KEY,
    document_id VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    kind VARCHAR(50) NOT NULL,
    status VARCHAR(50) NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    parameters TEXT,
    retry_count INTEGER NOT NULL DEFAULT 0,
    max_retries INTEGER NOT NULL DEFAULT 3,
    error TEXT,
    created_at TIMESTAMP NOT NULL,
    started_at TIMESTAMP,
    completed_at TIMESTAMP,
    updated_at TIMESTAMP NOT NULL,
    active_key VARCHAR(575)
);

CREATE INDEX IF NOT EXISTS idx_jobs_document_id ON jobs(document_id);
CREATE INDEX IF NOT EXISTS idx_jobs_user_id ON jobs(user_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_status_priority_created ON jobs(status, priority, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_active_key ON jobs(active_key);
`

// SQLStore is a Store backed by database/sql, supporting PostgreSQL,
// MySQL, and SQLite through the same schema and query set.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore opens a pooled connection per cfg and initializes the
// jobs schema if it doesn't already exist.
func NewSQLStore(cfg config.DatabaseConfig) (*SQLStore, error) {
	driverName := cfg.Driver
	if driverName == "sqlite" {
		driverName = "sqlite3"
	}

	db, err := sql.Open(driverName, connectionString(cfg))
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "open jobs database", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperror.Wrap(apperror.ExternalService, "ping jobs database", err)
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
	if _, err := s.db.ExecContext(ctx, createJobsTableSQL); err != nil {
		return apperror.Wrap(apperror.Internal, "create jobs schema", err)
	}
	return nil
}

// placeholder returns the n-th bind placeholder for the store's
// dialect ("?" for mysql/sqlite, "$n" for postgres).
func (s *SQLStore) placeholder(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

type jobRow struct {
	ID          string
	DocumentID  string
	UserID      string
	Kind        string
	Status      string
	Priority    int
	Parameters  sql.NullString
	RetryCount  int
	MaxRetries  int
	Error       sql.NullString
	CreatedAt   time.Time
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
	UpdatedAt   time.Time
	ActiveKey   string
}

// activeKeyFor computes the value the active_key unique index enforces
// "at most one non-terminal job per (document_id, kind)" against: while
// a job is non-terminal its active_key collides with any other
// non-terminal job for the same document+kind, which is exactly the
// invariant a unique index can enforce; once terminal, a job's
// active_key is its own (globally unique) id, freeing the slot for a
// future job with the same document_id/kind.
func activeKeyFor(documentID string, kind Kind, status Status, id string) string {
	if status.IsTerminal() {
		return "done:" + id
	}
	return "active:" + documentID + ":" + string(kind)
}

func jobToRow(j *Job) (*jobRow, error) {
	var paramsJSON []byte
	var err error
	if j.Parameters != nil {
		paramsJSON, err = json.Marshal(j.Parameters)
		if err != nil {
			return nil, fmt.Errorf("marshal parameters: %w", err)
		}
	}

	row := &jobRow{
		ID:         j.ID,
		DocumentID: j.DocumentID,
		UserID:     j.UserID,
		Kind:       string(j.Kind),
		Status:     string(j.Status),
		Priority:   j.Priority,
		Parameters: sql.NullString{String: string(paramsJSON), Valid: len(paramsJSON) > 0},
		RetryCount: j.RetryCount,
		MaxRetries: j.MaxRetries,
		Error:      sql.NullString{String: j.Error, Valid: j.Error != ""},
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
		ActiveKey:  activeKeyFor(j.DocumentID, j.Kind, j.Status, j.ID),
	}
	if j.StartedAt != nil {
		row.StartedAt = sql.NullTime{Time: *j.StartedAt, Valid: true}
	}
	if j.CompletedAt != nil {
		row.CompletedAt = sql.NullTime{Time: *j.CompletedAt, Valid: true}
	}
	return row, nil
}

func rowToJob(row *jobRow) (*Job, error) {
	j := &Job{
		ID:         row.ID,
		DocumentID: row.DocumentID,
		UserID:     row.UserID,
		Kind:       Kind(row.Kind),
		Status:     Status(row.Status),
		Priority:   row.Priority,
		RetryCount: row.RetryCount,
		MaxRetries: row.MaxRetries,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if row.Parameters.Valid && row.Parameters.String != "" {
		if err := json.Unmarshal([]byte(row.Parameters.String), &j.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	if row.Error.Valid {
		j.Error = row.Error.String
	}
	if row.StartedAt.Valid {
		t := row.StartedAt.Time
		j.StartedAt = &t
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		j.CompletedAt = &t
	}
	return j, nil
}

func (s *SQLStore) scanRow(scanner interface {
	Scan(dest ...any) error
}) (*Job, error) {
	var row jobRow
	err := scanner.Scan(
		&row.ID, &row.DocumentID, &row.UserID, &row.Kind, &row.Status, &row.Priority,
		&row.Parameters, &row.RetryCount, &row.MaxRetries, &row.Error,
		&row.CreatedAt, &row.StartedAt, &row.CompletedAt, &row.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rowToJob(&row)
}

const jobColumns = `id, document_id, user_id, kind, status, priority, parameters, retry_count, max_retries, error, created_at, started_at, completed_at, updated_at`

// Save inserts job if its CreatedAt is zero, or otherwise updates it
// with an optimistic-concurrency guard on the previous UpdatedAt.
func (s *SQLStore) Save(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	isInsert := job.CreatedAt.IsZero()
	prevUpdatedAt := job.UpdatedAt
	if isInsert {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	row, err := jobToRow(job)
	if err != nil {
		return apperror.Wrap(apperror.Internal, "serialize job", err)
	}

	if isInsert {
		query := fmt.Sprintf(`INSERT INTO jobs (%s, active_key) VALUES (%s, %s)`, jobColumns, s.placeholders(14), s.placeholder(15))
		_, err := s.db.ExecContext(ctx, query,
			row.ID, row.DocumentID, row.UserID, row.Kind, row.Status, row.Priority,
			row.Parameters, row.RetryCount, row.MaxRetries, row.Error,
			row.CreatedAt, row.StartedAt, row.CompletedAt, row.UpdatedAt,
			row.ActiveKey,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.New(apperror.BusinessRule, "a non-terminal job already exists for this document and kind").
					WithDetails(map[string]any{"document_id": row.DocumentID, "kind": row.Kind})
			}
			return apperror.Wrap(apperror.Internal, "insert job", err)
		}
		return nil
	}

	query := fmt.Sprintf(`
UPDATE jobs SET status=%s, priority=%s, parameters=%s, retry_count=%s, max_retries=%s,
  error=%s, started_at=%s, completed_at=%s, updated_at=%s, active_key=%s
WHERE id=%s AND updated_at=%s`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5),
		s.placeholder(6), s.placeholder(7), s.placeholder(8), s.placeholder(9), s.placeholder(10),
		s.placeholder(11), s.placeholder(12))

	result, err := s.db.ExecContext(ctx, query,
		row.Status, row.Priority, row.Parameters, row.RetryCount, row.MaxRetries,
		row.Error, row.StartedAt, row.CompletedAt, row.UpdatedAt, row.ActiveKey,
		row.ID, prevUpdatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return apperror.New(apperror.BusinessRule, "a non-terminal job already exists for this document and kind").
			WithDetails(map[string]any{"document_id": row.DocumentID, "kind": row.Kind})
	}
	if err != nil {
		return apperror.Wrap(apperror.Internal, "update job", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperror.Wrap(apperror.Internal, "update job rows affected", err)
	}
	if affected == 0 {
		return apperror.New(apperror.Conflict, "job was modified concurrently").WithDetails(map[string]any{"job_id": job.ID})
	}
	return nil
}

// isUniqueViolation reports whether err is a unique-constraint
// violation, checked by driver error text rather than type assertion
// since postgres (lib/pq), mysql (go-sql-driver), and sqlite3
// (mattn/go-sqlite3) each surface it through a different error type
// and this store supports all three with one code path.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// CreateNonTerminal inserts job with an active_key derived from its
// (document_id, kind); the active_key unique index rejects a second
// concurrent insert for the same pair before either caller's Go code
// ever gets to check, so this method -- not a separate
// FindNonTerminalByDocumentKind-then-Save -- is what actually closes
// the create-job race between two workers creating the same job
// concurrently.
func (s *SQLStore) CreateNonTerminal(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	return s.Save(ctx, job)
}

func (s *SQLStore) placeholders(n int) string {
	out := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			out += ", "
		}
		out += s.placeholder(i)
	}
	return out
}

func (s *SQLStore) FindByID(ctx context.Context, id string) (*Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE id=%s`, jobColumns, s.placeholder(1))
	job, err := s.scanRow(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperror.New(apperror.NotFound, "job not found").WithDetails(map[string]any{"job_id": id})
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "find job by id", err)
	}
	return job, nil
}

func (s *SQLStore) FindByDocument(ctx context.Context, documentID string) ([]*Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE document_id=%s ORDER BY created_at DESC`, jobColumns, s.placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "find jobs by document", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

func (s *SQLStore) FindNonTerminalByDocumentKind(ctx context.Context, documentID string, kind Kind) (*Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE document_id=%s AND kind=%s AND status NOT IN ('completed','cancelled') LIMIT 1`,
		jobColumns, s.placeholder(1), s.placeholder(2))
	job, err := s.scanRow(s.db.QueryRowContext(ctx, query, documentID, string(kind)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "find non-terminal job", err)
	}
	return job, nil
}

func (s *SQLStore) FindPending(ctx context.Context, limit int, preferHigherPriority bool) ([]*Job, error) {
	order := "created_at ASC"
	if preferHigherPriority {
		order = "priority DESC, created_at ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE status='pending' ORDER BY %s LIMIT %s`, jobColumns, order, s.placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "find pending jobs", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

func (s *SQLStore) FindRetryableFailures(ctx context.Context, limit int) ([]*Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE status='failed' AND retry_count < max_retries ORDER BY created_at ASC LIMIT %s`,
		jobColumns, s.placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "find retryable failures", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

// Claim atomically transitions one pending job to processing. SQLite
// and single-row UPDATE...RETURNING-less dialects are handled by a
// two-step select-then-conditional-update, which is safe because the
// conditional UPDATE only succeeds for the worker that wins the race.
// A worker that loses gets (nil, nil); Claim itself does not retry.
func (s *SQLStore) Claim(ctx context.Context, workerID string, preferHigherPriority bool) (*Job, error) {
	candidates, err := s.FindPending(ctx, 1, preferHigherPriority)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	candidate := candidates[0]

	now := time.Now().UTC()
	query := fmt.Sprintf(`UPDATE jobs SET status='processing', started_at=%s, updated_at=%s WHERE id=%s AND status='pending'`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3))
	result, err := s.db.ExecContext(ctx, query, now, now, candidate.ID)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "claim job", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "claim job rows affected", err)
	}
	if affected == 0 {
		// Another worker won the race; caller should retry.
		return nil, nil
	}

	candidate.Status = StatusProcessing
	candidate.StartedAt = &now
	candidate.UpdatedAt = now
	return candidate, nil
}

func (s *SQLStore) UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error {
	job, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return apperror.New(apperror.BusinessRule, "cannot transition a terminal job").WithDetails(map[string]any{"job_id": id, "status": string(job.Status)})
	}

	now := time.Now().UTC()
	job.Status = status
	job.Error = errMsg
	if status == StatusProcessing && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if status.IsTerminal() {
		job.CompletedAt = &now
	}
	if status == StatusFailed {
		job.RetryCount++
	}

	return s.Save(ctx, job)
}

func (s *SQLStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	query := `SELECT status, COUNT(*) FROM jobs GROUP BY status`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "count jobs by status", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperror.Wrap(apperror.Internal, "scan job status count", err)
		}
		counts[Status(status)] = count
	}
	return counts, nil
}

func (s *SQLStore) collect(rows *sql.Rows) ([]*Job, error) {
	var out []*Job
	for rows.Next() {
		job, err := s.scanRow(rows)
		if err != nil {
			return nil, apperror.Wrap(apperror.Internal, "scan job row", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
