package database

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the prepared SQL for the operation log.
type Queries struct {
	db DBTX
}

func newQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type uploadOperationRow struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

type uploadAttemptRow struct {
	ID          string
	OperationID sql.NullInt64
	ContentHash string
	SourcePath  string
	FileSize    int64
	Transport   string
	Status      string
	RemoteRef   string
	Error       string
	AttemptedAt time.Time
}

const insertUploadOperation = `INSERT INTO upload_operations (
    started_at, operation, parameters, status
) VALUES (
    ?, ?, ?, 'running'
)
RETURNING id, operation, parameters, status, started_at, finished_at`

type insertUploadOperationParams struct {
	StartedAt  time.Time
	Operation  string
	Parameters string
}

func (q *Queries) InsertUploadOperation(ctx context.Context, arg insertUploadOperationParams) (uploadOperationRow, error) {
	row := q.db.QueryRowContext(ctx, insertUploadOperation, arg.StartedAt, arg.Operation, arg.Parameters)
	var i uploadOperationRow
	err := row.Scan(
		&i.ID,
		&i.Operation,
		&i.Parameters,
		&i.Status,
		&i.StartedAt,
		&i.FinishedAt,
	)
	return i, err
}

const updateUploadOperationFinished = `UPDATE upload_operations
SET finished_at = ?, status = ?
WHERE id = ?`

type updateUploadOperationFinishedParams struct {
	FinishedAt sql.NullTime
	Status     string
	ID         int64
}

func (q *Queries) UpdateUploadOperationFinished(ctx context.Context, arg updateUploadOperationFinishedParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateUploadOperationFinished, arg.FinishedAt, arg.Status, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getUploadOperations = `SELECT id, operation, parameters, status, started_at, finished_at
FROM upload_operations
ORDER BY id DESC
LIMIT ?`

func (q *Queries) GetUploadOperations(ctx context.Context, limit int64) ([]uploadOperationRow, error) {
	rows, err := q.db.QueryContext(ctx, getUploadOperations, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []uploadOperationRow
	for rows.Next() {
		var i uploadOperationRow
		if err := rows.Scan(
			&i.ID,
			&i.Operation,
			&i.Parameters,
			&i.Status,
			&i.StartedAt,
			&i.FinishedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getMaxUploadOperationID = `SELECT CAST(COALESCE(MAX(id), 0) AS INTEGER) FROM upload_operations`

func (q *Queries) GetMaxUploadOperationID(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, getMaxUploadOperationID)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const insertUploadAttempt = `INSERT INTO upload_attempts (
    id, operation_id, content_hash, source_path, file_size,
    transport, status, remote_ref, error, attempted_at
) VALUES (
    ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
)`

func (q *Queries) InsertUploadAttempt(ctx context.Context, arg uploadAttemptRow) error {
	_, err := q.db.ExecContext(ctx, insertUploadAttempt,
		arg.ID,
		arg.OperationID,
		arg.ContentHash,
		arg.SourcePath,
		arg.FileSize,
		arg.Transport,
		arg.Status,
		arg.RemoteRef,
		arg.Error,
		arg.AttemptedAt,
	)
	return err
}

const getUploadAttemptsByHash = `SELECT id, operation_id, content_hash, source_path, file_size,
    transport, status, remote_ref, error, attempted_at
FROM upload_attempts
WHERE content_hash = ?
ORDER BY attempted_at DESC, rowid DESC`

func (q *Queries) GetUploadAttemptsByHash(ctx context.Context, contentHash string) ([]uploadAttemptRow, error) {
	rows, err := q.db.QueryContext(ctx, getUploadAttemptsByHash, contentHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []uploadAttemptRow
	for rows.Next() {
		var i uploadAttemptRow
		if err := rows.Scan(
			&i.ID,
			&i.OperationID,
			&i.ContentHash,
			&i.SourcePath,
			&i.FileSize,
			&i.Transport,
			&i.Status,
			&i.RemoteRef,
			&i.Error,
			&i.AttemptedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
