// Package postgres provides pgx-backed persistence for activity records
// and CSV batches.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/insights/internal/domain"
)

// RecordRepository persists activity records. Uniqueness over
// (owner_id, date) is enforced by the schema; InsertMany upserts so an
// ingestion re-run is idempotent.
type RecordRepository struct {
	pool *pgxpool.Pool
}

// NewRecordRepository constructs a RecordRepository.
func NewRecordRepository(pool *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

const recordColumns = `id, owner_id, date, steps, distance_km, active_minutes, source_batch_id, created_at, updated_at`

// FindByOwnerAndDate returns the record for one calendar date, or nil
// when none exists.
func (r *RecordRepository) FindByOwnerAndDate(ctx context.Context, ownerID string, date time.Time) (*domain.ActivityRecord, error) {
	const query = `SELECT ` + recordColumns + ` FROM activity_records WHERE owner_id=$1 AND date=$2`

	row := r.pool.QueryRow(ctx, query, ownerID, domain.Day(date))
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Update rewrites the metric columns of an existing record.
func (r *RecordRepository) Update(ctx context.Context, record domain.ActivityRecord) error {
	const stmt = `UPDATE activity_records
        SET steps=$1, distance_km=$2, active_minutes=$3, source_batch_id=$4, updated_at=$5
        WHERE id=$6`

	tag, err := r.pool.Exec(ctx, stmt,
		record.Steps, record.DistanceKM, record.ActiveMinutes, record.SourceBatchID, record.UpdatedAt, record.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// InsertMany writes a chunk of records in one batch, upserting on the
// (owner_id, date) key.
func (r *RecordRepository) InsertMany(ctx context.Context, records []domain.ActivityRecord) error {
	if len(records) == 0 {
		return nil
	}

	const stmt = `INSERT INTO activity_records (` + recordColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (owner_id, date) DO UPDATE
        SET steps=EXCLUDED.steps,
            distance_km=EXCLUDED.distance_km,
            active_minutes=EXCLUDED.active_minutes,
            source_batch_id=EXCLUDED.source_batch_id,
            updated_at=EXCLUDED.updated_at`

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(stmt,
			rec.ID, rec.OwnerID, domain.Day(rec.Date), rec.Steps, rec.DistanceKM,
			rec.ActiveMinutes, rec.SourceBatchID, rec.CreatedAt, rec.UpdatedAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert records: %w", err)
		}
	}
	return results.Close()
}

// ListByOwner returns all of an owner's records ordered by date
// ascending.
func (r *RecordRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.ActivityRecord, error) {
	const query = `SELECT ` + recordColumns + ` FROM activity_records WHERE owner_id=$1 ORDER BY date ASC`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// ListByDateRange returns an owner's records in [from, to], ordered by
// date ascending.
func (r *RecordRepository) ListByDateRange(ctx context.Context, ownerID string, from, to time.Time) ([]domain.ActivityRecord, error) {
	const query = `SELECT ` + recordColumns + ` FROM activity_records
        WHERE owner_id=$1 AND date>=$2 AND date<=$3 ORDER BY date ASC`
	rows, err := r.pool.Query(ctx, query, ownerID, domain.Day(from), domain.Day(to))
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]domain.ActivityRecord, error) {
	defer rows.Close()
	var records []domain.ActivityRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanRecord(row pgx.Row) (domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Date, &rec.Steps, &rec.DistanceKM,
		&rec.ActiveMinutes, &rec.SourceBatchID, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

// BatchRepository persists CSV batches together with their raw payloads.
type BatchRepository struct {
	pool *pgxpool.Pool
}

// NewBatchRepository constructs a BatchRepository.
func NewBatchRepository(pool *pgxpool.Pool) *BatchRepository {
	return &BatchRepository{pool: pool}
}

const batchColumns = `id, owner_id, file_name, status, row_count, error_count, attempts, created_at, updated_at`

// Create stores the batch row and its raw payload atomically.
func (b *BatchRepository) Create(ctx context.Context, batch domain.CsvBatch, payload []byte) error {
	const stmt = `INSERT INTO csv_batches (` + batchColumns + `, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err := b.pool.Exec(ctx, stmt,
		batch.ID, batch.OwnerID, batch.FileName, batch.Status, batch.RowCount,
		batch.ErrorCount, batch.Attempts, batch.CreatedAt, batch.UpdatedAt, payload)
	return err
}

// Get returns one of the owner's batches.
func (b *BatchRepository) Get(ctx context.Context, ownerID, batchID string) (*domain.CsvBatch, error) {
	const query = `SELECT ` + batchColumns + ` FROM csv_batches WHERE owner_id=$1 AND id=$2`

	row := b.pool.QueryRow(ctx, query, ownerID, batchID)
	batch, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// Payload returns the raw uploaded bytes for a batch.
func (b *BatchRepository) Payload(ctx context.Context, batchID string) ([]byte, error) {
	const query = `SELECT payload FROM csv_batches WHERE id=$1`
	var payload []byte
	if err := b.pool.QueryRow(ctx, query, batchID).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBatchNotFound
		}
		return nil, err
	}
	return payload, nil
}

// ListByOwner returns the owner's batches, newest first.
func (b *BatchRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.CsvBatch, error) {
	const query = `SELECT ` + batchColumns + ` FROM csv_batches WHERE owner_id=$1 ORDER BY created_at DESC`

	rows, err := b.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []domain.CsvBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// SetStatus moves a batch along its lifecycle. The expected current
// status guards against concurrent workers finalizing the same batch.
func (b *BatchRepository) SetStatus(ctx context.Context, batchID string, from, to domain.BatchStatus) error {
	if err := domain.ValidateTransition(from, to); err != nil {
		return err
	}

	const stmt = `UPDATE csv_batches SET status=$1, updated_at=now() WHERE id=$2 AND status=$3`
	tag, err := b.pool.Exec(ctx, stmt, to, batchID, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s is not in status %s", batchID, from)
	}
	return nil
}

// FinishIngest records the terminal outcome with row counts. Already
// terminal batches are left untouched so redelivered jobs cannot
// overwrite an outcome.
func (b *BatchRepository) FinishIngest(ctx context.Context, batchID string, status domain.BatchStatus, rowCount, errorCount int) error {
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}

	const stmt = `UPDATE csv_batches
        SET status=$1, row_count=$2, error_count=$3, updated_at=now()
        WHERE id=$4 AND status IN ('pending','processing')`

	tag, err := b.pool.Exec(ctx, stmt, status, rowCount, errorCount, batchID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s is already finalized", batchID)
	}
	return nil
}

// IncrementAttempts bumps and returns the attempt counter.
func (b *BatchRepository) IncrementAttempts(ctx context.Context, batchID string) (int, error) {
	const stmt = `UPDATE csv_batches SET attempts=attempts+1, updated_at=now() WHERE id=$1 RETURNING attempts`
	var attempts int
	if err := b.pool.QueryRow(ctx, stmt, batchID).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrBatchNotFound
		}
		return 0, err
	}
	return attempts, nil
}

// Delete removes one of the owner's batches. Ingested records survive;
// only the upload artifact is dropped.
func (b *BatchRepository) Delete(ctx context.Context, ownerID, batchID string) error {
	const stmt = `DELETE FROM csv_batches WHERE owner_id=$1 AND id=$2`
	tag, err := b.pool.Exec(ctx, stmt, ownerID, batchID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBatchNotFound
	}
	return nil
}

func scanBatch(row pgx.Row) (domain.CsvBatch, error) {
	var batch domain.CsvBatch
	err := row.Scan(&batch.ID, &batch.OwnerID, &batch.FileName, &batch.Status, &batch.RowCount,
		&batch.ErrorCount, &batch.Attempts, &batch.CreatedAt, &batch.UpdatedAt)
	return batch, err
}
