// Package domain defines the core types and business logic of the
// insights service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoActivityData is returned when an owner has no records at all.
	ErrNoActivityData = errors.New("no activity data available")
	// ErrBatchNotFound is returned when a CSV batch cannot be located.
	ErrBatchNotFound = errors.New("csv batch not found")
	// ErrRecordNotFound is returned when no record exists for a date.
	ErrRecordNotFound = errors.New("activity record not found")
)

// ActivityRecord is one owner's metrics for one calendar date.
// Uniqueness over (OwnerID, Date) is enforced by the store; a later
// ingestion of the same date updates the row in place.
type ActivityRecord struct {
	ID            string
	OwnerID       string
	Date          time.Time
	Steps         int
	DistanceKM    float64
	ActiveMinutes int
	SourceBatchID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Day truncates a timestamp to its UTC calendar date.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// BatchStatus is the processing state of a CSV upload.
type BatchStatus string

const (
	BatchPending            BatchStatus = "pending"
	BatchProcessing         BatchStatus = "processing"
	BatchProcessed          BatchStatus = "processed"
	BatchPartiallyProcessed BatchStatus = "partially_processed"
	BatchFailed             BatchStatus = "failed"
)

// Terminal reports whether a status can never change again.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchProcessed, BatchPartiallyProcessed, BatchFailed:
		return true
	}
	return false
}

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchPending:    {BatchProcessing, BatchFailed},
	BatchProcessing: {BatchProcessed, BatchPartiallyProcessed, BatchFailed},
}

// ValidateTransition enforces the monotonic batch lifecycle:
// pending -> processing -> {processed, partially_processed, failed},
// with pending -> failed allowed for permanently invalid uploads.
func ValidateTransition(from, to BatchStatus) error {
	for _, allowed := range batchTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("invalid batch transition %s -> %s", from, to)
}

// CsvBatch is one upload attempt and its processing outcome.
type CsvBatch struct {
	ID         string
	OwnerID    string
	FileName   string
	Status     BatchStatus
	RowCount   int
	ErrorCount int
	Attempts   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RecordStore captures persistence operations on activity records.
type RecordStore interface {
	FindByOwnerAndDate(ctx context.Context, ownerID string, date time.Time) (*ActivityRecord, error)
	Update(ctx context.Context, record ActivityRecord) error
	InsertMany(ctx context.Context, records []ActivityRecord) error
	ListByOwner(ctx context.Context, ownerID string) ([]ActivityRecord, error)
	ListByDateRange(ctx context.Context, ownerID string, from, to time.Time) ([]ActivityRecord, error)
}

// BatchStore captures persistence operations on CSV batches.
type BatchStore interface {
	Create(ctx context.Context, batch CsvBatch, payload []byte) error
	Get(ctx context.Context, ownerID, batchID string) (*CsvBatch, error)
	Payload(ctx context.Context, batchID string) ([]byte, error)
	ListByOwner(ctx context.Context, ownerID string) ([]CsvBatch, error)
	// SetStatus validates the transition before writing.
	SetStatus(ctx context.Context, batchID string, from, to BatchStatus) error
	// FinishIngest records the terminal outcome together with row counts.
	FinishIngest(ctx context.Context, batchID string, status BatchStatus, rowCount, errorCount int) error
	IncrementAttempts(ctx context.Context, batchID string) (int, error)
	Delete(ctx context.Context, ownerID, batchID string) error
}
