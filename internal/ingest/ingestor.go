// Package ingest turns untrusted CSV uploads into validated activity
// records, one row per (owner, date).
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/insights/internal/domain"
	"example.com/insights/internal/observability"
)

// ErrInvalidHeader rejects the whole batch before any row is processed.
// It is surfaced to the uploader as a hard error and never retried.
var ErrInvalidHeader = errors.New("invalid csv header: expected user_id,date,steps,distance_km,active_minutes")

// PlaceholderOwnerToken in the user_id column is replaced by the batch
// owner's id. Sample exports use it so one file serves any account.
const PlaceholderOwnerToken = "{user_id}"

// insertFlushSize bounds memory on large uploads; queued inserts are
// flushed to the store every time the queue reaches this size.
const insertFlushSize = 1000

var expectedHeader = [...]string{"user_id", "date", "steps", "distance_km", "active_minutes"}

// dateLayouts are tried in order; the first successful parse wins.
var dateLayouts = [...]string{"2006-01-02", "01/02/2006", "02/01/2006"}

// Row rejection reasons, logged once per rejected row.
const (
	reasonTooFewColumns     = "fewer than 5 columns"
	reasonOwnershipMismatch = "user_id does not match batch owner"
	reasonUnparseableDate   = "unparseable date"
)

// Result is the coarse outcome of one ingestion run.
type Result struct {
	Status     domain.BatchStatus
	RowCount   int
	ErrorCount int
}

// Ingestor validates and parses an uploaded record batch and reconciles
// it against existing records.
type Ingestor struct {
	records domain.RecordStore
	batches domain.BatchStore
	log     *zap.SugaredLogger
}

// NewIngestor constructs an Ingestor.
func NewIngestor(records domain.RecordStore, batches domain.BatchStore, log *zap.SugaredLogger) *Ingestor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Ingestor{records: records, batches: batches, log: log}
}

// Ingest processes the raw CSV for the given batch. Row errors are
// counted and logged but do not stop the run; the outcome is reported
// through the batch status (processed, partially_processed, failed).
// A header mismatch returns ErrInvalidHeader without touching the
// batch; a store failure aborts the run and leaves retry handling to
// the caller.
func (i *Ingestor) Ingest(ctx context.Context, batch domain.CsvBatch, raw io.Reader) (Result, error) {
	reader := csv.NewReader(raw)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	if err := readHeader(reader); err != nil {
		return Result{}, err
	}

	log := i.log.With("batch_id", batch.ID, "owner_id", batch.OwnerID)

	var (
		queued   []domain.ActivityRecord
		rowCount int
		errCount int
		rowNum   int
	)

	now := time.Now().UTC()

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// encoding/csv only errors here on malformed quoting; with
			// FieldsPerRecord=-1 short rows come through as records.
			rowNum++
			errCount++
			log.Warnw("rejected csv row", "row", rowNum, "reason", err.Error())
			continue
		}
		rowNum++

		if len(row) > 0 && strings.HasPrefix(strings.TrimSpace(row[0]), "#") {
			continue
		}

		record, reason := parseRow(row, batch, now)
		if reason != "" {
			errCount++
			observability.RecordRowRejected(reason)
			log.Warnw("rejected csv row", "row", rowNum, "reason", reason)
			continue
		}

		existing, err := i.records.FindByOwnerAndDate(ctx, batch.OwnerID, record.Date)
		if err != nil {
			return Result{}, i.abort(log, fmt.Errorf("lookup (owner,date): %w", err))
		}
		if existing != nil {
			existing.Steps = record.Steps
			existing.DistanceKM = record.DistanceKM
			existing.ActiveMinutes = record.ActiveMinutes
			existing.SourceBatchID = batch.ID
			existing.UpdatedAt = now
			if err := i.records.Update(ctx, *existing); err != nil {
				return Result{}, i.abort(log, fmt.Errorf("update record: %w", err))
			}
		} else {
			queued = append(queued, record)
			if len(queued) >= insertFlushSize {
				if err := i.records.InsertMany(ctx, queued); err != nil {
					return Result{}, i.abort(log, fmt.Errorf("insert chunk of %d: %w", len(queued), err))
				}
				queued = queued[:0]
			}
		}
		rowCount++
		observability.RecordRowIngested()
	}

	if len(queued) > 0 {
		if err := i.records.InsertMany(ctx, queued); err != nil {
			return Result{}, i.abort(log, fmt.Errorf("insert chunk of %d: %w", len(queued), err))
		}
	}

	status := finalStatus(rowCount, errCount)
	if err := i.batches.FinishIngest(ctx, batch.ID, status, rowCount, errCount); err != nil {
		return Result{}, fmt.Errorf("finish batch: %w", err)
	}

	observability.RecordBatchOutcome(string(status))
	log.Infow("csv batch ingested", "status", status, "rows", rowCount, "errors", errCount)

	return Result{Status: status, RowCount: rowCount, ErrorCount: errCount}, nil
}

// abort logs the store failure and stops the run without finalizing
// the batch, so the caller can retry the whole ingestion.
func (i *Ingestor) abort(log *zap.SugaredLogger, cause error) error {
	log.Errorw("ingestion aborted on store failure", "error", cause)
	return cause
}

func finalStatus(rows, errs int) domain.BatchStatus {
	switch {
	case errs == 0:
		return domain.BatchProcessed
	case rows > 0:
		return domain.BatchPartiallyProcessed
	default:
		return domain.BatchFailed
	}
}

// parseRow validates one data row, returning a rejection reason for
// bad rows and the parsed record otherwise.
func parseRow(row []string, batch domain.CsvBatch, now time.Time) (domain.ActivityRecord, string) {
	if len(row) < len(expectedHeader) {
		return domain.ActivityRecord{}, reasonTooFewColumns
	}

	ownerValue := strings.TrimSpace(row[0])
	if ownerValue == PlaceholderOwnerToken {
		ownerValue = batch.OwnerID
	}
	if ownerValue != batch.OwnerID {
		return domain.ActivityRecord{}, reasonOwnershipMismatch
	}

	date, ok := parseDate(strings.TrimSpace(row[1]))
	if !ok {
		return domain.ActivityRecord{}, reasonUnparseableDate
	}

	return domain.ActivityRecord{
		ID:            uuid.NewString(),
		OwnerID:       batch.OwnerID,
		Date:          date,
		Steps:         coerceInt(row[2]),
		DistanceKM:    coerceFloat(row[3]),
		ActiveMinutes: coerceInt(row[4]),
		SourceBatchID: batch.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, ""
}

func parseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return domain.Day(parsed), true
		}
	}
	return time.Time{}, false
}

// coerceInt mirrors the source feed's tolerance: invalid numeric text
// becomes 0 rather than rejecting the row. Values are clamped to the
// non-negative range the data model requires.
func coerceInt(value string) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

func coerceFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

// readHeader consumes leading comment lines and validates the header
// row in both name and order.
func readHeader(reader *csv.Reader) error {
	for {
		row, err := reader.Read()
		if err != nil {
			return ErrInvalidHeader
		}
		if len(row) > 0 && strings.HasPrefix(strings.TrimSpace(row[0]), "#") {
			continue
		}
		if len(row) != len(expectedHeader) {
			return ErrInvalidHeader
		}
		for idx, name := range expectedHeader {
			if strings.TrimSpace(row[idx]) != name {
				return ErrInvalidHeader
			}
		}
		return nil
	}
}

// CheckHeader validates only the header of an upload. The API layer
// runs it synchronously so a malformed file is rejected before a batch
// is created or queued.
func CheckHeader(raw io.Reader) error {
	reader := csv.NewReader(raw)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return readHeader(reader)
}
