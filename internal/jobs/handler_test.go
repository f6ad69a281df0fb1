package jobs

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/insights/internal/domain"
	"example.com/insights/internal/ingest"
)

func TestHandleRunsIngestToCompletion(t *testing.T) {
	store := newStubStore(domain.BatchPending)
	runner := &stubIngestor{}
	handler := newTestHandler(store, runner, 3)

	err := handler.Handle(context.Background(), IngestJob{BatchID: "batch-1", OwnerID: "owner-1"})
	require.NoError(t, err)
	require.Equal(t, 1, runner.calls)
	require.Equal(t, 1, store.attempts)
	require.Equal(t, domain.BatchProcessing, store.batch.Status)
	require.Equal(t, string(store.payload), runner.lastPayload)
}

func TestHandleSkipsTerminalBatch(t *testing.T) {
	store := newStubStore(domain.BatchProcessed)
	runner := &stubIngestor{}
	handler := newTestHandler(store, runner, 3)

	err := handler.Handle(context.Background(), IngestJob{BatchID: "batch-1", OwnerID: "owner-1"})
	require.NoError(t, err, "redelivered jobs for finished batches are committed")
	require.Zero(t, runner.calls)
}

func TestHandleSkipsMissingBatch(t *testing.T) {
	store := newStubStore(domain.BatchPending)
	store.missing = true
	runner := &stubIngestor{}
	handler := newTestHandler(store, runner, 3)

	err := handler.Handle(context.Background(), IngestJob{BatchID: "gone", OwnerID: "owner-1"})
	require.NoError(t, err, "deleted batches are not retried")
	require.Zero(t, runner.calls)
}

func TestHandleFailsPermanentlyOnInvalidHeader(t *testing.T) {
	store := newStubStore(domain.BatchPending)
	runner := &stubIngestor{errs: []error{ingest.ErrInvalidHeader}}
	handler := newTestHandler(store, runner, 3)

	err := handler.Handle(context.Background(), IngestJob{BatchID: "batch-1", OwnerID: "owner-1"})
	require.NoError(t, err)
	require.Equal(t, 1, runner.calls, "header errors are never retried")
	require.Equal(t, domain.BatchFailed, store.batch.Status)
}

func TestHandleRetriesTransientErrorsThenFails(t *testing.T) {
	store := newStubStore(domain.BatchPending)
	transient := errors.New("connection reset")
	runner := &stubIngestor{errs: []error{transient, transient, transient}}
	handler := newTestHandler(store, runner, 3)

	var sleeps int
	handler.sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	err := handler.Handle(context.Background(), IngestJob{BatchID: "batch-1", OwnerID: "owner-1"})
	require.NoError(t, err, "an exhausted batch is committed, not redelivered")
	require.Equal(t, 3, runner.calls)
	require.Equal(t, 2, sleeps, "backoff applies between attempts only")
	require.Equal(t, domain.BatchFailed, store.batch.Status)
}

func TestHandleRecoversOnRetry(t *testing.T) {
	store := newStubStore(domain.BatchPending)
	runner := &stubIngestor{errs: []error{errors.New("timeout"), nil}}
	handler := newTestHandler(store, runner, 3)

	err := handler.Handle(context.Background(), IngestJob{BatchID: "batch-1", OwnerID: "owner-1"})
	require.NoError(t, err)
	require.Equal(t, 2, runner.calls)
	require.Equal(t, 2, store.attempts)
	require.NotEqual(t, domain.BatchFailed, store.batch.Status)
}

func newTestHandler(store *stubStore, runner *stubIngestor, maxAttempts int) *IngestHandler {
	handler := NewIngestHandler(store, runner, maxAttempts, time.Minute, nil)
	handler.sleep = func(context.Context, time.Duration) error { return nil }
	return handler
}

type stubIngestor struct {
	calls       int
	errs        []error
	lastPayload string
}

func (s *stubIngestor) Ingest(_ context.Context, _ domain.CsvBatch, raw io.Reader) (ingest.Result, error) {
	payload, _ := io.ReadAll(raw)
	s.lastPayload = string(payload)
	var err error
	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}
	s.calls++
	if err != nil {
		return ingest.Result{}, err
	}
	return ingest.Result{Status: domain.BatchProcessed, RowCount: 1}, nil
}

type stubStore struct {
	batch    domain.CsvBatch
	payload  []byte
	attempts int
	missing  bool
}

func newStubStore(status domain.BatchStatus) *stubStore {
	return &stubStore{
		batch: domain.CsvBatch{
			ID:      "batch-1",
			OwnerID: "owner-1",
			Status:  status,
		},
		payload: []byte("user_id,date,steps,distance_km,active_minutes\n"),
	}
}

func (s *stubStore) Create(context.Context, domain.CsvBatch, []byte) error { return nil }

func (s *stubStore) Get(_ context.Context, ownerID, batchID string) (*domain.CsvBatch, error) {
	if s.missing || s.batch.ID != batchID || s.batch.OwnerID != ownerID {
		return nil, domain.ErrBatchNotFound
	}
	batch := s.batch
	return &batch, nil
}

func (s *stubStore) Payload(context.Context, string) ([]byte, error) {
	if s.missing {
		return nil, domain.ErrBatchNotFound
	}
	return s.payload, nil
}

func (s *stubStore) ListByOwner(context.Context, string) ([]domain.CsvBatch, error) {
	return []domain.CsvBatch{s.batch}, nil
}

func (s *stubStore) SetStatus(_ context.Context, _ string, from, to domain.BatchStatus) error {
	if err := domain.ValidateTransition(from, to); err != nil {
		return err
	}
	s.batch.Status = to
	return nil
}

func (s *stubStore) FinishIngest(_ context.Context, _ string, status domain.BatchStatus, rowCount, errorCount int) error {
	s.batch.Status = status
	s.batch.RowCount = rowCount
	s.batch.ErrorCount = errorCount
	return nil
}

func (s *stubStore) IncrementAttempts(context.Context, string) (int, error) {
	s.attempts++
	return s.attempts, nil
}

func (s *stubStore) Delete(context.Context, string, string) error { return nil }
