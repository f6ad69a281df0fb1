package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"example.com/insights/internal/domain"
	"example.com/insights/internal/ingest"
	"example.com/insights/internal/observability"
)

// ingestor is the ingestion run the handler drives.
type ingestor interface {
	Ingest(ctx context.Context, batch domain.CsvBatch, raw io.Reader) (ingest.Result, error)
}

// IngestHandler executes queued ingest jobs with bounded retries. Only
// store failures are retried; a bad header fails the batch permanently
// on the first attempt.
type IngestHandler struct {
	batches     domain.BatchStore
	ingestor    ingestor
	maxAttempts int
	backoff     time.Duration
	log         *zap.SugaredLogger

	// sleep is swapped out in tests.
	sleep func(context.Context, time.Duration) error
}

// NewIngestHandler constructs an IngestHandler.
func NewIngestHandler(batches domain.BatchStore, ing ingestor, maxAttempts int, backoff time.Duration, log *zap.SugaredLogger) *IngestHandler {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &IngestHandler{
		batches:     batches,
		ingestor:    ing,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		log:         log,
		sleep:       sleepCtx,
	}
}

// Handle runs one job to a terminal batch status. A nil return commits
// the message; an error leaves it for redelivery, so every permanent
// outcome (done, deleted batch, exhausted retries) returns nil.
func (h *IngestHandler) Handle(ctx context.Context, job IngestJob) error {
	log := h.log.With("batch_id", job.BatchID, "owner_id", job.OwnerID)

	batch, err := h.batches.Get(ctx, job.OwnerID, job.BatchID)
	if errors.Is(err, domain.ErrBatchNotFound) {
		log.Warnw("skipping job for missing batch")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	if batch.Status.Terminal() {
		log.Infow("skipping already finalized batch", "status", batch.Status)
		return nil
	}

	payload, err := h.batches.Payload(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("load payload: %w", err)
	}

	if batch.Status == domain.BatchPending {
		if err := h.batches.SetStatus(ctx, batch.ID, domain.BatchPending, domain.BatchProcessing); err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}
		batch.Status = domain.BatchProcessing
	}

	for {
		attempts, err := h.batches.IncrementAttempts(ctx, batch.ID)
		if err != nil {
			return fmt.Errorf("increment attempts: %w", err)
		}

		_, runErr := h.ingestor.Ingest(ctx, *batch, bytes.NewReader(payload))
		if runErr == nil {
			return nil
		}

		if errors.Is(runErr, ingest.ErrInvalidHeader) {
			log.Warnw("failing batch on invalid header")
			return h.fail(ctx, batch.ID)
		}

		if attempts >= h.maxAttempts {
			log.Errorw("failing batch after exhausted retries", "attempts", attempts, "error", runErr)
			return h.fail(ctx, batch.ID)
		}

		log.Warnw("retrying ingestion", "attempt", attempts, "error", runErr)
		observability.RecordJobRetry()
		if err := h.sleep(ctx, h.backoff); err != nil {
			return err
		}
	}
}

func (h *IngestHandler) fail(ctx context.Context, batchID string) error {
	if err := h.batches.FinishIngest(ctx, batchID, domain.BatchFailed, 0, 0); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	observability.RecordBatchOutcome(string(domain.BatchFailed))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
