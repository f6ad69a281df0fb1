package jobs

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded ingest jobs.
type Handler interface {
	Handle(context.Context, IngestJob) error
}

// Processor pulls messages from Kafka, decodes them, and dispatches to
// a Handler.
type Processor struct {
	reader  Reader
	handler Handler
	log     *zap.SugaredLogger
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, log *zap.SugaredLogger) *Processor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Processor{reader: reader, handler: handler, log: log}
}

// Run starts a blocking loop that processes messages until the context
// is cancelled. A handler error leaves the message uncommitted so Kafka
// redelivers it; malformed messages are committed to avoid poison-pill
// loops.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.log.Warnw("fetch error", "error", err)
			continue
		}

		var job IngestJob
		if decodeErr := json.Unmarshal(msg.Value, &job); decodeErr != nil || job.BatchID == "" {
			p.log.Warnw("discarding malformed job",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", decodeErr)
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.log.Errorw("commit error after decode failure", "error", commitErr)
			}
			continue
		}

		if handleErr := p.handler.Handle(ctx, job); handleErr != nil {
			p.log.Errorw("handler error", "batch_id", job.BatchID, "error", handleErr)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.log.Errorw("commit error", "batch_id", job.BatchID, "error", commitErr)
		}
	}
}
