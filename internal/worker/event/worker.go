// Package event consumes provider call events from Kafka and hands them to the
// lifecycle handler.
package event

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/lead-engagement/internal/queue"
	apperrors "github.com/acme/lead-engagement/pkg/errors"
	"github.com/acme/lead-engagement/pkg/logger"
)

// MessageReader is the subset of *kafka.Reader the worker needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventHandler applies one call event.
type EventHandler interface {
	Handle(ctx context.Context, evt queue.CallEvent) error
}

// Worker consumes call events. Every message is committed after one attempt; failed
// events are logged and left to the reschedule batch.
type Worker struct {
	reader  MessageReader
	handler EventHandler
	logger  *logger.Logger
}

// New creates a new event worker.
func New(reader MessageReader, handler EventHandler, log *logger.Logger) *Worker {
	return &Worker{reader: reader, handler: handler, logger: log}
}

// Run processes events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	defer w.reader.Close()

	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("event worker: fetch", zap.Error(err))
			continue
		}

		w.process(ctx, msg)

		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("event worker: commit", zap.Error(err))
		}
	}
}

func (w *Worker) process(ctx context.Context, msg kafka.Message) {
	var evt queue.CallEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		w.logger.Error("event worker: unmarshal", zap.Error(err), zap.Int64("offset", msg.Offset))
		return
	}

	tracer := otel.Tracer("leads.eventworker")
	sctx, span := tracer.Start(ctx, "call.event", trace.WithAttributes(
		attribute.String("event", evt.Event),
		attribute.String("call.id", evt.Call.CallID),
		attribute.Int("partition", msg.Partition),
	))
	defer span.End()

	err := w.handler.Handle(sctx, evt)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrDuplicateEvent), errors.Is(err, apperrors.ErrUnknownLead):
		// already logged by the handler
	default:
		span.RecordError(err)
		w.logger.WithContext(sctx).Error("event worker: handle",
			zap.String("event", evt.Event),
			zap.String("call_id", evt.Call.CallID),
			zap.Error(err))
	}
}
