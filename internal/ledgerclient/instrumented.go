package ledgerclient

import (
	"context"
	"time"

	"github.com/smallbiznis/bookpost/internal/observability/logger"
	"github.com/smallbiznis/bookpost/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	outcomeOK          = "ok"
	outcomeValidation  = "validation"
	outcomeUnavailable = "unavailable"
)

type instrumented struct {
	next    Client
	tracer  trace.Tracer
	log     *zap.Logger
	metrics *metrics.Metrics
	posting *metrics.PostingMetrics
}

// Instrumented wraps next with a client span, submit metrics and failure logging.
func Instrumented(next Client, log *zap.Logger, m *metrics.Metrics, pm *metrics.PostingMetrics) Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &instrumented{
		next:    next,
		tracer:  otel.Tracer("bookpost/ledger"),
		log:     log.Named("ledger.client"),
		metrics: m,
		posting: pm,
	}
}

func (c *instrumented) Provider() string { return c.next.Provider() }

func (c *instrumented) Submit(ctx context.Context, entry JournalEntry, idempotencyKey string) (string, error) {
	provider := c.next.Provider()
	ctx, span := c.tracer.Start(ctx, "ledger.submit",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ledger.provider", provider),
			attribute.Int("ledger.lines", len(entry.Lines)),
		),
	)
	defer span.End()

	start := time.Now()
	docID, err := c.next.Submit(ctx, entry, idempotencyKey)
	elapsed := time.Since(start)

	outcome := outcomeOK
	if err != nil {
		ledgerErr := AsLedgerError(err)
		outcome = string(ledgerErr.Kind)
		span.SetStatus(codes.Error, outcome)
		span.SetAttributes(attribute.Int("http.status_code", ledgerErr.StatusCode))

		log := logger.WithContext(ctx, c.log)
		fields := []zap.Field{
			zap.String("provider", provider),
			zap.String("txn_id", entry.TxnID),
			zap.String("kind", string(ledgerErr.Kind)),
			zap.Int("status_code", ledgerErr.StatusCode),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
			zap.String("message", ledgerErr.Message),
		}
		if ledgerErr.Kind == KindUnavailable {
			log.Warn("ledger submit failed", fields...)
		} else {
			log.Info("ledger rejected entry", fields...)
		}
		err = ledgerErr
	} else {
		span.SetAttributes(attribute.String("ledger.doc_id", docID))
	}

	c.metrics.RecordLedgerSubmit(ctx, provider, outcome)
	c.posting.ObserveLedgerSubmit(provider, outcome, elapsed)
	return docID, err
}
