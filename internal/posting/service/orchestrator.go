package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/bookpost/internal/clock"
	"github.com/smallbiznis/bookpost/internal/config"
	entitlementdomain "github.com/smallbiznis/bookpost/internal/entitlement/domain"
	idempotencydomain "github.com/smallbiznis/bookpost/internal/idempotency/domain"
	"github.com/smallbiznis/bookpost/internal/journal"
	"github.com/smallbiznis/bookpost/internal/ledgerclient"
	"github.com/smallbiznis/bookpost/internal/observability/logger"
	"github.com/smallbiznis/bookpost/internal/observability/metrics"
	postingdomain "github.com/smallbiznis/bookpost/internal/posting/domain"
	"github.com/smallbiznis/bookpost/internal/ratelimit"
	usagedomain "github.com/smallbiznis/bookpost/internal/usage/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultMaxBatchSize = 200
	defaultConcurrency  = 4
	defaultPollWait     = 250 * time.Millisecond
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Cfg         config.Config
	Clock       clock.Clock
	Gate        entitlementdomain.Gate
	Idempotency idempotencydomain.Service
	Usage       usagedomain.Service
	Ledger      ledgerclient.Client
	Limiter     *ratelimit.PostingLimiter `optional:"true"`
	Metrics     *metrics.Metrics          `optional:"true"`
	Posting     *metrics.PostingMetrics   `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	gate        entitlementdomain.Gate
	idempotency idempotencydomain.Service
	usage       usagedomain.Service
	ledger      ledgerclient.Client
	limiter     *ratelimit.PostingLimiter
	metrics     *metrics.Metrics
	posting     *metrics.PostingMetrics
	tracer      trace.Tracer

	maxBatchSize int
	concurrency  int
	pollWait     time.Duration
}

func NewService(p ServiceParam) postingdomain.Service {
	maxBatch := p.Cfg.Posting.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatchSize
	}
	concurrency := p.Cfg.Posting.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	pollWait := p.Cfg.Posting.InFlightPollWait
	if pollWait <= 0 {
		pollWait = defaultPollWait
	}

	return &Service{
		db:           p.DB,
		log:          p.Log.Named("posting.service"),
		clock:        p.Clock,
		gate:         p.Gate,
		idempotency:  p.Idempotency,
		usage:        p.Usage,
		ledger:       p.Ledger,
		limiter:      p.Limiter,
		metrics:      p.Metrics,
		posting:      p.Posting,
		tracer:       otel.Tracer("bookpost/posting"),
		maxBatchSize: maxBatch,
		concurrency:  concurrency,
		pollWait:     pollWait,
	}
}

func (s *Service) Submit(ctx context.Context, req postingdomain.Request) (postingdomain.BatchResponse, error) {
	started := time.Now()
	tenantID := strings.TrimSpace(req.TenantID)

	ctx, span := s.tracer.Start(ctx, "posting.submit", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Int("posting.items", len(req.Items)),
	))
	defer span.End()

	if err := s.validateRequest(tenantID, req.Items); err != nil {
		span.SetStatus(codes.Error, "invalid_request")
		return postingdomain.BatchResponse{}, err
	}

	log := logger.WithContext(ctx, s.log).With(zap.String("tenant_id", tenantID))

	decision, err := s.gate.Admit(ctx, tenantID, len(req.Items))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "entitlement_unavailable")
		s.posting.IncStoreFault(metrics.StageEntitlement, err)
		s.posting.ObserveBatch("failed", len(req.Items), time.Since(started))
		log.Error("entitlement check failed", zap.Error(err))
		return postingdomain.BatchResponse{}, fmt.Errorf("%w: %s: %w", postingdomain.ErrStoreUnavailable, metrics.StageEntitlement, err)
	}
	if !decision.Allowed {
		denied := &postingdomain.EntitlementDeniedError{TenantID: tenantID, Decision: decision}
		span.SetAttributes(attribute.String("posting.denial_reason", string(denied.Reason())))
		s.metrics.RecordEntitlementDenied(ctx, string(denied.Reason()))
		s.posting.ObserveBatch("denied", len(req.Items), time.Since(started))
		return postingdomain.BatchResponse{}, denied
	}

	results := make([]postingdomain.Result, len(req.Items))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for i, item := range req.Items {
		group.Go(func() error {
			res, err := s.postItem(gctx, tenantID, decision.Period, item)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store_unavailable")
		s.posting.ObserveBatch("failed", len(req.Items), time.Since(started))
		log.Error("posting batch aborted", zap.Error(err))
		return postingdomain.BatchResponse{}, err
	}

	summary := postingdomain.Summarize(results)
	span.SetAttributes(
		attribute.Int("posting.posted", summary.Posted),
		attribute.Int("posting.errors", summary.Errors),
		attribute.Int("posting.idempotent", summary.Idempotent),
	)
	s.posting.ObserveBatch("completed", len(req.Items), time.Since(started))
	log.Info("posting batch completed",
		zap.String("period", decision.Period),
		zap.Int("total", summary.Total),
		zap.Int("posted", summary.Posted),
		zap.Int("errors", summary.Errors),
		zap.Int("idempotent", summary.Idempotent),
	)

	return postingdomain.BatchResponse{Results: results, Summary: summary}, nil
}

func (s *Service) validateRequest(tenantID string, items []postingdomain.Item) error {
	if tenantID == "" {
		return postingdomain.ErrInvalidTenant
	}
	if len(items) == 0 {
		return postingdomain.ErrEmptyBatch
	}
	if len(items) > s.maxBatchSize {
		return fmt.Errorf("%w: %d items exceeds the limit of %d", postingdomain.ErrBatchTooLarge, len(items), s.maxBatchSize)
	}
	for i, item := range items {
		if strings.TrimSpace(item.TxnID) == "" {
			return fmt.Errorf("%w: item %d", postingdomain.ErrMissingTxnID, i)
		}
	}
	return nil
}

// postItem runs one item to completion. A returned error is an infrastructure fault
// that aborts the batch; everything else is reported through the Result.
func (s *Service) postItem(ctx context.Context, tenantID, period string, item postingdomain.Item) (postingdomain.Result, error) {
	txnID := strings.TrimSpace(item.TxnID)
	hash := journal.PayloadHash(tenantID, item.JournalLines)
	log := s.log.With(
		zap.String("tenant_id", tenantID),
		zap.String("txn_id", txnID),
		zap.String("payload_hash", hash),
	)

	if verr := journal.Validate(item.JournalLines); verr != nil {
		log.Info("journal entry rejected", zap.String("error_code", string(verr.Code)), zap.String("reason", verr.Message))
		return s.failed(ctx, txnID, postingdomain.ErrorCode(verr.Code), verr.Message), nil
	}

	docID, found, err := s.idempotency.Lookup(ctx, tenantID, hash)
	if err != nil {
		return postingdomain.Result{}, s.storeFault(metrics.StageLookup, err)
	}
	if found {
		return s.replayed(ctx, txnID, docID), nil
	}

	release, docID, found, err := s.guardInflight(ctx, log, tenantID, hash)
	if err != nil {
		return postingdomain.Result{}, err
	}
	defer release()
	if found {
		return s.replayed(ctx, txnID, docID), nil
	}

	entry := ledgerclient.JournalEntry{
		TenantID: tenantID,
		TxnID:    txnID,
		Date:     s.clock.Now(),
		Memo:     strings.TrimSpace(item.Memo),
		Lines:    item.JournalLines,
	}
	docID, err = s.ledger.Submit(ctx, entry, hash)
	if err != nil {
		ledgerErr := ledgerclient.AsLedgerError(err)
		code := postingdomain.CodeLedgerUnavailable
		if ledgerErr.Kind == ledgerclient.KindValidation {
			code = postingdomain.CodeLedgerValidation
		}
		return s.failed(ctx, txnID, code, ledgerErr.Message), nil
	}

	var recorded idempotencydomain.RecordResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := s.idempotency.WithTx(tx).RecordIfAbsent(ctx, idempotencydomain.RecordRequest{
			TenantID:      tenantID,
			PayloadHash:   hash,
			ExternalDocID: docID,
			TxnID:         txnID,
			Metadata: map[string]any{
				"provider": s.ledger.Provider(),
				"period":   period,
			},
		})
		if err != nil {
			return s.storeFault(metrics.StageRecord, err)
		}
		recorded = res
		if !res.Created {
			return nil
		}
		if _, err := s.usage.WithTx(tx).Increment(ctx, tenantID, period, 1); err != nil {
			return s.storeFault(metrics.StageIncrement, err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, postingdomain.ErrStoreUnavailable) {
			err = s.storeFault(metrics.StageRecord, err)
		}
		// the ledger document exists; a resubmission replays it through the provider key
		log.Error("posted entry could not be recorded", zap.String("external_doc_id", docID), zap.Error(err))
		return postingdomain.Result{}, err
	}

	if !recorded.Created {
		// 🔁 a concurrent attempt recorded first
		return s.replayed(ctx, txnID, recorded.ExternalDocID), nil
	}

	s.metrics.RecordPostingItem(ctx, "posted")
	log.Debug("journal entry posted", zap.String("external_doc_id", docID))
	return postingdomain.Posted(txnID, docID, false), nil
}

// guardInflight holds the payload lock while the ledger call runs. When another attempt
// holds it, the lookup is polled until that attempt records or the lock expires.
func (s *Service) guardInflight(ctx context.Context, log *zap.Logger, tenantID, hash string) (func(), string, bool, error) {
	noop := func() {}
	if s.limiter == nil {
		return noop, "", false, nil
	}

	started := time.Now()
	deadline := started.Add(s.limiter.LockTTL())
	waited := false
	for {
		token, acquired, err := s.limiter.TryLockPayload(ctx, tenantID, hash)
		if err != nil {
			log.Warn("in-flight guard unavailable, submitting unguarded", zap.Error(err))
			return noop, "", false, nil
		}
		if acquired {
			release := func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				if err := s.limiter.ReleasePayload(releaseCtx, tenantID, hash, token); err != nil {
					log.Warn("failed to release in-flight guard", zap.Error(err))
				}
			}
			if !waited {
				return release, "", false, nil
			}
			s.posting.ObserveInflightWait(time.Since(started))
			// the holder may have recorded just before releasing
			docID, found, err := s.idempotency.Lookup(ctx, tenantID, hash)
			if err != nil {
				release()
				return noop, "", false, s.storeFault(metrics.StageLookup, err)
			}
			if found {
				release()
				return noop, docID, true, nil
			}
			return release, "", false, nil
		}

		if !time.Now().Before(deadline) {
			log.Warn("in-flight guard still held after lock ttl, submitting unguarded")
			s.posting.ObserveInflightWait(time.Since(started))
			return noop, "", false, nil
		}

		waited = true
		timer := time.NewTimer(s.pollWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return noop, "", false, s.storeFault(metrics.StageInflight, ctx.Err())
		case <-timer.C:
		}

		docID, found, err := s.idempotency.Lookup(ctx, tenantID, hash)
		if err != nil {
			return noop, "", false, s.storeFault(metrics.StageLookup, err)
		}
		if found {
			s.posting.ObserveInflightWait(time.Since(started))
			return noop, docID, true, nil
		}
	}
}

func (s *Service) replayed(ctx context.Context, txnID, docID string) postingdomain.Result {
	s.metrics.RecordPostingItem(ctx, "idempotent")
	return postingdomain.Posted(txnID, docID, true)
}

func (s *Service) failed(ctx context.Context, txnID string, code postingdomain.ErrorCode, message string) postingdomain.Result {
	s.metrics.RecordPostingItem(ctx, "error")
	s.metrics.RecordPostingError(ctx, string(code))
	return postingdomain.Failed(txnID, code, message)
}

func (s *Service) storeFault(stage string, err error) error {
	s.posting.IncStoreFault(stage, err)
	return fmt.Errorf("%w: %s: %w", postingdomain.ErrStoreUnavailable, stage, err)
}
