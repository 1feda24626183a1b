package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bookpost/internal/clock"
	idempotencydomain "github.com/smallbiznis/bookpost/internal/idempotency/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  idempotencydomain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  idempotencydomain.Repository
}

func NewService(p ServiceParam) idempotencydomain.Service {
	return &Service{
		log:   p.Log.Named("idempotency.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) WithTx(tx *gorm.DB) idempotencydomain.Service {
	clone := *s
	clone.repo = s.repo.WithTx(tx)
	return &clone
}

func (s *Service) Lookup(ctx context.Context, tenantID, payloadHash string) (string, bool, error) {
	tenantID, payloadHash, err := normalizeKey(tenantID, payloadHash)
	if err != nil {
		return "", false, err
	}
	record, err := s.repo.FindByHash(ctx, tenantID, payloadHash)
	if err != nil {
		return "", false, err
	}
	if record == nil {
		return "", false, nil
	}
	return record.ExternalDocID, true, nil
}

func (s *Service) RecordIfAbsent(ctx context.Context, req idempotencydomain.RecordRequest) (idempotencydomain.RecordResult, error) {
	tenantID, payloadHash, err := normalizeKey(req.TenantID, req.PayloadHash)
	if err != nil {
		return idempotencydomain.RecordResult{}, err
	}
	docID := strings.TrimSpace(req.ExternalDocID)
	if docID == "" {
		return idempotencydomain.RecordResult{}, idempotencydomain.ErrInvalidExternalDocID
	}

	record := &idempotencydomain.IdempotencyRecord{
		ID:            s.genID.Generate(),
		TenantID:      tenantID,
		PayloadHash:   payloadHash,
		ExternalDocID: docID,
		TxnID:         strings.TrimSpace(req.TxnID),
		CreatedAt:     s.clock.Now(),
	}
	if req.Metadata != nil {
		record.Metadata = datatypes.JSONMap(req.Metadata)
	}

	inserted, err := s.repo.InsertIfAbsent(ctx, record)
	if err != nil {
		return idempotencydomain.RecordResult{}, err
	}
	if inserted {
		return idempotencydomain.RecordResult{Created: true, ExternalDocID: docID}, nil
	}

	// 🔁 lost the race → report the winner
	existing, err := s.repo.FindByHash(ctx, tenantID, payloadHash)
	if err != nil {
		return idempotencydomain.RecordResult{}, err
	}
	if existing == nil {
		return idempotencydomain.RecordResult{}, idempotencydomain.ErrRecordVanished
	}
	if existing.ExternalDocID != docID {
		s.log.Warn("idempotency race resolved to existing document",
			zap.String("tenant_id", tenantID),
			zap.String("payload_hash", payloadHash),
			zap.String("existing_doc_id", existing.ExternalDocID),
			zap.String("orphan_doc_id", docID),
		)
	}
	return idempotencydomain.RecordResult{Created: false, ExternalDocID: existing.ExternalDocID}, nil
}

func normalizeKey(tenantID, payloadHash string) (string, string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", "", idempotencydomain.ErrInvalidTenant
	}
	payloadHash = strings.ToLower(strings.TrimSpace(payloadHash))
	if payloadHash == "" {
		return "", "", idempotencydomain.ErrInvalidPayloadHash
	}
	return tenantID, payloadHash, nil
}
