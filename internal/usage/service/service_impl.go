package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bookpost/internal/clock"
	usagedomain "github.com/smallbiznis/bookpost/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  usagedomain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  usagedomain.Repository
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		log:   p.Log.Named("usage.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) WithTx(tx *gorm.DB) usagedomain.Service {
	clone := *s
	clone.repo = s.repo.WithTx(tx)
	return &clone
}

func (s *Service) Increment(ctx context.Context, tenantID, period string, delta int64) (int64, error) {
	tenantID, period, err := normalizeKey(tenantID, period)
	if err != nil {
		return 0, err
	}
	if delta < 0 {
		return 0, usagedomain.ErrInvalidDelta
	}
	if delta == 0 {
		return s.repo.Get(ctx, tenantID, period)
	}

	count, err := s.repo.Add(ctx, s.genID.Generate(), tenantID, period, delta, s.clock.Now())
	if err != nil {
		return 0, err
	}
	s.log.Debug("usage counter incremented",
		zap.String("tenant_id", tenantID),
		zap.String("period", period),
		zap.Int64("delta", delta),
		zap.Int64("posted_count", count),
	)
	return count, nil
}

func (s *Service) Read(ctx context.Context, tenantID, period string) (int64, error) {
	tenantID, period, err := normalizeKey(tenantID, period)
	if err != nil {
		return 0, err
	}
	return s.repo.Get(ctx, tenantID, period)
}

func normalizeKey(tenantID, period string) (string, string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", "", usagedomain.ErrInvalidTenant
	}
	period = strings.TrimSpace(period)
	if period == "" {
		return "", "", usagedomain.ErrInvalidPeriod
	}
	return tenantID, period, nil
}
