package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Service interface {
	// Increment atomically adds delta to the (tenant, period) counter and returns the new count.
	Increment(ctx context.Context, tenantID, period string, delta int64) (int64, error)
	Read(ctx context.Context, tenantID, period string) (int64, error)
	// WithTx binds the service to an open transaction.
	WithTx(tx *gorm.DB) Service
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidPeriod = errors.New("invalid_period")
	ErrInvalidDelta  = errors.New("invalid_delta")
)
