package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByHash(ctx context.Context, tenantID, payloadHash string) (*IdempotencyRecord, error)
	// InsertIfAbsent reports whether the row was inserted; false means the unique key already existed.
	InsertIfAbsent(ctx context.Context, record *IdempotencyRecord) (bool, error)
}
