package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Add(ctx context.Context, id snowflake.ID, tenantID, period string, delta int64, now time.Time) (int64, error)
	Get(ctx context.Context, tenantID, period string) (int64, error)
}
