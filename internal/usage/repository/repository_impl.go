package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/bookpost/internal/usage/domain"
	"github.com/smallbiznis/bookpost/pkg/db"
	"gorm.io/gorm"
)

const upsertReturningSQL = `INSERT INTO usage_counters (
	id, tenant_id, period, posted_count, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (tenant_id, period) DO UPDATE
SET posted_count = usage_counters.posted_count + excluded.posted_count,
    updated_at = excluded.updated_at
RETURNING posted_count`

const upsertMySQL = `INSERT INTO usage_counters (
	id, tenant_id, period, posted_count, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
	posted_count = posted_count + VALUES(posted_count),
	updated_at = VALUES(updated_at)`

type repo struct {
	db *gorm.DB
}

func Provide(conn *gorm.DB) usagedomain.Repository {
	return &repo{db: conn}
}

func (r *repo) WithTx(tx *gorm.DB) usagedomain.Repository {
	return &repo{db: tx}
}

func (r *repo) Add(ctx context.Context, id snowflake.ID, tenantID, period string, delta int64, now time.Time) (int64, error) {
	if db.IsDialect(r.db, db.DialectMySQL) {
		return r.addMySQL(ctx, id, tenantID, period, delta, now)
	}

	var count int64
	err := r.db.WithContext(ctx).
		Raw(upsertReturningSQL, id, tenantID, period, delta, now, now).
		Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MySQL has no RETURNING; the upsert's row lock is held until commit so the read sees our own write.
func (r *repo) addMySQL(ctx context.Context, id snowflake.ID, tenantID, period string, delta int64, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(upsertMySQL, id, tenantID, period, delta, now, now).Error; err != nil {
			return err
		}
		return tx.Raw(
			`SELECT posted_count FROM usage_counters WHERE tenant_id = ? AND period = ?`,
			tenantID,
			period,
		).Scan(&count).Error
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) Get(ctx context.Context, tenantID, period string) (int64, error) {
	var counter usagedomain.UsageCounter
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND period = ?", tenantID, period).
		First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return counter.PostedCount, nil
}
