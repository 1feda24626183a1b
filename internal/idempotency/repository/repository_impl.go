package repository

import (
	"context"
	"errors"

	idempotencydomain "github.com/smallbiznis/bookpost/internal/idempotency/domain"
	"github.com/smallbiznis/bookpost/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db *gorm.DB
}

func Provide(conn *gorm.DB) idempotencydomain.Repository {
	return &repo{db: conn}
}

func (r *repo) WithTx(tx *gorm.DB) idempotencydomain.Repository {
	return &repo{db: tx}
}

func (r *repo) FindByHash(ctx context.Context, tenantID, payloadHash string) (*idempotencydomain.IdempotencyRecord, error) {
	var record idempotencydomain.IdempotencyRecord
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND payload_hash = ?", tenantID, payloadHash).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) InsertIfAbsent(ctx context.Context, record *idempotencydomain.IdempotencyRecord) (bool, error) {
	if record == nil {
		return false, errors.New("missing_idempotency_record")
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "payload_hash"}},
			DoNothing: true,
		}).
		Create(record)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
