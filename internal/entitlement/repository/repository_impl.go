package repository

import (
	"context"
	"errors"

	entitlementdomain "github.com/smallbiznis/bookpost/internal/entitlement/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(conn *gorm.DB) entitlementdomain.Repository {
	return &repo{db: conn}
}

func (r *repo) FindByTenant(ctx context.Context, tenantID string) (*entitlementdomain.Entitlement, error) {
	var ent entitlementdomain.Entitlement
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ent, nil
}
