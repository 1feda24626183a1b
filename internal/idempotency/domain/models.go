// Package domain contains persistence models for posting idempotency records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// IdempotencyRecord remembers the external document created for a tenant's payload hash.
// At most one row exists per (tenant_id, payload_hash) and rows are never updated.
type IdempotencyRecord struct {
	ID            snowflake.ID      `gorm:"primaryKey"`
	TenantID      string            `gorm:"type:varchar(128);not null;uniqueIndex:ux_idempotency_records_tenant_hash,priority:1"`
	PayloadHash   string            `gorm:"type:varchar(64);not null;uniqueIndex:ux_idempotency_records_tenant_hash,priority:2"`
	ExternalDocID string            `gorm:"type:varchar(128);not null"`
	TxnID         string            `gorm:"type:varchar(128)"`
	Metadata      datatypes.JSONMap `gorm:"type:json"`
	CreatedAt     time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (IdempotencyRecord) TableName() string { return "idempotency_records" }
