// Package domain contains persistence models for per-tenant posting usage.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageCounter is the number of successfully posted transactions for a tenant in one billing period.
// Rows are created lazily on first increment and never decremented.
type UsageCounter struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	TenantID    string       `gorm:"type:varchar(128);not null;uniqueIndex:ux_usage_counters_tenant_period,priority:1"`
	Period      string       `gorm:"type:varchar(16);not null;uniqueIndex:ux_usage_counters_tenant_period,priority:2"`
	PostedCount int64        `gorm:"not null;default:0"`
	CreatedAt   time.Time    `gorm:"not null"`
	UpdatedAt   time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (UsageCounter) TableName() string { return "usage_counters" }
