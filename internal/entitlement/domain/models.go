// Package domain defines tenant entitlement state and admission decisions.
package domain

import (
	"strings"
	"time"
)

type Plan string

const (
	PlanStarter  Plan = "starter"
	PlanPro      Plan = "pro"
	PlanFirm     Plan = "firm"
	PlanTrialing Plan = "trialing"
	PlanCanceled Plan = "canceled"
)

// ParsePlan normalizes a stored plan name.
func ParsePlan(value string) Plan {
	return Plan(strings.ToLower(strings.TrimSpace(value)))
}

// Entitlement is written by the billing subsystem and only read here.
type Entitlement struct {
	TenantID   string    `gorm:"type:varchar(128);primaryKey"`
	Plan       Plan      `gorm:"type:varchar(32);not null"`
	Active     bool      `gorm:"not null;default:false"`
	MonthlyCap *int64    `gorm:"column:monthly_cap"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (Entitlement) TableName() string { return "tenant_entitlements" }
