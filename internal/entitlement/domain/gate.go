package domain

import (
	"context"
	"errors"
)

type DenyReason string

const (
	ReasonInactiveSubscription DenyReason = "INACTIVE_SUBSCRIPTION"
	ReasonCapExceeded          DenyReason = "CAP_EXCEEDED"
)

// Denial explains why a batch was rejected and where the tenant can fix it.
type Denial struct {
	Reason          DenyReason
	Message         string
	SuggestedAction string
}

// Decision is the outcome of a batch admission check. Denial is nil when Allowed.
type Decision struct {
	Allowed     bool
	Denial      *Denial
	Period      string
	PostedCount int64
	MonthlyCap  int64
}

// Status is a point-in-time view of a tenant's quota for the current period.
type Status struct {
	TenantID    string `json:"tenant_id"`
	Plan        Plan   `json:"plan"`
	Active      bool   `json:"active"`
	Period      string `json:"period"`
	PostedCount int64  `json:"posted_count"`
	MonthlyCap  int64  `json:"monthly_cap"`
	Remaining   int64  `json:"remaining"`
}

type Gate interface {
	// Admit is binary at the batch boundary: a tenant at or over cap is denied outright.
	// It always reads the current entitlement row.
	Admit(ctx context.Context, tenantID string, requestedItemCount int) (Decision, error)
	// Status may serve the entitlement from cache.
	Status(ctx context.Context, tenantID string) (Status, error)
}

type Repository interface {
	FindByTenant(ctx context.Context, tenantID string) (*Entitlement, error)
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidItemCount = errors.New("invalid_item_count")
)
