package domain

import (
	"context"
	"errors"
	"fmt"

	entitlementdomain "github.com/smallbiznis/bookpost/internal/entitlement/domain"
)

type Service interface {
	// Submit gates the batch once and then posts every item independently. Item failures are
	// reported in the response; only denial and store faults return an error.
	Submit(ctx context.Context, req Request) (BatchResponse, error)
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrEmptyBatch       = errors.New("empty_batch")
	ErrBatchTooLarge    = errors.New("batch_too_large")
	ErrMissingTxnID     = errors.New("missing_txn_id")
	ErrStoreUnavailable = errors.New("store_unavailable")
)

// EntitlementDeniedError rejects a whole batch before any item is processed.
type EntitlementDeniedError struct {
	TenantID string
	Decision entitlementdomain.Decision
}

func (e *EntitlementDeniedError) Error() string {
	if e.Decision.Denial == nil {
		return "entitlement_denied"
	}
	return fmt.Sprintf("entitlement_denied: %s", e.Decision.Denial.Reason)
}

func (e *EntitlementDeniedError) Reason() entitlementdomain.DenyReason {
	if e.Decision.Denial == nil {
		return ""
	}
	return e.Decision.Denial.Reason
}

// IsRequestError reports whether err comes from a malformed batch rather than the pipeline.
func IsRequestError(err error) bool {
	return errors.Is(err, ErrInvalidTenant) ||
		errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrBatchTooLarge) ||
		errors.Is(err, ErrMissingTxnID)
}
