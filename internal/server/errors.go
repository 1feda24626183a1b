package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	entitlementdomain "github.com/smallbiznis/bookpost/internal/entitlement/domain"
	postingdomain "github.com/smallbiznis/bookpost/internal/posting/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// entitlementResponse is the payment-required body clients use to route users to billing.
type entitlementResponse struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Reason      string   `json:"reason"`
	PostedCount int64    `json:"posted_count"`
	MonthlyCap  int64    `json:"monthly_cap"`
	Period      string   `json:"period,omitempty"`
	Actions     []string `json:"actions"`
}

const codeEntitlementRequired = "ENTITLEMENT_REQUIRED"

var (
	ErrTenantRequired     = errors.New("tenant_required")
	ErrRateLimited        = errors.New("rate_limited")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		c.Header("Content-Type", "application/json")

		var denied *postingdomain.EntitlementDeniedError
		if errors.As(lastErr.Err, &denied) {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, entitlementBody(denied))
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func entitlementBody(denied *postingdomain.EntitlementDeniedError) entitlementResponse {
	body := entitlementResponse{
		Code:        codeEntitlementRequired,
		Message:     "An active subscription is required to post transactions.",
		Reason:      string(denied.Reason()),
		PostedCount: denied.Decision.PostedCount,
		MonthlyCap:  denied.Decision.MonthlyCap,
		Period:      denied.Decision.Period,
		Actions:     []string{},
	}
	if denial := denied.Decision.Denial; denial != nil {
		if msg := strings.TrimSpace(denial.Message); msg != "" {
			body.Message = msg
		}
		if action := strings.TrimSpace(denial.SuggestedAction); action != "" {
			body.Actions = append(body.Actions, action)
		}
	}
	return body
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(err, code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrTenantRequired):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "tenant is required",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, postingdomain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable, retry the request",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code recorded on the request log line.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	var denied *postingdomain.EntitlementDeniedError
	if errors.As(err, &denied) {
		return "entitlement", string(denied.Reason())
	}
	if asValidationErrors(err) != nil || isValidationError(err) {
		return "validation", validationErrorCode(err)
	}
	switch {
	case errors.Is(err, ErrTenantRequired):
		return "unauthorized", ErrTenantRequired.Error()
	case errors.Is(err, ErrRateLimited):
		return "rate_limited", ErrRateLimited.Error()
	case errors.Is(err, ErrNotFound):
		return "not_found", ErrNotFound.Error()
	case errors.Is(err, postingdomain.ErrStoreUnavailable),
		errors.Is(err, ErrServiceUnavailable):
		return "unavailable", ErrServiceUnavailable.Error()
	default:
		return "internal", "internal_error"
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		postingdomain.IsRequestError(err),
		errors.Is(err, entitlementdomain.ErrInvalidTenant):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, postingdomain.ErrInvalidTenant),
		errors.Is(err, entitlementdomain.ErrInvalidTenant):
		return "invalid_tenant"
	case errors.Is(err, postingdomain.ErrEmptyBatch):
		return postingdomain.ErrEmptyBatch.Error()
	case errors.Is(err, postingdomain.ErrBatchTooLarge):
		return postingdomain.ErrBatchTooLarge.Error()
	case errors.Is(err, postingdomain.ErrMissingTxnID):
		return postingdomain.ErrMissingTxnID.Error()
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "empty_batch", "batch_too_large":
		return "items"
	case "missing_txn_id":
		return "txn_id"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(err error, code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "empty_batch":
		return "at least one item is required"
	case "batch_too_large", "missing_txn_id":
		// wrapped with the limit or the item index
		return err.Error()
	default:
		return "invalid value"
	}
}
