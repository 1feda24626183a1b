// Package ledgerclient submits balanced journal entries to an external accounting ledger.
package ledgerclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/smallbiznis/bookpost/internal/journal"
)

// JournalEntry is a validated entry ready for the external ledger.
type JournalEntry struct {
	TenantID string
	TxnID    string
	Date     time.Time
	Memo     string
	Lines    []journal.Line
}

// Client posts journal entries. Implementations honour idempotencyKey where the
// provider supports it so that a retried submission returns the original document.
//
type Client interface {
	Provider() string
	Submit(ctx context.Context, entry JournalEntry, idempotencyKey string) (string, error)
}

type ErrorKind string

const (
	// KindValidation means the ledger rejected the entry; resubmitting it unchanged will fail again.
	KindValidation ErrorKind = "validation"
	// KindUnavailable covers transport and availability failures; safe to retry.
	KindUnavailable ErrorKind = "unavailable"
)

// LedgerError is the structured failure returned by every Client.
type LedgerError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *LedgerError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("ledger %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ledger %s: %s", e.Kind, e.Message)
}

func (e *LedgerError) Unwrap() error { return e.Err }

func ValidationError(status int, message string) *LedgerError {
	return &LedgerError{Kind: KindValidation, Message: message, StatusCode: status}
}

func UnavailableError(status int, message string, cause error) *LedgerError {
	return &LedgerError{Kind: KindUnavailable, Message: message, StatusCode: status, Err: cause}
}

// AsLedgerError classifies any error from a Client. Unknown errors are unavailable.
func AsLedgerError(err error) *LedgerError {
	if err == nil {
		return nil
	}
	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr
	}
	return UnavailableError(0, err.Error(), err)
}

// classifyStatus maps a non-2xx provider response to a LedgerError.
func classifyStatus(status int, message string) *LedgerError {
	if message == "" {
		message = http.StatusText(status)
	}
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ValidationError(status, message)
	default:
		return UnavailableError(status, message, nil)
	}
}

// transportError wraps failures that happened before a response was read.
func transportError(ctx context.Context, err error) *LedgerError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return UnavailableError(0, "ledger request timed out", ctxErr)
	}
	return UnavailableError(0, "ledger unreachable", err)
}

var (
	ErrMissingCredentials = errors.New("ledger_missing_credentials")
	ErrMissingRealm       = errors.New("ledger_missing_realm")
	ErrUnknownProvider    = errors.New("ledger_unknown_provider")
)
