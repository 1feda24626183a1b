// Package domain holds the posting request and result types returned to API callers.
package domain

import (
	"github.com/smallbiznis/bookpost/internal/journal"
)

// Item is one proposed journal entry in a batch. TxnID is the caller's reference and
// is not part of the payload fingerprint.
type Item struct {
	TxnID        string         `json:"txn_id"`
	Memo         string         `json:"memo,omitempty"`
	JournalLines []journal.Line `json:"journal_lines"`
}

type Request struct {
	TenantID string
	Items    []Item
}

type Status string

const (
	StatusPosted Status = "posted"
	StatusError  Status = "error"
)

type ErrorCode string

const (
	CodeEntitlementDenied ErrorCode = "ENTITLEMENT_DENIED"
	CodeUnbalanced        ErrorCode = ErrorCode(journal.CodeUnbalanced)
	CodeMalformedLine     ErrorCode = ErrorCode(journal.CodeMalformedLine)
	CodeLedgerValidation  ErrorCode = "LEDGER_VALIDATION"
	CodeLedgerUnavailable ErrorCode = "LEDGER_UNAVAILABLE"
)

type ItemError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Result is the outcome of a single item. ExternalDocID is set only when posted.
type Result struct {
	TxnID         string     `json:"txn_id"`
	Status        Status     `json:"status"`
	ExternalDocID string     `json:"qbo_doc_id,omitempty"`
	Idempotent    bool       `json:"idempotent,omitempty"`
	Error         *ItemError `json:"error,omitempty"`
}

type Summary struct {
	Total      int `json:"total"`
	Posted     int `json:"posted"`
	Errors     int `json:"errors"`
	Idempotent int `json:"idempotent"`
}

// BatchResponse lists results in request order.
type BatchResponse struct {
	Results []Result `json:"results"`
	Summary Summary  `json:"summary"`
}

func Posted(txnID, docID string, idempotent bool) Result {
	return Result{TxnID: txnID, Status: StatusPosted, ExternalDocID: docID, Idempotent: idempotent}
}

func Failed(txnID string, code ErrorCode, message string) Result {
	return Result{TxnID: txnID, Status: StatusError, Error: &ItemError{Code: code, Message: message}}
}

// Summarize counts outcomes across results.
func Summarize(results []Result) Summary {
	summary := Summary{Total: len(results)}
	for _, res := range results {
		switch res.Status {
		case StatusPosted:
			summary.Posted++
			if res.Idempotent {
				summary.Idempotent++
			}
		default:
			summary.Errors++
		}
	}
	return summary
}
