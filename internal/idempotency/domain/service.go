package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type RecordRequest struct {
	TenantID      string
	PayloadHash   string
	ExternalDocID string
	TxnID         string
	Metadata      map[string]any
}

// RecordResult is Created when this call inserted the record, otherwise it carries the
// document id of the record that already existed.
type RecordResult struct {
	Created       bool
	ExternalDocID string
}

type Service interface {
	Lookup(ctx context.Context, tenantID, payloadHash string) (docID string, found bool, err error)
	// RecordIfAbsent inserts the record or returns the existing one in a single constraint-backed statement.
	RecordIfAbsent(ctx context.Context, req RecordRequest) (RecordResult, error)
	WithTx(tx *gorm.DB) Service
}

var (
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrInvalidPayloadHash   = errors.New("invalid_payload_hash")
	ErrInvalidExternalDocID = errors.New("invalid_external_doc_id")
	ErrRecordVanished       = errors.New("idempotency_record_vanished")
)
