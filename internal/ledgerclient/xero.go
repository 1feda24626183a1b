package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/bookpost/internal/journal"
)

const (
	ProviderXero = "xero"

	xeroDefaultBaseURL = "https://api.xero.com"
	xeroIdempotencyMax = 128
)

type XeroConfig struct {
	BaseURL     string
	TenantID    string
	Credentials Credentials
	Timeout     time.Duration
	HTTPClient  *http.Client
}

type xeroClient struct {
	baseURL  string
	tenantID string
	client   *http.Client
	timeout  time.Duration
}

// NewXeroClient creates manual journals in Xero. The idempotency key is sent in the
// Idempotency-Key header.
func NewXeroClient(ctx context.Context, cfg XeroConfig) (Client, error) {
	tenant := strings.TrimSpace(cfg.TenantID)
	if tenant == "" {
		return nil, ErrMissingRealm
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	creds := cfg.Credentials
	if len(creds.Scopes) == 0 {
		creds.Scopes = []string{"accounting.transactions"}
	}
	httpClient, err := newHTTPClient(ctx, creds, cfg.HTTPClient, timeout)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = xeroDefaultBaseURL
	}
	return &xeroClient{
		baseURL:  baseURL,
		tenantID: tenant,
		client:   httpClient,
		timeout:  timeout,
	}, nil
}

func (c *xeroClient) Provider() string { return ProviderXero }

type xeroJournalLine struct {
	LineAmount  json.Number `json:"LineAmount"`
	AccountCode string      `json:"AccountCode"`
	Description string      `json:"Description,omitempty"`
}

type xeroManualJournal struct {
	Narration    string            `json:"Narration"`
	Date         string            `json:"Date,omitempty"`
	Status       string            `json:"Status"`
	JournalLines []xeroJournalLine `json:"JournalLines"`
}

type xeroRequest struct {
	ManualJournals []xeroManualJournal `json:"ManualJournals"`
}

type xeroValidationError struct {
	Message string `json:"Message"`
}

type xeroResponse struct {
	ManualJournals []struct {
		ManualJournalID  string                `json:"ManualJournalID"`
		ValidationErrors []xeroValidationError `json:"ValidationErrors"`
	} `json:"ManualJournals"`
}

type xeroErrorResponse struct {
	Type     string `json:"Type"`
	Message  string `json:"Message"`
	Detail   string `json:"Detail"`
	Elements []struct {
		ValidationErrors []xeroValidationError `json:"ValidationErrors"`
	} `json:"Elements"`
}

func (c *xeroClient) Submit(ctx context.Context, entry JournalEntry, idempotencyKey string) (string, error) {
	body, err := json.Marshal(xeroRequest{ManualJournals: []xeroManualJournal{buildXeroJournal(entry)}})
	if err != nil {
		return "", ValidationError(0, fmt.Sprintf("encode journal entry: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/api.xro/2.0/ManualJournals", bytes.NewReader(body))
	if err != nil {
		return "", UnavailableError(0, "build ledger request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("xero-tenant-id", c.tenantID)
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		req.Header.Set("Idempotency-Key", truncate(key, xeroIdempotencyMax))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", transportError(ctx, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var xeroErr xeroErrorResponse
		if json.Unmarshal(raw, &xeroErr) == nil {
			return "", classifyStatus(resp.StatusCode, xeroErrorMessage(xeroErr))
		}
		return "", classifyStatus(resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded xeroResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", UnavailableError(resp.StatusCode, "decode ledger response", err)
	}
	if len(decoded.ManualJournals) == 0 {
		return "", UnavailableError(resp.StatusCode, "ledger response missing manual journal", nil)
	}
	journalResp := decoded.ManualJournals[0]
	if len(journalResp.ValidationErrors) > 0 {
		return "", ValidationError(resp.StatusCode, joinValidationErrors(journalResp.ValidationErrors))
	}
	if strings.TrimSpace(journalResp.ManualJournalID) == "" {
		return "", UnavailableError(resp.StatusCode, "ledger response missing manual journal id", nil)
	}
	return journalResp.ManualJournalID, nil
}

// buildXeroJournal signs amounts: debits positive, credits negative.
func buildXeroJournal(entry JournalEntry) xeroManualJournal {
	narration := strings.TrimSpace(entry.Memo)
	if narration == "" {
		narration = strings.TrimSpace(entry.TxnID)
	}
	out := xeroManualJournal{
		Narration:    narration,
		Status:       "POSTED",
		JournalLines: make([]xeroJournalLine, 0, len(entry.Lines)),
	}
	if !entry.Date.IsZero() {
		out.Date = entry.Date.UTC().Format("2006-01-02")
	}
	for _, line := range entry.Lines {
		amount := line.Amount()
		if !line.IsDebit() {
			amount = amount.Neg()
		}
		out.JournalLines = append(out.JournalLines, xeroJournalLine{
			LineAmount:  json.Number(amount.StringFixed(journal.MinorUnitExponent)),
			AccountCode: line.Account,
		})
	}
	return out
}

func xeroErrorMessage(resp xeroErrorResponse) string {
	var validation []xeroValidationError
	for _, el := range resp.Elements {
		validation = append(validation, el.ValidationErrors...)
	}
	if len(validation) > 0 {
		return joinValidationErrors(validation)
	}
	if msg := strings.TrimSpace(resp.Detail); msg != "" {
		return msg
	}
	return strings.TrimSpace(resp.Message)
}

func joinValidationErrors(errs []xeroValidationError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		if msg := strings.TrimSpace(e.Message); msg != "" {
			parts = append(parts, msg)
		}
	}
	return strings.Join(parts, "; ")
}
