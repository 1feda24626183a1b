package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/bookpost/internal/journal"
)

const (
	ProviderQBO = "qbo"

	qboDefaultBaseURL  = "https://quickbooks.api.intuit.com"
	qboMinorVersion    = "70"
	qboDocNumberMaxLen = 21
	qboPrivateNoteMax  = 4000
)

type QBOConfig struct {
	BaseURL     string
	RealmID     string
	Credentials Credentials
	Timeout     time.Duration
	HTTPClient  *http.Client
}

type qboClient struct {
	baseURL string
	realmID string
	client  *http.Client
	timeout time.Duration
}

// NewQBOClient posts JournalEntry objects to QuickBooks Online. The idempotency key
// is sent as requestid, which QuickBooks uses to replay the original response.
func NewQBOClient(ctx context.Context, cfg QBOConfig) (Client, error) {
	realm := strings.TrimSpace(cfg.RealmID)
	if realm == "" {
		return nil, ErrMissingRealm
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	httpClient, err := newHTTPClient(ctx, cfg.Credentials, cfg.HTTPClient, timeout)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = qboDefaultBaseURL
	}
	return &qboClient{
		baseURL: baseURL,
		realmID: realm,
		client:  httpClient,
		timeout: timeout,
	}, nil
}

func (c *qboClient) Provider() string { return ProviderQBO }

type qboRef struct {
	Value string `json:"value"`
}

type qboLineDetail struct {
	PostingType string `json:"PostingType"`
	AccountRef  qboRef `json:"AccountRef"`
}

type qboLine struct {
	DetailType             string        `json:"DetailType"`
	Amount                 json.Number   `json:"Amount"`
	Description            string        `json:"Description,omitempty"`
	JournalEntryLineDetail qboLineDetail `json:"JournalEntryLineDetail"`
}

type qboJournalEntry struct {
	DocNumber   string    `json:"DocNumber,omitempty"`
	TxnDate     string    `json:"TxnDate,omitempty"`
	PrivateNote string    `json:"PrivateNote,omitempty"`
	Line        []qboLine `json:"Line"`
}

type qboFault struct {
	Type  string `json:"type"`
	Error []struct {
		Message string `json:"Message"`
		Detail  string `json:"Detail"`
		Code    string `json:"code"`
	} `json:"Error"`
}

type qboResponse struct {
	JournalEntry *struct {
		ID string `json:"Id"`
	} `json:"JournalEntry"`
	Fault *qboFault `json:"Fault"`
}

func (c *qboClient) Submit(ctx context.Context, entry JournalEntry, idempotencyKey string) (string, error) {
	body, err := json.Marshal(buildQBOEntry(entry))
	if err != nil {
		return "", ValidationError(0, fmt.Sprintf("encode journal entry: %v", err))
	}

	query := url.Values{}
	query.Set("minorversion", qboMinorVersion)
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		query.Set("requestid", key)
	}
	endpoint := fmt.Sprintf("%s/v3/company/%s/journalentry?%s", c.baseURL, url.PathEscape(c.realmID), query.Encode())

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", UnavailableError(0, "build ledger request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", transportError(ctx, err)
	}

	var decoded qboResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode >= http.StatusBadRequest {
		if decodeErr == nil && decoded.Fault != nil {
			return "", qboFaultError(resp.StatusCode, decoded.Fault)
		}
		return "", classifyStatus(resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if decodeErr != nil {
		return "", UnavailableError(resp.StatusCode, "decode ledger response", decodeErr)
	}
	// QuickBooks can report faults with a 200 status
	if decoded.Fault != nil {
		return "", qboFaultError(resp.StatusCode, decoded.Fault)
	}
	if decoded.JournalEntry == nil || strings.TrimSpace(decoded.JournalEntry.ID) == "" {
		return "", UnavailableError(resp.StatusCode, "ledger response missing journal entry id", nil)
	}
	return decoded.JournalEntry.ID, nil
}

func buildQBOEntry(entry JournalEntry) qboJournalEntry {
	out := qboJournalEntry{
		DocNumber:   truncate(entry.TxnID, qboDocNumberMaxLen),
		PrivateNote: truncate(entry.Memo, qboPrivateNoteMax),
		Line:        make([]qboLine, 0, len(entry.Lines)),
	}
	if !entry.Date.IsZero() {
		out.TxnDate = entry.Date.UTC().Format("2006-01-02")
	}
	for _, line := range entry.Lines {
		out.Line = append(out.Line, qboLine{
			DetailType: "JournalEntryLineDetail",
			Amount:     json.Number(line.Amount().StringFixed(journal.MinorUnitExponent)),
			JournalEntryLineDetail: qboLineDetail{
				PostingType: postingType(line),
				AccountRef:  qboRef{Value: line.Account},
			},
		})
	}
	return out
}

func postingType(line journal.Line) string {
	if line.IsDebit() {
		return "Debit"
	}
	return "Credit"
}

func qboFaultError(status int, fault *qboFault) *LedgerError {
	parts := make([]string, 0, len(fault.Error))
	for _, e := range fault.Error {
		msg := strings.TrimSpace(e.Message)
		if detail := strings.TrimSpace(e.Detail); detail != "" {
			msg = msg + ": " + detail
		}
		if msg != "" {
			parts = append(parts, msg)
		}
	}
	message := strings.Join(parts, "; ")
	if message == "" {
		message = fault.Type
	}
	switch strings.ToLower(fault.Type) {
	case "validationfault":
		return ValidationError(status, message)
	case "authenticationfault", "authorizationfault", "systemfault", "serviceexception":
		return UnavailableError(status, message, nil)
	}
	if status == 0 || status < http.StatusBadRequest {
		status = http.StatusBadRequest
	}
	return classifyStatus(status, message)
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return value[:max]
}
