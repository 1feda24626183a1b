package ledgerclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestXero(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewXeroClient(context.Background(), XeroConfig{
		BaseURL:     srv.URL,
		TenantID:    "xt-1",
		Credentials: Credentials{AccessToken: "tok"},
		Timeout:     2 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestXeroSubmitSignsAmounts(t *testing.T) {
	client := newTestXero(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api.xro/2.0/ManualJournals", r.URL.Path)
		assert.Equal(t, "xt-1", r.Header.Get("xero-tenant-id"))
		assert.Equal(t, "hash-1", r.Header.Get("Idempotency-Key"))

		raw, _ := io.ReadAll(r.Body)
		var body struct {
			ManualJournals []struct {
				Narration    string
				JournalLines []struct {
					LineAmount  float64
					AccountCode string
				}
			}
		}
		if assert.NoError(t, json.Unmarshal(raw, &body)) && assert.Len(t, body.ManualJournals, 1) {
			mj := body.ManualJournals[0]
			assert.Equal(t, "txn-0001", mj.Narration)
			if assert.Len(t, mj.JournalLines, 2) {
				assert.Equal(t, 150.0, mj.JournalLines[0].LineAmount)
				assert.Equal(t, -150.0, mj.JournalLines[1].LineAmount)
			}
		}

		_, _ = w.Write([]byte(`{"ManualJournals":[{"ManualJournalID":"6d1c-uuid","Status":"POSTED"}]}`))
	})

	docID, err := client.Submit(context.Background(), balancedEntry(), "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "6d1c-uuid", docID)
}

func TestXeroValidationException(t *testing.T) {
	client := newTestXero(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ErrorNumber":10,"Type":"ValidationException","Message":"A validation exception occurred","Elements":[{"ValidationErrors":[{"Message":"Account code '9999' is not a valid code"}]}]}`))
	})

	_, err := client.Submit(context.Background(), balancedEntry(), "k")
	ledgerErr := AsLedgerError(err)
	assert.Equal(t, KindValidation, ledgerErr.Kind)
	assert.Contains(t, ledgerErr.Message, "9999")
}

func TestXeroInlineValidationErrors(t *testing.T) {
	client := newTestXero(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ManualJournals":[{"ManualJournalID":"","ValidationErrors":[{"Message":"Journal lines must balance"}]}]}`))
	})

	_, err := client.Submit(context.Background(), balancedEntry(), "k")
	assert.Equal(t, KindValidation, AsLedgerError(err).Kind)
}

func TestXeroRateLimitedIsUnavailable(t *testing.T) {
	client := newTestXero(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Submit(context.Background(), balancedEntry(), "k")
	ledgerErr := AsLedgerError(err)
	assert.Equal(t, KindUnavailable, ledgerErr.Kind)
	assert.Equal(t, http.StatusTooManyRequests, ledgerErr.StatusCode)
}

func TestXeroUnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := NewXeroClient(context.Background(), XeroConfig{
		BaseURL:     url,
		TenantID:    "xt-1",
		Credentials: Credentials{AccessToken: "tok"},
	})
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), balancedEntry(), "k")
	assert.Equal(t, KindUnavailable, AsLedgerError(err).Kind)
}
