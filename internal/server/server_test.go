package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bookpost/internal/config"
	entitlementdomain "github.com/smallbiznis/bookpost/internal/entitlement/domain"
	"github.com/smallbiznis/bookpost/internal/observability"
	postingdomain "github.com/smallbiznis/bookpost/internal/posting/domain"
	"github.com/smallbiznis/bookpost/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePostingService struct {
	calls int
	req   postingdomain.Request
	resp  postingdomain.BatchResponse
	err   error
}

func (f *fakePostingService) Submit(ctx context.Context, req postingdomain.Request) (postingdomain.BatchResponse, error) {
	f.calls++
	f.req = req
	_ = ctx
	return f.resp, f.err
}

type fakeGate struct {
	status entitlementdomain.Status
	err    error
}

func (f *fakeGate) Admit(ctx context.Context, tenantID string, requestedItemCount int) (entitlementdomain.Decision, error) {
	_ = ctx
	_ = tenantID
	_ = requestedItemCount
	return entitlementdomain.Decision{Allowed: true}, nil
}

func (f *fakeGate) Status(ctx context.Context, tenantID string) (entitlementdomain.Status, error) {
	_ = ctx
	status := f.status
	status.TenantID = tenantID
	return status, f.err
}

func newTestServer(t *testing.T, postingSvc postingdomain.Service, gate entitlementdomain.Gate, limiter *ratelimit.PostingLimiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if limiter == nil {
		var err error
		limiter, err = ratelimit.NewPostingLimiter(config.Config{}, nil, zap.NewNop())
		require.NoError(t, err)
	}
	srv := NewServer(ServerParams{
		Gin:        NewEngine(observability.Config{}, nil),
		Cfg:        config.Config{},
		PostingSvc: postingSvc,
		Gate:       gate,
		Limiter:    limiter,
	})
	return srv.Engine()
}

const postingBody = `{"items":[
	{"txn_id":"t1","journal_lines":[{"account":"1000","debit_amount":"150.00","credit_amount":"0"},{"account":"4000","debit_amount":0,"credit_amount":150}]},
	{"txn_id":"t2","journal_lines":[{"account":"1000","debit_amount":"150.00","credit_amount":"0"},{"account":"4000","debit_amount":"0","credit_amount":"100.00"}]}
]}`

func postPostings(engine *gin.Engine, tenantID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/postings", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set(HeaderTenant, tenantID)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSubmitPostingsRequiresTenant(t *testing.T) {
	svc := &fakePostingService{}
	engine := newTestServer(t, svc, &fakeGate{}, nil)

	rec := postPostings(engine, "", postingBody)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, svc.calls)
}

func TestSubmitPostingsReturnsResultEnvelope(t *testing.T) {
	svc := &fakePostingService{resp: postingdomain.BatchResponse{
		Results: []postingdomain.Result{
			postingdomain.Posted("t1", "QBO-1", false),
			postingdomain.Failed("t2", postingdomain.CodeUnbalanced, "Debits (150.00) must equal credits (100.00)"),
		},
		Summary: postingdomain.Summary{Total: 2, Posted: 1, Errors: 1},
	}}
	engine := newTestServer(t, svc, &fakeGate{}, nil)

	rec := postPostings(engine, "T1", postingBody)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 1, svc.calls)
	assert.Equal(t, "T1", svc.req.TenantID)
	require.Len(t, svc.req.Items, 2)
	assert.Equal(t, "150", svc.req.Items[0].JournalLines[1].Credit.String())
	assert.Equal(t, "100", svc.req.Items[1].JournalLines[1].Credit.String())

	body := decode(t, rec)
	results := body["results"].([]any)
	first := results[0].(map[string]any)
	assert.Equal(t, "posted", first["status"])
	assert.Equal(t, "QBO-1", first["qbo_doc_id"])
	assert.NotContains(t, first, "error")

	second := results[1].(map[string]any)
	assert.Equal(t, "error", second["status"])
	assert.Equal(t, map[string]any{
		"code":    "UNBALANCED_JE",
		"message": "Debits (150.00) must equal credits (100.00)",
	}, second["error"])

	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 2, summary["total"])
	assert.EqualValues(t, 1, summary["posted"])
	assert.EqualValues(t, 1, summary["errors"])
}

func TestSubmitPostingsEntitlementDenied(t *testing.T) {
	svc := &fakePostingService{err: &postingdomain.EntitlementDeniedError{
		TenantID: "T1",
		Decision: entitlementdomain.Decision{
			Denial: &entitlementdomain.Denial{
				Reason:          entitlementdomain.ReasonCapExceeded,
				Message:         "Monthly posting limit reached (5 of 5 for 2026-10). Upgrade your plan to continue.",
				SuggestedAction: "/billing/portal",
			},
			Period:      "2026-10",
			PostedCount: 5,
			MonthlyCap:  5,
		},
	}}
	engine := newTestServer(t, svc, &fakeGate{}, nil)

	rec := postPostings(engine, "T1", postingBody)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ENTITLEMENT_REQUIRED", body["code"])
	assert.Equal(t, "CAP_EXCEEDED", body["reason"])
	assert.Equal(t, []any{"/billing/portal"}, body["actions"])
	assert.Contains(t, body["message"], "Monthly posting limit reached")
	assert.EqualValues(t, 5, body["monthly_cap"])
}

func TestSubmitPostingsStoreUnavailable(t *testing.T) {
	svc := &fakePostingService{err: fmt.Errorf("%w: lookup: connection refused", postingdomain.ErrStoreUnavailable)}
	engine := newTestServer(t, svc, &fakeGate{}, nil)

	rec := postPostings(engine, "T1", postingBody)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "service_unavailable", body["error"].(map[string]any)["type"])
}

func TestSubmitPostingsRequestErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantCode  string
		wantField string
	}{
		{"empty batch", postingdomain.ErrEmptyBatch, "empty_batch", "items"},
		{"too large", fmt.Errorf("%w: 201 items exceeds the limit of 200", postingdomain.ErrBatchTooLarge), "batch_too_large", "items"},
		{"missing txn", fmt.Errorf("%w: item 3", postingdomain.ErrMissingTxnID), "missing_txn_id", "txn_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestServer(t, &fakePostingService{err: tc.err}, &fakeGate{}, nil)

			rec := postPostings(engine, "T1", postingBody)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			errs := decode(t, rec)["error"].(map[string]any)["errors"].([]any)
			first := errs[0].(map[string]any)
			assert.Equal(t, tc.wantCode, first["code"])
			assert.Equal(t, tc.wantField, first["field"])
		})
	}
}

func TestSubmitPostingsMalformedJSON(t *testing.T) {
	svc := &fakePostingService{}
	engine := newTestServer(t, svc, &fakeGate{}, nil)

	rec := postPostings(engine, "T1", `{"items":[{"txn_id":"t1","journal_lines":[{"debit_amount":"abc"}]}]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, svc.calls)
}

func TestSubmitPostingsRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := ratelimit.NewPostingLimiter(config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, PostingRate: 0.01, PostingBurst: 1},
		Posting:   config.PostingConfig{InFlightLockTTL: time.Second},
	}, client, zap.NewNop())
	require.NoError(t, err)

	svc := &fakePostingService{resp: postingdomain.BatchResponse{Results: []postingdomain.Result{}}}
	engine := newTestServer(t, svc, &fakeGate{}, limiter)

	first := postPostings(engine, "T1", postingBody)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	second := postPostings(engine, "T1", postingBody)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Equal(t, rateLimitReasonTenantRate, second.Header().Get("X-Rate-Limited-Reason"))
	assert.Equal(t, 1, svc.calls)

	// buckets are per tenant
	other := postPostings(engine, "T2", postingBody)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestGetUsage(t *testing.T) {
	gate := &fakeGate{status: entitlementdomain.Status{
		Plan:        entitlementdomain.PlanPro,
		Active:      true,
		Period:      "2026-10",
		PostedCount: 120,
		MonthlyCap:  500,
		Remaining:   380,
	}}
	engine := newTestServer(t, &fakePostingService{}, gate, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	req.Header.Set(HeaderTenant, "T1")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "T1", body["tenant_id"])
	assert.Equal(t, "pro", body["plan"])
	assert.EqualValues(t, 380, body["remaining"])
}

func TestHealthAndFallback(t *testing.T) {
	engine := newTestServer(t, &fakePostingService{}, &fakeGate{}, nil)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClassifyErrorForLog(t *testing.T) {
	errType, code := classifyErrorForLog(&postingdomain.EntitlementDeniedError{Decision: entitlementdomain.Decision{
		Denial: &entitlementdomain.Denial{Reason: entitlementdomain.ReasonInactiveSubscription},
	}})
	assert.Equal(t, "entitlement", errType)
	assert.Equal(t, "INACTIVE_SUBSCRIPTION", code)

	errType, _ = classifyErrorForLog(fmt.Errorf("%w: record", postingdomain.ErrStoreUnavailable))
	assert.Equal(t, "unavailable", errType)
}

func TestGetUsageStoreFailureIsUnavailable(t *testing.T) {
	engine := newTestServer(t, &fakePostingService{}, &fakeGate{err: fmt.Errorf("load entitlement: %w", context.DeadlineExceeded)}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	req.Header.Set(HeaderTenant, "T1")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
