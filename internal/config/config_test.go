package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTING_CONCURRENCY", "")
	t.Setenv("LEDGER_PROVIDER", "")
	t.Setenv("ENTITLEMENT_CACHE_TTL", "")

	cfg := Load()

	assert.Equal(t, LedgerProviderSandbox, cfg.Ledger.Provider)
	assert.Equal(t, 4, cfg.Posting.Concurrency)
	assert.Equal(t, 200, cfg.Posting.MaxBatchSize)
	assert.Equal(t, "/billing/portal", cfg.Billing.PortalPath)
	assert.Zero(t, cfg.Billing.EntitlementCache)
	assert.Equal(t, 20*time.Second, cfg.Ledger.Timeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LEDGER_PROVIDER", "QBO")
	t.Setenv("LEDGER_BASE_URL", "https://sandbox-quickbooks.api.intuit.com/")
	t.Setenv("LEDGER_TIMEOUT", "3s")
	t.Setenv("POSTING_CONCURRENCY", "not-a-number")
	t.Setenv("RATE_LIMIT_ENABLED", "yes")

	cfg := Load()

	assert.Equal(t, LedgerProviderQBO, cfg.Ledger.Provider)
	assert.Equal(t, "https://sandbox-quickbooks.api.intuit.com", cfg.Ledger.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, 4, cfg.Posting.Concurrency)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestPlanCapsHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plans.yml")
	require.NoError(t, os.WriteFile(path, []byte("plans:\n  caps:\n    starter: 10\n    Pro: 50\n"), 0o600))

	holder, err := NewPlanCapsHolder(Config{Billing: BillingConfig{PlansFile: path}}, zap.NewNop())
	require.NoError(t, err)

	capValue, ok := holder.Cap("starter")
	assert.True(t, ok)
	assert.EqualValues(t, 10, capValue)

	capValue, ok = holder.Cap("pro")
	assert.True(t, ok)
	assert.EqualValues(t, 50, capValue)
}

func TestPlanCapsHolderRejectsNegativeCap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plans.yml")
	require.NoError(t, os.WriteFile(path, []byte("plans:\n  caps:\n    starter: -1\n"), 0o600))

	_, err := NewPlanCapsHolder(Config{Billing: BillingConfig{PlansFile: path}}, zap.NewNop())
	assert.Error(t, err)
}

func TestPlanCapsHolderMissingExplicitFile(t *testing.T) {
	_, err := NewPlanCapsHolder(Config{Billing: BillingConfig{PlansFile: filepath.Join(t.TempDir(), "nope.yml")}}, zap.NewNop())
	assert.Error(t, err)
}

func TestStaticPlanCapsHolder(t *testing.T) {
	holder := NewStaticPlanCapsHolder(DefaultPlanCaps())

	capValue, ok := holder.Cap(" FIRM ")
	assert.True(t, ok)
	assert.EqualValues(t, 2000, capValue)

	_, ok = holder.Cap("enterprise")
	assert.False(t, ok)
}
