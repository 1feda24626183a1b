package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("tenant_id", "123"),
		attribute.String("provider", "qbo"),
		attribute.String("error_code", "UNBALANCED_JE"),
	)
	require.Len(t, attrs, 2)
	for _, attr := range attrs {
		assert.NotEqual(t, attribute.Key("tenant_id"), attr.Key)
	}
}

func TestRecordPostingInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "bookpost"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordPostingItem(ctx, "posted")
	m.RecordPostingItem(ctx, "posted")
	m.RecordPostingError(ctx, "UNBALANCED_JE")
	m.RecordEntitlementDenied(ctx, "CAP_EXCEEDED")
	m.RecordLedgerSubmit(ctx, "qbo", "ok")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[metric.Name] += dp.Value
			}
		}
	}
	assert.EqualValues(t, 2, totals["bookpost_posting_items_total"])
	assert.EqualValues(t, 1, totals["bookpost_posting_errors_total"])
	assert.EqualValues(t, 1, totals["bookpost_entitlement_denials_total"])
	assert.EqualValues(t, 1, totals["bookpost_ledger_submits_total"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordPostingItem(context.Background(), "posted")
	m.RecordLedgerSubmit(context.Background(), "qbo", "ok")
}
