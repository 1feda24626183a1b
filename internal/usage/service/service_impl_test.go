package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/bookpost/internal/clock"
	"github.com/smallbiznis/bookpost/internal/testutil"
	usagedomain "github.com/smallbiznis/bookpost/internal/usage/domain"
	"github.com/smallbiznis/bookpost/internal/usage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupUsageService(t *testing.T) (usagedomain.Service, *gorm.DB) {
	t.Helper()
	conn := testutil.NewSQLite(t, &usagedomain.UsageCounter{})
	svc := NewService(ServiceParam{
		Log:   zap.NewNop(),
		GenID: testutil.MustNode(t),
		Clock: clock.NewFakeClock(time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(conn),
	})
	return svc, conn
}

func TestReadMissingCounterIsZero(t *testing.T) {
	svc, _ := setupUsageService(t)

	count, err := svc.Read(context.Background(), "t1", "2026-10")
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestIncrementCreatesLazilyAndAccumulates(t *testing.T) {
	svc, conn := setupUsageService(t)
	ctx := context.Background()

	count, err := svc.Increment(ctx, "t1", "2026-10", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	count, err = svc.Increment(ctx, "t1", "2026-10", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 4, count)

	count, err = svc.Read(ctx, "t1", "2026-10")
	require.NoError(t, err)
	assert.EqualValues(t, 4, count)

	var rows int64
	require.NoError(t, conn.Model(&usagedomain.UsageCounter{}).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)
}

func TestIncrementIsPartitionedByTenantAndPeriod(t *testing.T) {
	svc, _ := setupUsageService(t)
	ctx := context.Background()

	_, err := svc.Increment(ctx, "t1", "2026-10", 2)
	require.NoError(t, err)
	_, err = svc.Increment(ctx, "t2", "2026-10", 5)
	require.NoError(t, err)
	_, err = svc.Increment(ctx, "t1", "2026-11", 7)
	require.NoError(t, err)

	for _, tc := range []struct {
		tenant, period string
		want           int64
	}{
		{"t1", "2026-10", 2},
		{"t2", "2026-10", 5},
		{"t1", "2026-11", 7},
	} {
		got, err := svc.Read(ctx, tc.tenant, tc.period)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s/%s", tc.tenant, tc.period)
	}
}

func TestIncrementRejectsInvalidInput(t *testing.T) {
	svc, _ := setupUsageService(t)
	ctx := context.Background()

	_, err := svc.Increment(ctx, "t1", "2026-10", -1)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidDelta)

	_, err = svc.Increment(ctx, " ", "2026-10", 1)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidTenant)

	_, err = svc.Read(ctx, "t1", "")
	assert.ErrorIs(t, err, usagedomain.ErrInvalidPeriod)
}

func TestIncrementZeroDeltaReadsCurrent(t *testing.T) {
	svc, _ := setupUsageService(t)
	ctx := context.Background()

	_, err := svc.Increment(ctx, "t1", "2026-10", 2)
	require.NoError(t, err)

	count, err := svc.Increment(ctx, "t1", "2026-10", 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestIncrementConcurrentNoLostUpdates(t *testing.T) {
	svc, _ := setupUsageService(t)
	ctx := context.Background()

	const workers = 40
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Increment(ctx, "t1", "2026-10", 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	count, err := svc.Read(ctx, "t1", "2026-10")
	require.NoError(t, err)
	assert.EqualValues(t, workers, count)
}

func TestWithTxRollsBackIncrement(t *testing.T) {
	svc, conn := setupUsageService(t)
	ctx := context.Background()

	err := conn.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.WithTx(tx).Increment(ctx, "t1", "2026-10", 1); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	count, err := svc.Read(ctx, "t1", "2026-10")
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}
