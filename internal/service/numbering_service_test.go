package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"crm/internal/apperror"
	"crm/internal/metrics"
	"crm/internal/model"
	"crm/internal/repository"
	"crm/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNumbering(t *testing.T, prefixes map[string]string) (NumberingService, testutil.Tenant, repository.NumberRangeRepository) {
	t.Helper()
	db := testutil.NewDB(t)
	tn := testutil.SeedTenant(t, db)
	ranges := repository.NewNumberRangeRepository(db)
	return NewNumberingService(repository.NewTransactionManager(db), ranges, prefixes, metrics.New()), tn, ranges
}

func TestAllocateNext_Sequential(t *testing.T) {
	svc, tn, ranges := newNumbering(t, nil)
	ctx := context.Background()

	for _, want := range []string{"Q-1", "Q-2", "Q-3"} {
		got, err := svc.AllocateNext(ctx, tn.Org.ID, model.DocTypeQuote)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	order, err := svc.AllocateNext(ctx, tn.Org.ID, model.DocTypeOrder)
	require.NoError(t, err)
	assert.Equal(t, "SO-1", order, "counters are per document type")

	quoteRange, err := ranges.FindForUpdate(ctx, tn.Org.ID, model.DocTypeQuote)
	require.NoError(t, err)
	assert.Equal(t, int64(4), quoteRange.Current)
	orderRange, err := ranges.FindForUpdate(ctx, tn.Org.ID, model.DocTypeOrder)
	require.NoError(t, err)
	assert.Equal(t, int64(2), orderRange.Current)
}

func TestAllocateNext_PrefixOverride(t *testing.T) {
	svc, tn, _ := newNumbering(t, map[string]string{model.DocTypeInvoice: "BILL-", model.DocTypeQuote: ""})
	ctx := context.Background()

	inv, err := svc.AllocateNext(ctx, tn.Org.ID, model.DocTypeInvoice)
	require.NoError(t, err)
	assert.Equal(t, "BILL-1", inv)

	q, err := svc.AllocateNext(ctx, tn.Org.ID, model.DocTypeQuote)
	require.NoError(t, err)
	assert.Equal(t, "Q-1", q, "an empty override keeps the default")
}

func TestAllocateNext_UnknownDocType(t *testing.T) {
	svc, tn, _ := newNumbering(t, nil)

	_, err := svc.AllocateNext(context.Background(), tn.Org.ID, "RECEIPT")
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestAllocateNext_ConcurrentCallersGetDistinctNumbers(t *testing.T) {
	svc, tn, _ := newNumbering(t, nil)
	ctx := context.Background()

	const n = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool, n)
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := svc.AllocateNext(ctx, tn.Org.ID, model.DocTypeQuote)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			seen[num] = true
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, seen, n)
	for i := 1; i <= n; i++ {
		assert.True(t, seen[fmt.Sprintf("Q-%d", i)], "missing Q-%d", i)
	}
}
