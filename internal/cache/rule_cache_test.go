package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"crm/internal/pricing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls int
	rules []pricing.Rule
	err   error
}

func (s *countingSource) Rules(ctx context.Context, orgID uuid.UUID) ([]pricing.Rule, error) {
	s.calls++
	return s.rules, s.err
}

func newCache(t *testing.T, src RuleSource) (*RuleCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRuleCache(client, src, time.Minute, nil), mr
}

func TestRuleCache_ReadThrough(t *testing.T) {
	src := &countingSource{rules: []pricing.Rule{
		{ID: "r1", Kind: pricing.KindCustomer, Target: "VIP", Percent: decimal.RequireFromString("8.5")},
	}}
	c, mr := newCache(t, src)
	ctx := context.Background()
	orgID := uuid.New()

	first, err := c.Rules(ctx, orgID)
	require.NoError(t, err)
	second, err := c.Rules(ctx, orgID)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Target, second[0].Target)
	assert.True(t, decimal.RequireFromString("8.5").Equal(second[0].Percent))
	assert.True(t, mr.Exists("pricing:rules:"+orgID.String()))
	assert.Equal(t, time.Minute, mr.TTL("pricing:rules:"+orgID.String()))
}

func TestRuleCache_Invalidate(t *testing.T) {
	src := &countingSource{}
	c, mr := newCache(t, src)
	ctx := context.Background()
	orgID := uuid.New()

	_, err := c.Rules(ctx, orgID)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, orgID))
	assert.False(t, mr.Exists("pricing:rules:"+orgID.String()))

	_, err = c.Rules(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestRuleCache_RedisDownFallsBackToSource(t *testing.T) {
	src := &countingSource{rules: []pricing.Rule{{Kind: pricing.KindVolume, Target: "10", Percent: decimal.NewFromInt(1)}}}
	c, mr := newCache(t, src)
	mr.Close()

	rules, err := c.Rules(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.Len(t, rules, 1)
	assert.Error(t, c.Invalidate(context.Background(), uuid.New()))
}

func TestRuleCache_CorruptEntryIsReloaded(t *testing.T) {
	src := &countingSource{rules: []pricing.Rule{}}
	c, mr := newCache(t, src)
	orgID := uuid.New()
	require.NoError(t, mr.Set("pricing:rules:"+orgID.String(), "{not json"))

	_, err := c.Rules(context.Background(), orgID)

	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestRuleCache_SourceError(t *testing.T) {
	boom := errors.New("db down")
	c, _ := newCache(t, &countingSource{err: boom})

	_, err := c.Rules(context.Background(), uuid.New())

	assert.ErrorIs(t, err, boom)
}

// changingSource commits a new catalog and invalidates the cache while a
// load is in flight, then hands back the snapshot it read before the change.
type changingSource struct {
	cache   *RuleCache
	current []pricing.Rule
	next    []pricing.Rule
}

func (s *changingSource) Rules(ctx context.Context, orgID uuid.UUID) ([]pricing.Rule, error) {
	snapshot := s.current
	if s.next != nil {
		s.current, s.next = s.next, nil
		if err := s.cache.Invalidate(ctx, orgID); err != nil {
			return nil, err
		}
	}
	return snapshot, nil
}

func TestRuleCache_InvalidateDuringLoadSkipsWriteBack(t *testing.T) {
	src := &changingSource{
		current: []pricing.Rule{{ID: "old", Kind: pricing.KindCustomer, Target: "VIP", Percent: decimal.NewFromInt(8)}},
		next:    []pricing.Rule{{ID: "new", Kind: pricing.KindCustomer, Target: "VIP", Percent: decimal.NewFromInt(10)}},
	}
	c, mr := newCache(t, src)
	src.cache = c
	ctx := context.Background()
	orgID := uuid.New()

	first, err := c.Rules(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "old", first[0].ID)
	assert.False(t, mr.Exists("pricing:rules:"+orgID.String()), "stale snapshot must not be cached")

	second, err := c.Rules(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "new", second[0].ID)
	assert.True(t, decimal.NewFromInt(10).Equal(second[0].Percent))
	assert.True(t, mr.Exists("pricing:rules:"+orgID.String()))
}

func TestRuleCache_InvalidateBumpsGeneration(t *testing.T) {
	c, mr := newCache(t, &countingSource{})
	ctx := context.Background()
	orgID := uuid.New()

	require.NoError(t, c.Invalidate(ctx, orgID))
	require.NoError(t, c.Invalidate(ctx, orgID))

	gen, err := mr.Get("pricing:rules:" + orgID.String() + ":gen")
	require.NoError(t, err)
	assert.Equal(t, "2", gen)
}
