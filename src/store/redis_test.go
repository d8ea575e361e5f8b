package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coin-engine/src/engine"
	"coin-engine/src/numeric"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

func TestRedisUpsertGetRoundTrip(t *testing.T) {
	st, mr := newTestRedisStore(t)
	ctx := context.Background()

	order := engine.NewOrder(7, "BTC", "KRW", engine.SideBuy,
		numeric.MustParse("43210987.12345678"), numeric.MustParse("0.00000001"), decimal.Zero)
	require.NoError(t, st.Upsert(ctx, "BTC-KRW", order))

	// Snapshot lives in the pending hash under its tracking identity.
	assert.True(t, mr.Exists("PENDING:ORDER:BTC-KRW"))

	got, err := st.Get(ctx, "BTC-KRW", order.TrackingID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, order.TrackingID, got.TrackingID)
	assert.Equal(t, engine.StatusPending, got.Status)

	// Scale-8 values survive the JSON round trip exactly.
	assert.True(t, numeric.Equal(got.Price, order.Price))
	assert.True(t, numeric.Equal(got.Quantity, order.Quantity))
}

func TestRedisGetMissingIsNilNil(t *testing.T) {
	st, _ := newTestRedisStore(t)

	got, err := st.Get(context.Background(), "BTC-KRW", "1_nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStatusTransitionMovesHashes(t *testing.T) {
	st, mr := newTestRedisStore(t)
	ctx := context.Background()

	order := engine.NewOrder(7, "BTC", "KRW", engine.SideSell,
		numeric.MustParse("100"), numeric.MustParse("1"), decimal.Zero)
	require.NoError(t, st.Upsert(ctx, "BTC-KRW", order))

	// The engine's completion sequence: clear the pending slot, then
	// write the completed snapshot.
	require.NoError(t, st.Delete(ctx, "BTC-KRW", order.TrackingID))
	order.Status = engine.StatusCompleted
	require.NoError(t, st.Upsert(ctx, "BTC-KRW", order))

	assert.False(t, mr.Exists("PENDING:ORDER:BTC-KRW"))
	assert.True(t, mr.Exists("COMPLETED:ORDER:BTC-KRW"))

	got, err := st.Get(ctx, "BTC-KRW", order.TrackingID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, engine.StatusCompleted, got.Status)
}

func TestRedisDeleteOnlyTouchesPending(t *testing.T) {
	st, _ := newTestRedisStore(t)
	ctx := context.Background()

	order := engine.NewOrder(7, "BTC", "KRW", engine.SideSell,
		numeric.MustParse("100"), numeric.MustParse("1"), decimal.Zero)
	order.Status = engine.StatusCompleted
	require.NoError(t, st.Upsert(ctx, "BTC-KRW", order))

	require.NoError(t, st.Delete(ctx, "BTC-KRW", order.TrackingID))

	got, err := st.Get(ctx, "BTC-KRW", order.TrackingID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestRedisScanPending(t *testing.T) {
	st, _ := newTestRedisStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		order := engine.NewOrder(i, "BTC", "KRW", engine.SideBuy,
			numeric.MustParse("100"), numeric.MustParse("1"), decimal.Zero)
		require.NoError(t, st.Upsert(ctx, "BTC-KRW", order))
	}
	other := engine.NewOrder(9, "ETH", "KRW", engine.SideBuy,
		numeric.MustParse("100"), numeric.MustParse("1"), decimal.Zero)
	require.NoError(t, st.Upsert(ctx, "ETH-KRW", other))

	orders, err := st.ScanPending(ctx, "BTC-KRW")
	require.NoError(t, err)
	assert.Len(t, orders, 3)
}

func TestRedisScanPendingCorruptSnapshot(t *testing.T) {
	st, mr := newTestRedisStore(t)

	mr.HSet("PENDING:ORDER:BTC-KRW", "1_broken", "{not json")
	_, err := st.ScanPending(context.Background(), "BTC-KRW")
	assert.Error(t, err)
}
