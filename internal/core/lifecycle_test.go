package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agobrik/unity-sim-packs-sub006/internal/adapter/in_memory"
	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
	"github.com/agobrik/unity-sim-packs-sub006/internal/metrics"
)

func TestSweepExpiresStalePendingOrder(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	env := newEnv(t, WithMetrics(m))
	env.register(t, stock("X", "100"))
	env.submit(t, limit("bid", "X", domain.Buy, "50", "5"))

	expired, err := env.dir.SweepExpired(ctx, epoch.Add(DefaultOrderRetention))
	require.NoError(t, err)
	assert.Empty(t, expired, "exactly at the window is not older than it")

	now := epoch.Add(DefaultOrderRetention + time.Millisecond)
	expired, err = env.dir.SweepExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "bid", expired[0].ID)
	assert.Equal(t, domain.Cancelled, expired[0].Status)

	got, err := env.dir.GetOrder("bid")
	require.NoError(t, err)
	assert.Equal(t, domain.Cancelled, got.Status)
	assert.True(t, got.UpdatedAt.Equal(now))
	assert.Empty(t, env.book(t, "X").Bids)

	stored, ok := env.repo.GetOrder("bid")
	require.True(t, ok)
	assert.Equal(t, domain.Cancelled, stored.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersExpired.WithLabelValues("X")))
}

func TestSweepLeavesPartialAndFreshOrders(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.register(t, stock("X", "100"))

	env.submit(t, limit("partial", "X", domain.Buy, "100", "5"))
	env.submit(t, limit("filler", "X", domain.Sell, "100", "2"))
	env.clock.Advance(12 * time.Hour)
	env.submit(t, limit("fresh", "X", domain.Sell, "200", "1"))

	expired, err := env.dir.SweepExpired(ctx, epoch.Add(30*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)

	ob := env.book(t, "X")
	assert.Equal(t, []string{"partial"}, ids(ob.Bids))
	assert.Equal(t, []string{"fresh"}, ids(ob.Asks))

	expired, err = env.dir.SweepExpired(ctx, epoch.Add(37*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, ids(expired))

	p, err := env.dir.GetOrder("partial")
	require.NoError(t, err)
	assert.Equal(t, domain.Partial, p.Status)
}

func TestSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.register(t, stock("X", "100"), stock("Y", "10"))
	env.submit(t, limit("x1", "X", domain.Buy, "90", "1"))
	env.submit(t, limit("y1", "Y", domain.Sell, "11", "1"))
	env.submit(t, limit("y2", "Y", domain.Sell, "12", "1"))

	now := epoch.Add(25 * time.Hour)
	first, err := env.dir.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Len(t, first, 3)
	snapshot := env.dir.Snapshot()

	second, err := env.dir.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, snapshot.Orders, env.dir.Snapshot().Orders)
}

func TestSweepSkipsCancelledAndFilled(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.register(t, stock("X", "100"))
	env.submit(t, limit("gone", "X", domain.Buy, "90", "1"))
	env.submit(t, limit("a", "X", domain.Sell, "80", "1"))
	env.submit(t, limit("c", "X", domain.Buy, "70", "1"))
	ok, err := env.dir.CancelOrder(ctx, "c", "")
	require.NoError(t, err)
	require.True(t, ok)

	expired, err := env.dir.SweepExpired(ctx, epoch.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)
	assert.Equal(t, DefaultOrderRetention, env.dir.Lifecycle().Retention())
}

func TestSweepPersistenceFailureKeepsOrders(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepo{MemoryRepo: in_memory.NewMemoryRepo()}
	env := newEnv(t, WithRepository(repo))
	env.register(t, stock("X", "100"), stock("Y", "100"))
	env.submit(t, limit("x", "X", domain.Buy, "90", "1"))
	env.submit(t, limit("y", "Y", domain.Buy, "90", "1"))

	repo.setFail(true)
	expired, err := env.dir.SweepExpired(ctx, epoch.Add(25*time.Hour))
	require.ErrorIs(t, err, errInjected)
	assert.Empty(t, expired)
	assert.Len(t, env.book(t, "X").Bids, 1)
	assert.Len(t, env.book(t, "Y").Bids, 1)

	repo.setFail(false)
	expired, err = env.dir.SweepExpired(ctx, epoch.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Len(t, expired, 2)
}

func TestCustomRetention(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, WithOrderRetention(time.Hour))
	env.register(t, stock("X", "100"))
	env.submit(t, limit("o", "X", domain.Buy, "90", "1"))

	expired, err := env.dir.SweepExpired(ctx, epoch.Add(61*time.Minute))
	require.NoError(t, err)
	assert.Len(t, expired, 1)
}

func TestExpiryIndexDue(t *testing.T) {
	x := NewExpiryIndex()
	o1 := resting(limit("o1", "X", domain.Buy, "1", "1"), epoch)
	o2 := resting(limit("o2", "X", domain.Buy, "1", "1"), epoch)
	o3 := resting(limit("o3", "X", domain.Buy, "1", "1"), epoch.Add(time.Hour))
	for _, o := range []*domain.Order{o1, o2, o3, o1} {
		x.Track(o)
	}
	assert.Equal(t, 3, x.Len())
	assert.Equal(t, []string{"o1", "o2"}, x.Due(epoch.Add(time.Minute)))
	assert.Empty(t, x.Due(epoch))

	x.Forget("o1")
	x.Forget("nope")
	assert.Equal(t, []string{"o2", "o3"}, x.Due(epoch.Add(2*time.Hour)))
}
