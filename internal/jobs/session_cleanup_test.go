package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/commerce-router/internal/metrics"
	"github.com/zhouzirui/commerce-router/internal/model/service"
	"github.com/zhouzirui/commerce-router/internal/model/session"
	"github.com/zhouzirui/commerce-router/internal/store/memstore"
)

type brokenPurger struct{}

func (brokenPurger) Purge(context.Context, time.Time) (int64, error) {
	return 0, errors.New("read-only")
}

func TestNewSessionCleanupValidates(t *testing.T) {
	_, err := NewSessionCleanup(memstore.NewSessionStore(time.Hour), 0, time.Minute, nil)
	assert.Error(t, err)
	_, err = NewSessionCleanup(memstore.NewSessionStore(time.Hour), time.Hour, 0, nil)
	assert.Error(t, err)
}

func TestRunOncePurgesOldSessions(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	desc := service.Seed()[0]
	st := memstore.NewSessionStore(7 * 24 * time.Hour)
	ctx := context.Background()
	require.NoError(t, st.Create(ctx, session.New("u1", desc, nil, now.Add(-25*time.Hour))))
	require.NoError(t, st.Create(ctx, session.New("u2", desc, nil, now.Add(-time.Hour))))

	m := metrics.New(prometheus.NewRegistry())
	c, err := NewSessionCleanup(st, 24*time.Hour, time.Hour, m)
	require.NoError(t, err)
	c.now = func() time.Time { return now }

	assert.EqualValues(t, 1, c.RunOnce(ctx))
	assert.Equal(t, 1, st.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsPurged))
}

func TestRunOnceCountsFailures(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c, err := NewSessionCleanup(brokenPurger{}, time.Hour, time.Hour, m)
	require.NoError(t, err)

	assert.Zero(t, c.RunOnce(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("purge")))
}

func TestStartStop(t *testing.T) {
	c, err := NewSessionCleanup(memstore.NewSessionStore(time.Hour), time.Hour, time.Hour, nil)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	assert.NoError(t, c.Stop())
}
