package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gm-dapp/internal/metrics"
	"gm-dapp/internal/store"
)

const account = "eip155:1:0x00000000000000000000000000000000000000ee"

type countStub struct {
	n   int64
	err error
}

func (s countStub) Count(context.Context) (int64, error) { return s.n, s.err }

func TestCleanerRunOncePurgesExpiredChallenges(t *testing.T) {
	st := store.New()
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.IssueChallenge(account, time.Minute, issued.UnixMilli())

	cleaner := NewCleaner(st, countStub{n: 3}, WithNow(func() time.Time { return issued.Add(2 * time.Minute) }))
	require.NoError(t, cleaner.RunOnce(context.Background()))

	_, ok := st.PendingChallenge(account, issued.UnixMilli())
	assert.False(t, ok, "expired challenge should be purged")
	var m dto.Metric
	require.NoError(t, metrics.Subscribers.Write(&m))
	assert.Equal(t, float64(3), m.GetGauge().GetValue())
}

func TestCleanerRunOnceKeepsLiveChallenges(t *testing.T) {
	st := store.New()
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.IssueChallenge(account, time.Hour, issued.UnixMilli())

	cleaner := NewCleaner(st, nil, WithNow(func() time.Time { return issued.Add(time.Minute) }))
	require.NoError(t, cleaner.RunOnce(context.Background()))

	_, ok := st.PendingChallenge(account, issued.Add(time.Minute).UnixMilli())
	assert.True(t, ok)
}

func TestCleanerRunOnceReportsCountError(t *testing.T) {
	cleaner := NewCleaner(nil, countStub{err: errors.New("db down")})
	assert.EqualError(t, cleaner.RunOnce(context.Background()), "db down")
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	cleaner := NewCleaner(store.New(), nil, WithChallengeSchedule("not a spec"), WithCron(cron.New()))
	assert.Error(t, cleaner.Start())
}

func TestCleanerStartStop(t *testing.T) {
	cleaner := NewCleaner(store.New(), countStub{})
	require.NoError(t, cleaner.Start())
	select {
	case <-cleaner.Stop().Done():
	case <-time.After(time.Second):
		t.Fatalf("cleaner did not stop")
	}
}
