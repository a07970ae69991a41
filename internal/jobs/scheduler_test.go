package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/config"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/metrics"
)

type stubSweeper struct {
	calls int
	err   error
}

func (s *stubSweeper) ClearExpiredTokens(context.Context) (int64, error) {
	s.calls++
	return 3, s.err
}

type stubPruner struct {
	cutoff time.Time
	err    error
}

func (s *stubPruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return 7, s.err
}

func TestPruneActivityUsesRetention(t *testing.T) {
	pruner := &stubPruner{}
	s := NewScheduler(config.JobsConfig{ActivityRetention: 48 * time.Hour}, &stubSweeper{}, pruner, zerolog.Nop())
	now := time.Date(2026, 6, 15, 3, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.PruneActivity(context.Background()))
	assert.Equal(t, now.Add(-48*time.Hour), pruner.cutoff)
}

func TestCleanupTokensRecordsOutcome(t *testing.T) {
	sweeper := &stubSweeper{}
	s := NewScheduler(config.JobsConfig{}, sweeper, nil, zerolog.Nop())

	success := metrics.MaintenanceRunsTotal.WithLabelValues(JobTokenCleanup, metrics.OutcomeSuccess)
	failure := metrics.MaintenanceRunsTotal.WithLabelValues(JobTokenCleanup, metrics.OutcomeFailure)
	beforeOK, beforeFail := testutil.ToFloat64(success), testutil.ToFloat64(failure)

	require.NoError(t, s.CleanupTokens(context.Background()))
	sweeper.err = errors.New("mongo down")
	require.Error(t, s.CleanupTokens(context.Background()))

	assert.Equal(t, 2, sweeper.calls)
	assert.Equal(t, beforeOK+1, testutil.ToFloat64(success))
	assert.Equal(t, beforeFail+1, testutil.ToFloat64(failure))
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := NewScheduler(config.JobsConfig{TokenCleanupSpec: "not a spec"}, &stubSweeper{}, nil, zerolog.Nop())
	require.Error(t, s.Start())
}

func TestStartAndStop(t *testing.T) {
	s := NewScheduler(config.JobsConfig{
		TokenCleanupSpec:  "0 0 * * * *",
		ActivityPruneSpec: "0 30 3 * * *",
		ActivityRetention: time.Hour,
	}, &stubSweeper{}, &stubPruner{}, zerolog.Nop())

	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 2)

	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
