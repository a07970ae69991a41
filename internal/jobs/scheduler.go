package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/config"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/metrics"
)

const (
	JobTokenCleanup  = "token_cleanup"
	JobActivityPrune = "activity_prune"

	jobTimeout = time.Minute
)

type TokenSweeper interface {
	ClearExpiredTokens(ctx context.Context) (int64, error)
}

type ActivityPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler runs periodic maintenance: expired verification and reset
// tokens are unset, and ledger rows past retention are deleted.
type Scheduler struct {
	cron     *cron.Cron
	cfg      config.JobsConfig
	tokens   TokenSweeper
	activity ActivityPruner
	log      zerolog.Logger
	now      func() time.Time
}

// NewScheduler builds the scheduler. A nil activity pruner skips the prune
// job.
func NewScheduler(cfg config.JobsConfig, tokens TokenSweeper, activity ActivityPruner, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		cfg:      cfg,
		tokens:   tokens,
		activity: activity,
		log:      log,
		now:      time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.tokens != nil && s.cfg.TokenCleanupSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.TokenCleanupSpec, s.runTokenCleanup); err != nil {
			return err
		}
	}
	if s.activity != nil && s.cfg.ActivityPruneSpec != "" && s.cfg.ActivityRetention > 0 {
		if _, err := s.cron.AddFunc(s.cfg.ActivityPruneSpec, s.runActivityPrune); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling and returns a context that is done once running
// jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runTokenCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	_ = s.CleanupTokens(ctx)
}

func (s *Scheduler) runActivityPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	_ = s.PruneActivity(ctx)
}

func (s *Scheduler) CleanupTokens(ctx context.Context) error {
	cleared, err := s.tokens.ClearExpiredTokens(ctx)
	metrics.MaintenanceRunsTotal.WithLabelValues(JobTokenCleanup, metrics.Outcome(err)).Inc()
	if err != nil {
		s.log.Error().Err(err).Str("job", JobTokenCleanup).Msg("maintenance job failed")
		return err
	}
	s.log.Info().Str("job", JobTokenCleanup).Int64("cleared", cleared).Msg("expired tokens cleared")
	return nil
}

func (s *Scheduler) PruneActivity(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.ActivityRetention)
	deleted, err := s.activity.DeleteOlderThan(ctx, cutoff)
	metrics.MaintenanceRunsTotal.WithLabelValues(JobActivityPrune, metrics.Outcome(err)).Inc()
	if err != nil {
		s.log.Error().Err(err).Str("job", JobActivityPrune).Msg("maintenance job failed")
		return err
	}
	s.log.Info().Str("job", JobActivityPrune).Int64("deleted", deleted).Time("cutoff", cutoff).Msg("activity pruned")
	return nil
}
