// Package maintenance runs the periodic housekeeping jobs of gm-server.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"gm-dapp/internal/logger"
	"gm-dapp/internal/metrics"
)

const (
	defaultChallengeSpec  = "@every 5m"
	defaultSubscriberSpec = "@every 1m"
)

// ChallengeStore drops registration challenges that expired before now.
type ChallengeStore interface {
	PurgeExpiredChallenges(nowMillis int64) int
}

type SubscriberCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Cleaner purges expired challenges and refreshes the subscriber gauge.
type Cleaner struct {
	challenges  ChallengeStore
	subscribers SubscriberCounter
	cron        *cron.Cron
	now         func() time.Time
	log         *zap.Logger

	challengeSchedule  string
	subscriberSchedule string
}

type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

func WithChallengeSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.challengeSchedule = spec
		}
	}
}

func WithSubscriberSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.subscriberSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil dependency disables its job.
func NewCleaner(challenges ChallengeStore, subscribers SubscriberCounter, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		challenges:         challenges,
		subscribers:        subscribers,
		now:                time.Now,
		log:                logger.WithModule("maintenance"),
		challengeSchedule:  defaultChallengeSpec,
		subscriberSchedule: defaultSubscriberSpec,
	}
	for _, opt := range opts {
		opt(cleaner)
	}
	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start registers the jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.challenges == nil && c.subscribers == nil {
		return nil
	}

	if c.challenges != nil {
		if _, err := c.cron.AddFunc(c.challengeSchedule, func() {
			c.purgeChallenges()
		}); err != nil {
			return err
		}
	}

	if c.subscribers != nil {
		if _, err := c.cron.AddFunc(c.subscriberSchedule, func() {
			if err := c.refreshSubscribers(context.Background()); err != nil {
				c.log.Warn("subscriber count failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler; the returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.challenges != nil {
		c.purgeChallenges()
	}
	if c.subscribers != nil {
		errs = multierr.Append(errs, c.refreshSubscribers(ctx))
	}
	return errs
}

func (c *Cleaner) purgeChallenges() int {
	n := c.challenges.PurgeExpiredChallenges(c.now().UnixMilli())
	if n > 0 {
		metrics.ChallengesPurged.Add(float64(n))
		c.log.Debug("expired challenges purged", zap.Int("count", n))
	}
	return n
}

func (c *Cleaner) refreshSubscribers(ctx context.Context) error {
	n, err := c.subscribers.Count(ctx)
	if err != nil {
		return err
	}
	metrics.Subscribers.Set(float64(n))
	return nil
}
