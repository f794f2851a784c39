package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// JobFunc is invoked on every interval. The bucket argument is the aligned
// interval start the run belongs to.
type JobFunc func(ctx context.Context, bucket time.Time) error

// Options tune the sync loop.
type Options struct {
	Interval       time.Duration
	AlignToBucket  bool
	StartupDelay   time.Duration
	RunImmediately bool
}

// Loop drives a recurring job on a fixed interval, optionally aligned to
// wall-clock interval boundaries so runs land on predictable buckets.
type Loop struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a sync loop.
func New(opts Options, logger zerolog.Logger) *Loop {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Loop{opts: opts, logger: logger.With().Str("component", "sync_loop").Logger()}
}

// Run blocks, invoking the job at each interval until ctx is cancelled. Job
// errors are logged and the loop keeps going; only cancellation stops it.
func (l *Loop) Run(ctx context.Context, job JobFunc) error {
	if l.opts.StartupDelay > 0 {
		timer := time.NewTimer(l.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if l.opts.RunImmediately {
		now := time.Now().UTC()
		l.logger.Info().Time("bucket", l.bucketStart(now)).Msg("running startup sync")
		if err := job(ctx, l.bucketStart(now)); err != nil {
			l.logger.Error().Err(err).Msg("startup sync failed")
		}
	}

	next := l.nextRun(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = l.nextRun(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		l.logger.Debug().Time("next_run", next).Msg("waiting for next sync run")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		bucket := l.bucketStart(next)
		l.logger.Info().Time("bucket", bucket).Msg("running scheduled sync")

		if err := job(ctx, bucket); err != nil {
			l.logger.Error().Err(err).Time("bucket", bucket).Msg("sync run failed")
		}

		next = next.Add(l.opts.Interval)
	}
}

func (l *Loop) nextRun(now time.Time) time.Time {
	if !l.opts.AlignToBucket {
		return now.Add(l.opts.Interval)
	}
	bucket := now.Truncate(l.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(l.opts.Interval)
	}
	return bucket
}

func (l *Loop) bucketStart(t time.Time) time.Time {
	if !l.opts.AlignToBucket {
		return t
	}
	return t.Truncate(l.opts.Interval)
}
