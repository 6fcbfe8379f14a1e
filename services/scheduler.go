// services/scheduler.go
package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSweepScheduler runs Sweep and the expired-session purge every interval.
// The caller owns the returned scheduler and shuts it down.
func (s *MatchmakingService) StartSweepScheduler(ctx context.Context, interval time.Duration, auth *AuthService) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(s.clock))
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			report, err := s.Sweep(ctx)
			if err != nil {
				s.log.Error("matchmaking [Scheduler] sweep", "err", err)
				return
			}
			if report.QueueCleared || report.MatchesRemoved > 0 {
				s.log.Info("✅ Sweep done", "queue_cleared", report.QueueCleared, "matches_removed", report.MatchesRemoved)
			}

			if auth == nil {
				return
			}
			n, err := auth.PurgeExpiredSessions(ctx)
			if err != nil {
				s.log.Error("matchmaking [Scheduler] session purge", "err", err)
				return
			}
			if n > 0 {
				s.log.Info("✅ Purged expired sessions", "count", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
