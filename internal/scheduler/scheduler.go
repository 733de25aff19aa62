package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tourze/wechat-fans-service/internal/reconciler"
	"github.com/tourze/wechat-fans-service/pkg/log"
)

// JobTimes holds the daily wall-clock time for each sync job in "HH:MM"
// form. The offsets are staggered so the jobs never hit the remote API
// at the same moment.
type JobTimes struct {
	Tags        string `mapstructure:"tags"`
	Followers   string `mapstructure:"followers"`
	UserDetails string `mapstructure:"user_details"`
	Blacklist   string `mapstructure:"blacklist"`
}

// DefaultJobTimes returns the stock schedule.
func DefaultJobTimes() JobTimes {
	return JobTimes{
		Tags:        "02:05",
		Followers:   "02:10",
		UserDetails: "02:30",
		Blacklist:   "02:50",
	}
}

func (t JobTimes) withDefaults() JobTimes {
	defaults := DefaultJobTimes()
	if t.Tags == "" {
		t.Tags = defaults.Tags
	}
	if t.Followers == "" {
		t.Followers = defaults.Followers
	}
	if t.UserDetails == "" {
		t.UserDetails = defaults.UserDetails
	}
	if t.Blacklist == "" {
		t.Blacklist = defaults.Blacklist
	}
	return t
}

// Scheduler fires the four sync jobs once per day at their configured
// times.
type Scheduler struct {
	runner *reconciler.Runner
	times  JobTimes
	quit   chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a scheduler.
func New(runner *reconciler.Runner, times JobTimes) *Scheduler {
	return &Scheduler{
		runner: runner,
		times:  times.withDefaults(),
		quit:   make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches one goroutine per job and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	jobs := []struct {
		name string
		at   string
	}{
		{reconciler.JobTags, s.times.Tags},
		{reconciler.JobFollowers, s.times.Followers},
		{reconciler.JobUserDetails, s.times.UserDetails},
		{reconciler.JobBlacklist, s.times.Blacklist},
	}

	for _, job := range jobs {
		hour, minute, err := parseClock(job.at)
		if err != nil {
			log.L().Error().Err(err).
				Str(log.FieldJob, job.name).
				Str("at", job.at).
				Msg("invalid schedule, job disabled")
			continue
		}
		s.wg.Add(1)
		go s.runJobLoop(ctx, job.name, hour, minute)
	}

	go func() {
		s.wg.Wait()
		close(s.doneCh)
	}()
}

// Stop signals the scheduler to stop and returns immediately.
// Call Done() to wait for it to exit.
func (s *Scheduler) Stop() {
	close(s.quit)
}

// Done returns a channel that is closed when every job loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.doneCh
}

func (s *Scheduler) runJobLoop(ctx context.Context, job string, hour, minute int) {
	defer s.wg.Done()

	logger := log.L().With().Str(log.FieldJob, job).Logger()
	logger.Info().Str("at", fmt.Sprintf("%02d:%02d", hour, minute)).Msg("sync job scheduled")

	for {
		wait := untilNext(time.Now(), hour, minute)
		timer := time.NewTimer(wait)

		select {
		case <-s.quit:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.runner.RunJob(ctx, job); err != nil {
			logger.Error().Err(err).Msg("scheduled sync job failed")
		}
	}
}

// untilNext returns the duration until the next daily occurrence of the
// given wall-clock time.
func untilNext(now time.Time, hour, minute int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// parseClock parses "HH:MM".
func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock time: %s", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour: %s", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute: %s", s)
	}
	return hour, minute, nil
}
