package reconciler

import (
	"context"
	"fmt"

	"github.com/tourze/wechat-fans-service/internal/cache"
	"github.com/tourze/wechat-fans-service/internal/domain"
	"github.com/tourze/wechat-fans-service/internal/events"
	"github.com/tourze/wechat-fans-service/internal/repository"
	"github.com/tourze/wechat-fans-service/pkg/log"
)

// Job names accepted by Runner.RunJob.
const (
	JobFollowers   = "followers"
	JobBlacklist   = "blacklist"
	JobTags        = "tags"
	JobUserDetails = "user-details"
)

// ErrUnknownJob is returned by RunJob for a name it does not recognise.
var ErrUnknownJob = fmt.Errorf("unknown sync job")

// Runner drives the engine across every active account. Accounts run
// sequentially; one account failing does not stop the others.
type Runner struct {
	accounts  repository.AccountRepository
	engine    *Engine
	cache     cache.StatsCache
	publisher events.Publisher
}

// NewRunner creates a runner.
func NewRunner(accounts repository.AccountRepository, engine *Engine, statsCache cache.StatsCache, publisher events.Publisher) *Runner {
	return &Runner{
		accounts:  accounts,
		engine:    engine,
		cache:     statsCache,
		publisher: publisher,
	}
}

// RunJob executes one named sync job across all active accounts. Used by
// the scheduler and the on-demand endpoint.
func (r *Runner) RunJob(ctx context.Context, job string) error {
	switch job {
	case JobFollowers:
		return r.SyncAllFollowers(ctx)
	case JobBlacklist:
		return r.SyncAllBlacklist(ctx)
	case JobTags:
		return r.SyncAllTags(ctx)
	case JobUserDetails:
		return r.SyncAllUserDetails(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownJob, job)
	}
}

// SyncAllFollowers runs the follower-list sync for every active account.
func (r *Runner) SyncAllFollowers(ctx context.Context) error {
	return r.eachActive(ctx, JobFollowers, func(ctx context.Context, account *domain.Account) error {
		result, err := r.engine.SyncFollowers(ctx, account)
		if err != nil {
			return err
		}
		r.finishAccount(ctx, account, JobFollowers, map[string]interface{}{
			"total":   result.Total,
			"created": result.Created,
			"updated": result.Updated,
			"removed": result.Removed,
		})
		return nil
	})
}

// SyncAllBlacklist runs the blacklist sync for every active account.
func (r *Runner) SyncAllBlacklist(ctx context.Context) error {
	return r.eachActive(ctx, JobBlacklist, func(ctx context.Context, account *domain.Account) error {
		result, err := r.engine.SyncBlacklist(ctx, account)
		if err != nil {
			return err
		}
		r.finishAccount(ctx, account, JobBlacklist, map[string]interface{}{
			"total":   result.Total,
			"created": result.Created,
			"updated": result.Updated,
			"removed": result.Removed,
		})
		return nil
	})
}

// SyncAllTags runs the tag-definition sync for every active account.
func (r *Runner) SyncAllTags(ctx context.Context) error {
	return r.eachActive(ctx, JobTags, func(ctx context.Context, account *domain.Account) error {
		result, err := r.engine.SyncTagDefinitions(ctx, account)
		if err != nil {
			return err
		}
		r.publishEvent(ctx, events.SyncCompleted(account.ID, JobTags, map[string]interface{}{
			"created": result.Created,
			"updated": result.Updated,
			"deleted": result.Deleted,
		}))
		return nil
	})
}

// SyncAllUserDetails runs the profile-detail sync for every active
// account, publishing an unsubscribe event per fan it reveals as gone.
func (r *Runner) SyncAllUserDetails(ctx context.Context) error {
	return r.eachActive(ctx, JobUserDetails, func(ctx context.Context, account *domain.Account) error {
		result, err := r.engine.SyncUserDetails(ctx, account)
		if err != nil {
			return err
		}
		for _, openid := range result.UnsubscribedOpenIDs {
			r.publishEvent(ctx, events.FanUnsubscribed(account.ID, openid))
		}
		r.finishAccount(ctx, account, JobUserDetails, map[string]interface{}{
			"total":   result.Total,
			"updated": result.Updated,
			"failed":  result.Failed,
		})
		return nil
	})
}

// eachActive iterates active accounts sequentially, isolating failures
// per account.
func (r *Runner) eachActive(ctx context.Context, job string, fn func(ctx context.Context, account *domain.Account) error) error {
	accounts, err := r.accounts.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("load active accounts: %w", err)
	}

	logger := log.Ctx(ctx).With().Str(log.FieldJob, job).Logger()
	logger.Info().Int("accounts", len(accounts)).Msg("sync job started")

	var failed int
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, account); err != nil {
			failed++
			logger.Error().Err(err).
				Str(log.FieldAccountID, account.ID).
				Msg("account sync failed")
		}
	}

	logger.Info().
		Int("accounts", len(accounts)).
		Int("failed", failed).
		Msg("sync job finished")
	return nil
}

// finishAccount invalidates the cached stats and publishes the summary
// event for one account.
func (r *Runner) finishAccount(ctx context.Context, account *domain.Account, job string, stats map[string]interface{}) {
	if err := r.cache.Invalidate(ctx, account.ID); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str(log.FieldAccountID, account.ID).
			Msg("failed to invalidate stats cache")
	}
	r.publishEvent(ctx, events.SyncCompleted(account.ID, job, stats))
}

func (r *Runner) publishEvent(ctx context.Context, event *events.Event) {
	if err := r.publisher.Publish(ctx, event); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("event_type", event.Type).
			Str(log.FieldAccountID, event.AccountID).
			Msg("failed to publish event")
	}
}
