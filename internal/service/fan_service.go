package service

import (
	"context"
	"time"

	"github.com/tourze/wechat-fans-service/internal/cache"
	"github.com/tourze/wechat-fans-service/internal/domain"
	"github.com/tourze/wechat-fans-service/internal/repository"
	"github.com/tourze/wechat-fans-service/pkg/log"
)

const statsTTL = 5 * time.Minute

// fanServiceImpl implements FanService.
type fanServiceImpl struct {
	fans     repository.FanRepository
	tags     repository.TagRepository
	fanTags  repository.FanTagRepository
	accounts repository.AccountRepository
	cache    cache.StatsCache
}

// NewFanService creates a new fan service.
func NewFanService(
	fans repository.FanRepository,
	tags repository.TagRepository,
	fanTags repository.FanTagRepository,
	accounts repository.AccountRepository,
	statsCache cache.StatsCache,
) FanService {
	return &fanServiceImpl{
		fans:     fans,
		tags:     tags,
		fanTags:  fanTags,
		accounts: accounts,
		cache:    statsCache,
	}
}

func (s *fanServiceImpl) ListFans(ctx context.Context, query repository.FanQuery) (*FanPage, error) {
	if query.Status != nil && !query.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 || query.Limit > 200 {
		query.Limit = 20
	}

	fans, total, err := s.fans.FindPage(ctx, query)
	if err != nil {
		return nil, err
	}

	return &FanPage{
		Fans:  fans,
		Total: total,
		Page:  query.Page,
		Limit: query.Limit,
	}, nil
}

func (s *fanServiceImpl) GetFan(ctx context.Context, accountID, openid string) (*FanDetail, error) {
	fan, err := s.fans.FindByAccountAndOpenID(ctx, accountID, openid)
	if err != nil {
		return nil, err
	}

	names, err := s.fanTags.TagNamesByFan(ctx, fan.ID)
	if err != nil {
		return nil, err
	}

	return &FanDetail{Fan: fan, TagNames: names}, nil
}

// GetStats serves the per-account fan breakdown, cache-aside with a
// short TTL. Sync jobs invalidate the entry after mutating fan rows.
func (s *fanServiceImpl) GetStats(ctx context.Context, accountID string) (*cache.FanStats, error) {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	if stats, err := s.cache.Get(ctx, accountID); err == nil {
		return stats, nil
	} else if err != cache.ErrCacheMiss {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldAccountID, accountID).Msg("stats cache read failed")
	}

	stats := &cache.FanStats{AccountID: accountID}
	for _, pair := range []struct {
		status domain.FanStatus
		target *int64
	}{
		{domain.StatusSubscribed, &stats.Subscribed},
		{domain.StatusUnsubscribed, &stats.Unsubscribed},
		{domain.StatusBlocked, &stats.Blocked},
	} {
		count, err := s.fans.CountByAccountAndStatus(ctx, accountID, pair.status)
		if err != nil {
			return nil, err
		}
		*pair.target = count
	}
	stats.Total = stats.Subscribed + stats.Unsubscribed + stats.Blocked

	if err := s.cache.Set(ctx, stats, statsTTL); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldAccountID, accountID).Msg("stats cache write failed")
	}
	return stats, nil
}

func (s *fanServiceImpl) UpdateRemark(ctx context.Context, accountID, openid, remark string) error {
	return s.fans.UpdateRemark(ctx, accountID, openid, remark)
}

func (s *fanServiceImpl) ExportFans(ctx context.Context, accountID string, status *domain.FanStatus) ([]*FanDetail, error) {
	if status != nil && !status.Valid() {
		return nil, ErrInvalidStatus
	}

	fans, err := s.fans.FindAllByAccount(ctx, accountID, status)
	if err != nil {
		return nil, err
	}

	details := make([]*FanDetail, 0, len(fans))
	for _, fan := range fans {
		names, err := s.fanTags.TagNamesByFan(ctx, fan.ID)
		if err != nil {
			return nil, err
		}
		details = append(details, &FanDetail{Fan: fan, TagNames: names})
	}
	return details, nil
}

func (s *fanServiceImpl) AssignTag(ctx context.Context, accountID string, tagID int, openids []string) (int64, error) {
	return s.changeTagRelations(ctx, accountID, tagID, openids, s.fanTags.Assign)
}

func (s *fanServiceImpl) UnassignTag(ctx context.Context, accountID string, tagID int, openids []string) (int64, error) {
	return s.changeTagRelations(ctx, accountID, tagID, openids, s.fanTags.Unassign)
}

// changeTagRelations resolves the tag and fans, applies the relation
// change, then refreshes the tag's cached count.
func (s *fanServiceImpl) changeTagRelations(
	ctx context.Context,
	accountID string,
	tagID int,
	openids []string,
	apply func(ctx context.Context, fanIDs []uint, tagPK uint) (int64, error),
) (int64, error) {
	tag, err := s.tags.FindByAccountAndTagID(ctx, accountID, tagID)
	if err != nil {
		return 0, err
	}

	fans, err := s.fans.FindByAccountAndOpenIDs(ctx, accountID, openids)
	if err != nil {
		return 0, err
	}
	if len(fans) == 0 {
		return 0, nil
	}

	fanIDs := make([]uint, 0, len(fans))
	for _, fan := range fans {
		fanIDs = append(fanIDs, fan.ID)
	}

	changed, err := apply(ctx, fanIDs, tag.ID)
	if err != nil {
		return 0, err
	}

	if changed > 0 {
		if err := refreshTagCount(ctx, s.tags, s.fanTags, tag); err != nil {
			log.Ctx(ctx).Warn().Err(err).
				Str(log.FieldAccountID, accountID).
				Int(log.FieldTagID, tagID).
				Msg("failed to refresh tag count")
		}
	}
	return changed, nil
}
