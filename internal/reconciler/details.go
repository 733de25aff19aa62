package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/tourze/wechat-fans-service/internal/domain"
	"github.com/tourze/wechat-fans-service/internal/wechat"
	"github.com/tourze/wechat-fans-service/pkg/log"
)

// DetailSyncResult summarises one user-detail reconciliation.
type DetailSyncResult struct {
	Total   int // fans whose details were requested
	Updated int // fan rows written
	Failed  int // records that could not be applied

	// UnsubscribedOpenIDs are fans the detail payload revealed as no
	// longer following. Their rows are already transitioned; the list is
	// for event publication.
	UnsubscribedOpenIDs []string
}

// SyncUserDetails refreshes profile fields for every subscribed fan of
// the account, in fixed-size batches with a pause between them. A failed
// batch counts all of its fans as failures and the remaining batches
// still run. Individual profile fields are applied leniently: a field
// the payload omits or mistypes leaves the stored value untouched.
func (e *Engine) SyncUserDetails(ctx context.Context, account *domain.Account) (*DetailSyncResult, error) {
	logger := log.Ctx(ctx).With().
		Str(log.FieldAccountID, account.ID).
		Str(log.FieldJob, "user-details").
		Logger()

	fans, err := e.fans.FindSubscribedByAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("load subscribed fans: %w", err)
	}

	byOpenID := make(map[string]*domain.Fan, len(fans))
	openids := make([]string, 0, len(fans))
	for _, fan := range fans {
		byOpenID[fan.OpenID] = fan
		openids = append(openids, fan.OpenID)
	}

	result := &DetailSyncResult{Total: len(openids)}
	batches := chunkStrings(openids, e.opts.DetailBatchSize)

	for i, batch := range batches {
		infos, err := e.client.BatchGetUserInfo(ctx, account, batch)
		if err != nil {
			// The whole batch is lost but later batches may still succeed.
			result.Failed += len(batch)
			logger.Warn().Err(err).Int(log.FieldBatch, i).Msg("user detail batch failed")
		} else {
			updated, failed := e.applyDetailBatch(ctx, account, byOpenID, infos, result)
			result.Updated += updated
			result.Failed += failed
		}

		if i < len(batches)-1 {
			if err := sleepCtx(ctx, e.opts.DetailDelay); err != nil {
				return nil, err
			}
		}
	}

	event := logger.Info().
		Int("total", result.Total).
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Int("unsubscribed", len(result.UnsubscribedOpenIDs))
	if result.Total > 0 {
		event = event.Float64("success_rate", float64(result.Updated)/float64(result.Total)*100)
	}
	event.Msg("user detail sync finished")

	return result, nil
}

// applyDetailBatch folds one batch of detail records into the mirror and
// persists the changed rows in a single transaction.
func (e *Engine) applyDetailBatch(ctx context.Context, account *domain.Account, byOpenID map[string]*domain.Fan, infos []wechat.UserInfo, result *DetailSyncResult) (updated, failed int) {
	dirty := make([]*domain.Fan, 0, len(infos))

	for i := range infos {
		info := &infos[i]
		// A record we cannot match to a fan is dropped; it does not fail
		// the rest of the batch.
		if info.OpenID == "" {
			continue
		}
		fan, ok := byOpenID[info.OpenID]
		if !ok {
			continue
		}

		applyUserInfo(fan, info)
		if info.Subscribe != nil && *info.Subscribe == 0 {
			fan.Status = domain.StatusUnsubscribed
			result.UnsubscribedOpenIDs = append(result.UnsubscribedOpenIDs, fan.OpenID)
		}

		dirty = append(dirty, fan)
		updated++
	}

	if len(dirty) > 0 {
		if err := e.fans.SaveBatch(ctx, dirty); err != nil {
			log.Ctx(ctx).Warn().Err(err).
				Str(log.FieldAccountID, account.ID).
				Msg("failed to persist user detail batch")
			return 0, failed + updated
		}
	}
	return updated, failed
}

// applyUserInfo copies the decoded profile fields onto the fan. Only
// fields the payload actually carried are written.
func applyUserInfo(fan *domain.Fan, info *wechat.UserInfo) {
	if info.UnionID != nil {
		fan.UnionID = *info.UnionID
	}
	if info.Nickname != nil {
		fan.Nickname = *info.Nickname
	}
	if info.AvatarURL != nil {
		fan.AvatarURL = *info.AvatarURL
	}
	if info.Sex != nil {
		fan.Sex = domain.GenderFromInt(*info.Sex)
	}
	if info.Language != nil {
		fan.Language = *info.Language
	}
	if info.City != nil {
		fan.City = *info.City
	}
	if info.Province != nil {
		fan.Province = *info.Province
	}
	if info.Country != nil {
		fan.Country = *info.Country
	}
	if info.Remark != nil {
		fan.Remark = *info.Remark
	}
	if info.SubscribeTime != nil {
		t := time.Unix(*info.SubscribeTime, 0).UTC()
		fan.SubscribeTime = &t
	}
}
