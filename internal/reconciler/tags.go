package reconciler

import (
	"context"
	"fmt"

	"github.com/tourze/wechat-fans-service/internal/domain"
	"github.com/tourze/wechat-fans-service/pkg/log"
)

// TagSyncResult summarises one tag-definition reconciliation.
type TagSyncResult struct {
	Created int
	Updated int
	Deleted int
}

// SyncTagDefinitions makes the local tag table an exact mirror of the
// remote tag list: remote tags are upserted by external id, local tags
// the remote no longer reports are deleted along with their relations.
// The whole outcome is written in one transaction.
func (e *Engine) SyncTagDefinitions(ctx context.Context, account *domain.Account) (*TagSyncResult, error) {
	logger := log.Ctx(ctx).With().
		Str(log.FieldAccountID, account.ID).
		Str(log.FieldJob, "tags").
		Logger()

	remote, err := e.client.GetTags(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("fetch tags: %w", err)
	}

	local, err := e.tags.FindByAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("load local tags: %w", err)
	}

	byTagID := make(map[int]*domain.Tag, len(local))
	for _, tag := range local {
		byTagID[tag.TagID] = tag
	}

	result := &TagSyncResult{}
	upserts := make([]*domain.Tag, 0, len(remote))
	remoteIDs := make(map[int]struct{}, len(remote))

	for _, info := range remote {
		remoteIDs[info.ID] = struct{}{}

		if existing, ok := byTagID[info.ID]; ok {
			if existing.Name != info.Name || existing.Count != info.Count {
				existing.Name = info.Name
				existing.Count = info.Count
				upserts = append(upserts, existing)
				result.Updated++
			}
			continue
		}

		upserts = append(upserts, &domain.Tag{
			AccountID: account.ID,
			TagID:     info.ID,
			Name:      info.Name,
			Count:     info.Count,
		})
		result.Created++
	}

	var deleteTagIDs []int
	for _, tag := range local {
		if _, ok := remoteIDs[tag.TagID]; !ok {
			deleteTagIDs = append(deleteTagIDs, tag.TagID)
		}
	}
	result.Deleted = len(deleteTagIDs)

	if err := e.tags.ApplySync(ctx, account.ID, upserts, deleteTagIDs); err != nil {
		return nil, fmt.Errorf("apply tag sync: %w", err)
	}

	logger.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("deleted", result.Deleted).
		Msg("tag sync finished")

	return result, nil
}
