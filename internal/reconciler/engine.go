package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/tourze/wechat-fans-service/internal/domain"
	"github.com/tourze/wechat-fans-service/internal/repository"
	"github.com/tourze/wechat-fans-service/internal/wechat"
	"github.com/tourze/wechat-fans-service/pkg/log"
)

// DirectoryClient is the remote API surface the engine reconciles
// against.
type DirectoryClient interface {
	GetFollowers(ctx context.Context, account *domain.Account, cursor string) (*wechat.FollowerPage, error)
	GetBlacklist(ctx context.Context, account *domain.Account, cursor string) (*wechat.FollowerPage, error)
	GetTags(ctx context.Context, account *domain.Account) ([]wechat.TagInfo, error)
	BatchGetUserInfo(ctx context.Context, account *domain.Account, openids []string) ([]wechat.UserInfo, error)
}

// Options tunes engine pacing and batch sizes. Zero values fall back to
// the defaults the remote API is known to tolerate.
type Options struct {
	// PageDelay is the pause between list pages.
	PageDelay time.Duration
	// DetailDelay is the pause between user-detail batches.
	DetailDelay time.Duration
	// UpsertBatchSize is the chunk size for list upserts.
	UpsertBatchSize int
	// DetailBatchSize is the openid count per user-detail request.
	DetailBatchSize int
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.PageDelay <= 0 {
		opts.PageDelay = 100 * time.Millisecond
	}
	if opts.DetailDelay <= 0 {
		opts.DetailDelay = 200 * time.Millisecond
	}
	if opts.UpsertBatchSize <= 0 {
		opts.UpsertBatchSize = 100
	}
	if opts.DetailBatchSize <= 0 {
		opts.DetailBatchSize = 80
	}
	return opts
}

// Engine reconciles the local fan mirror against the remote directory.
// All methods operate on a single account; iteration over accounts is
// the runner's job.
type Engine struct {
	fans   repository.FanRepository
	tags   repository.TagRepository
	client DirectoryClient
	opts   Options
}

// NewEngine creates a reconciliation engine.
func NewEngine(fans repository.FanRepository, tags repository.TagRepository, client DirectoryClient, opts Options) *Engine {
	return &Engine{
		fans:   fans,
		tags:   tags,
		client: client,
		opts:   opts.withDefaults(),
	}
}

// FullListResult summarises one full-list reconciliation.
type FullListResult struct {
	Total   int   // openids seen across all pages
	Created int   // fan rows created
	Updated int   // fan rows whose status changed
	Removed int64 // fans moved out of the target status
}

// listKind parameterises the full-list sync for the two openid lists the
// remote exposes.
type listKind struct {
	job    string
	target domain.FanStatus
	fetch  func(ctx context.Context, account *domain.Account, cursor string) (*wechat.FollowerPage, error)
}

// SyncFollowers reconciles the follower list: everyone on the list
// becomes subscribed (blocked fans keep their status, the blacklist sync
// owns that transition), everyone else who was subscribed becomes
// unsubscribed.
func (e *Engine) SyncFollowers(ctx context.Context, account *domain.Account) (*FullListResult, error) {
	return e.syncFullList(ctx, account, listKind{
		job:    "followers",
		target: domain.StatusSubscribed,
		fetch:  e.client.GetFollowers,
	})
}

// SyncBlacklist reconciles the blacklist: everyone on the list becomes
// blocked, every blocked fan no longer listed becomes unsubscribed.
func (e *Engine) SyncBlacklist(ctx context.Context, account *domain.Account) (*FullListResult, error) {
	return e.syncFullList(ctx, account, listKind{
		job:    "blacklist",
		target: domain.StatusBlocked,
		fetch:  e.client.GetBlacklist,
	})
}

// syncFullList walks the paginated openid list, upserting fans in chunks
// as pages arrive, then moves every fan still in the target status but
// absent from the list out of it in a single statement over the full
// accumulated set.
func (e *Engine) syncFullList(ctx context.Context, account *domain.Account, kind listKind) (*FullListResult, error) {
	logger := log.Ctx(ctx).With().
		Str(log.FieldAccountID, account.ID).
		Str(log.FieldJob, kind.job).
		Logger()

	result := &FullListResult{}
	seen := make([]string, 0, 256)

	cursor := ""
	for page := 0; ; page++ {
		resp, err := kind.fetch(ctx, account, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}

		if !resp.HasData {
			// A response without an openid array is only legitimate when
			// the remote says the list is empty. Anything else means the
			// payload is malformed; abort without touching local rows.
			if resp.Total != nil && *resp.Total == 0 {
				break
			}
			return nil, fmt.Errorf("page %d: %w", page, wechat.ErrMalformedResponse)
		}

		seen = append(seen, resp.OpenIDs...)
		result.Total += len(resp.OpenIDs)

		for _, chunk := range chunkStrings(resp.OpenIDs, e.opts.UpsertBatchSize) {
			created, updated, err := e.upsertChunk(ctx, account, chunk, kind.target)
			if err != nil {
				return nil, fmt.Errorf("upsert chunk: %w", err)
			}
			result.Created += created
			result.Updated += updated
		}

		if resp.NextCursor == "" || len(resp.OpenIDs) == 0 {
			break
		}
		cursor = resp.NextCursor

		if err := sleepCtx(ctx, e.opts.PageDelay); err != nil {
			return nil, err
		}
	}

	// Single complement transition over the whole list. An empty list
	// legitimately moves every fan out of the target status.
	removed, err := e.fans.BulkTransitionStatus(ctx, account.ID, kind.target, domain.StatusUnsubscribed, seen)
	if err != nil {
		return nil, fmt.Errorf("transition absentees: %w", err)
	}
	result.Removed = removed

	logger.Info().
		Int("total", result.Total).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int64("removed", result.Removed).
		Msg("full list sync finished")

	return result, nil
}

// upsertChunk brings one chunk of listed openids to the target status.
// One repository call persists the whole chunk.
func (e *Engine) upsertChunk(ctx context.Context, account *domain.Account, openids []string, target domain.FanStatus) (created, updated int, err error) {
	existing, err := e.fans.FindByAccountAndOpenIDs(ctx, account.ID, openids)
	if err != nil {
		return 0, 0, err
	}

	byOpenID := make(map[string]*domain.Fan, len(existing))
	for _, fan := range existing {
		byOpenID[fan.OpenID] = fan
	}

	dirty := make([]*domain.Fan, 0, len(openids))
	for _, openid := range openids {
		fan, ok := byOpenID[openid]
		if !ok {
			dirty = append(dirty, &domain.Fan{
				AccountID: account.ID,
				OpenID:    openid,
				Status:    target,
			})
			created++
			continue
		}

		if fan.Status == target {
			continue
		}
		// The blacklist is authoritative: a blocked fan showing up on the
		// follower list stays blocked until the blacklist sync releases it.
		if target == domain.StatusSubscribed && fan.Status == domain.StatusBlocked {
			continue
		}

		fan.Status = target
		dirty = append(dirty, fan)
		updated++
	}

	if len(dirty) == 0 {
		return created, updated, nil
	}
	if err := e.fans.SaveBatch(ctx, dirty); err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}

func chunkStrings(items []string, size int) [][]string {
	if len(items) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// sleepCtx pauses without ignoring cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
