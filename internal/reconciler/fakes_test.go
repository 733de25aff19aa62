package reconciler

import (
	"context"
	"fmt"
	"sort"

	"github.com/tourze/wechat-fans-service/internal/domain"
	"github.com/tourze/wechat-fans-service/internal/repository"
	"github.com/tourze/wechat-fans-service/internal/wechat"
)

// fakeFanRepo is an in-memory FanRepository keyed by (account, openid).
type fakeFanRepo struct {
	fans        map[string]*domain.Fan // key: accountID + "/" + openid
	nextID      uint
	saveBatches int
	failSave    bool
}

func newFakeFanRepo() *fakeFanRepo {
	return &fakeFanRepo{fans: make(map[string]*domain.Fan)}
}

func fanKey(accountID, openid string) string { return accountID + "/" + openid }

func (r *fakeFanRepo) seed(fan *domain.Fan) {
	r.nextID++
	fan.ID = r.nextID
	clone := *fan
	r.fans[fanKey(fan.AccountID, fan.OpenID)] = &clone
}

func (r *fakeFanRepo) get(accountID, openid string) *domain.Fan {
	return r.fans[fanKey(accountID, openid)]
}

func (r *fakeFanRepo) FindByAccountAndOpenID(ctx context.Context, accountID, openid string) (*domain.Fan, error) {
	fan, ok := r.fans[fanKey(accountID, openid)]
	if !ok {
		return nil, repository.ErrFanNotFound
	}
	clone := *fan
	return &clone, nil
}

func (r *fakeFanRepo) FindByAccountAndOpenIDs(ctx context.Context, accountID string, openids []string) ([]*domain.Fan, error) {
	var out []*domain.Fan
	for _, openid := range openids {
		if fan, ok := r.fans[fanKey(accountID, openid)]; ok {
			clone := *fan
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeFanRepo) FindSubscribedByAccount(ctx context.Context, accountID string) ([]*domain.Fan, error) {
	status := domain.StatusSubscribed
	return r.FindAllByAccount(ctx, accountID, &status)
}

func (r *fakeFanRepo) FindAllByAccount(ctx context.Context, accountID string, status *domain.FanStatus) ([]*domain.Fan, error) {
	var out []*domain.Fan
	for _, fan := range r.fans {
		if fan.AccountID != accountID {
			continue
		}
		if status != nil && fan.Status != *status {
			continue
		}
		clone := *fan
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenID < out[j].OpenID })
	return out, nil
}

func (r *fakeFanRepo) FindPage(ctx context.Context, q repository.FanQuery) ([]*domain.Fan, int64, error) {
	fans, err := r.FindAllByAccount(ctx, q.AccountID, q.Status)
	if err != nil {
		return nil, 0, err
	}
	return fans, int64(len(fans)), nil
}

func (r *fakeFanRepo) CountByAccountAndStatus(ctx context.Context, accountID string, status domain.FanStatus) (int64, error) {
	var count int64
	for _, fan := range r.fans {
		if fan.AccountID == accountID && fan.Status == status {
			count++
		}
	}
	return count, nil
}

func (r *fakeFanRepo) SaveBatch(ctx context.Context, fans []*domain.Fan) error {
	if r.failSave {
		return fmt.Errorf("save failed")
	}
	r.saveBatches++
	for _, fan := range fans {
		if fan.ID == 0 {
			r.nextID++
			fan.ID = r.nextID
		}
		clone := *fan
		r.fans[fanKey(fan.AccountID, fan.OpenID)] = &clone
	}
	return nil
}

func (r *fakeFanRepo) BulkTransitionStatus(ctx context.Context, accountID string, from, to domain.FanStatus, excludeOpenIDs []string) (int64, error) {
	excluded := make(map[string]struct{}, len(excludeOpenIDs))
	for _, openid := range excludeOpenIDs {
		excluded[openid] = struct{}{}
	}

	var changed int64
	for _, fan := range r.fans {
		if fan.AccountID != accountID || fan.Status != from {
			continue
		}
		if _, ok := excluded[fan.OpenID]; ok {
			continue
		}
		fan.Status = to
		changed++
	}
	return changed, nil
}

func (r *fakeFanRepo) UpdateRemark(ctx context.Context, accountID, openid, remark string) error {
	fan, ok := r.fans[fanKey(accountID, openid)]
	if !ok {
		return repository.ErrFanNotFound
	}
	fan.Remark = remark
	return nil
}

var _ repository.FanRepository = (*fakeFanRepo)(nil)

// fakeTagRepo is an in-memory TagRepository.
type fakeTagRepo struct {
	tags   []*domain.Tag
	nextID uint
}

func newFakeTagRepo() *fakeTagRepo { return &fakeTagRepo{} }

func (r *fakeTagRepo) seed(tag *domain.Tag) {
	r.nextID++
	tag.ID = r.nextID
	clone := *tag
	r.tags = append(r.tags, &clone)
}

func (r *fakeTagRepo) FindByAccount(ctx context.Context, accountID string) ([]*domain.Tag, error) {
	var out []*domain.Tag
	for _, tag := range r.tags {
		if tag.AccountID == accountID {
			clone := *tag
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TagID < out[j].TagID })
	return out, nil
}

func (r *fakeTagRepo) FindByAccountAndTagID(ctx context.Context, accountID string, tagID int) (*domain.Tag, error) {
	for _, tag := range r.tags {
		if tag.AccountID == accountID && tag.TagID == tagID {
			clone := *tag
			return &clone, nil
		}
	}
	return nil, repository.ErrTagNotFound
}

func (r *fakeTagRepo) FindByAccountAndName(ctx context.Context, accountID, name string) (*domain.Tag, error) {
	for _, tag := range r.tags {
		if tag.AccountID == accountID && tag.Name == name {
			clone := *tag
			return &clone, nil
		}
	}
	return nil, repository.ErrTagNotFound
}

func (r *fakeTagRepo) MaxTagIDByAccount(ctx context.Context, accountID string) (int, error) {
	max := 0
	for _, tag := range r.tags {
		if tag.AccountID == accountID && tag.TagID > max {
			max = tag.TagID
		}
	}
	return max, nil
}

func (r *fakeTagRepo) Create(ctx context.Context, tag *domain.Tag) error {
	r.nextID++
	tag.ID = r.nextID
	clone := *tag
	r.tags = append(r.tags, &clone)
	return nil
}

func (r *fakeTagRepo) Update(ctx context.Context, tag *domain.Tag) error {
	for _, existing := range r.tags {
		if existing.AccountID == tag.AccountID && existing.TagID == tag.TagID {
			existing.Name = tag.Name
			existing.Count = tag.Count
			return nil
		}
	}
	return repository.ErrTagNotFound
}

func (r *fakeTagRepo) Delete(ctx context.Context, accountID string, tagID int) error {
	for i, tag := range r.tags {
		if tag.AccountID == accountID && tag.TagID == tagID {
			r.tags = append(r.tags[:i], r.tags[i+1:]...)
			return nil
		}
	}
	return repository.ErrTagNotFound
}

func (r *fakeTagRepo) ApplySync(ctx context.Context, accountID string, upserts []*domain.Tag, deleteTagIDs []int) error {
	for _, tag := range upserts {
		if tag.ID == 0 {
			r.nextID++
			tag.ID = r.nextID
			clone := *tag
			r.tags = append(r.tags, &clone)
			continue
		}
		for _, existing := range r.tags {
			if existing.ID == tag.ID {
				existing.Name = tag.Name
				existing.Count = tag.Count
			}
		}
	}

	for _, tagID := range deleteTagIDs {
		for i := len(r.tags) - 1; i >= 0; i-- {
			if r.tags[i].AccountID == accountID && r.tags[i].TagID == tagID {
				r.tags = append(r.tags[:i], r.tags[i+1:]...)
			}
		}
	}
	return nil
}

var _ repository.TagRepository = (*fakeTagRepo)(nil)

// fakeClient serves scripted responses.
type fakeClient struct {
	followerPages []*wechat.FollowerPage
	followerErrs  []error
	followerCalls int

	blacklistPages []*wechat.FollowerPage
	blacklistCalls int

	tags    []wechat.TagInfo
	tagsErr error

	detailBatches []detailBatch
	detailCalls   int
}

type detailBatch struct {
	infos []wechat.UserInfo
	err   error
}

func (c *fakeClient) GetFollowers(ctx context.Context, account *domain.Account, cursor string) (*wechat.FollowerPage, error) {
	i := c.followerCalls
	c.followerCalls++
	if i < len(c.followerErrs) && c.followerErrs[i] != nil {
		return nil, c.followerErrs[i]
	}
	if i >= len(c.followerPages) {
		return nil, fmt.Errorf("unexpected follower page request %d", i)
	}
	return c.followerPages[i], nil
}

func (c *fakeClient) GetBlacklist(ctx context.Context, account *domain.Account, cursor string) (*wechat.FollowerPage, error) {
	i := c.blacklistCalls
	c.blacklistCalls++
	if i >= len(c.blacklistPages) {
		return nil, fmt.Errorf("unexpected blacklist page request %d", i)
	}
	return c.blacklistPages[i], nil
}

func (c *fakeClient) GetTags(ctx context.Context, account *domain.Account) ([]wechat.TagInfo, error) {
	if c.tagsErr != nil {
		return nil, c.tagsErr
	}
	return c.tags, nil
}

func (c *fakeClient) BatchGetUserInfo(ctx context.Context, account *domain.Account, openids []string) ([]wechat.UserInfo, error) {
	i := c.detailCalls
	c.detailCalls++
	if i >= len(c.detailBatches) {
		return nil, fmt.Errorf("unexpected detail batch request %d", i)
	}
	batch := c.detailBatches[i]
	if batch.err != nil {
		return nil, batch.err
	}
	return batch.infos, nil
}

var _ DirectoryClient = (*fakeClient)(nil)

func intPtr(v int) *int          { return &v }
func int64Ptr(v int64) *int64    { return &v }
func strPtr(v string) *string    { return &v }
func page(openids []string, total int, next string) *wechat.FollowerPage {
	return &wechat.FollowerPage{
		OpenIDs:    openids,
		HasData:    true,
		Total:      intPtr(total),
		NextCursor: next,
	}
}

func emptyPage() *wechat.FollowerPage {
	return &wechat.FollowerPage{Total: intPtr(0)}
}

func malformedPage() *wechat.FollowerPage {
	return &wechat.FollowerPage{}
}

func testAccount() *domain.Account {
	return &domain.Account{ID: "acct-1", Name: "test", AppID: "wx123", AppSecret: "secret", Valid: true}
}

func testOptions() Options {
	return Options{
		PageDelay:       1,
		DetailDelay:     1,
		UpsertBatchSize: 100,
		DetailBatchSize: 80,
	}
}
