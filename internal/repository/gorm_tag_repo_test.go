package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourze/wechat-fans-service/internal/domain"
)

func TestTagRepoCreateAndFind(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db, "acct-1")
	repo := NewGormTagRepository(db)
	ctx := context.Background()

	tag := &domain.Tag{AccountID: account.ID, TagID: 1, Name: "VIP", Count: 5}
	require.NoError(t, repo.Create(ctx, tag))
	assert.NotZero(t, tag.ID)

	got, err := repo.FindByAccountAndTagID(ctx, account.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "VIP", got.Name)

	got, err = repo.FindByAccountAndName(ctx, account.ID, "VIP")
	require.NoError(t, err)
	assert.Equal(t, 1, got.TagID)

	_, err = repo.FindByAccountAndTagID(ctx, account.ID, 99)
	assert.ErrorIs(t, err, ErrTagNotFound)
}

func TestTagRepoCreateDuplicateName(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db, "acct-1")
	repo := NewGormTagRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Tag{AccountID: account.ID, TagID: 1, Name: "VIP"}))
	err := repo.Create(ctx, &domain.Tag{AccountID: account.ID, TagID: 2, Name: "VIP"})
	assert.ErrorIs(t, err, ErrDuplicateTag)
}

func TestTagRepoMaxTagID(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db, "acct-1")
	repo := NewGormTagRepository(db)
	ctx := context.Background()

	max, err := repo.MaxTagIDByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, max)

	require.NoError(t, repo.Create(ctx, &domain.Tag{AccountID: account.ID, TagID: 7, Name: "VIP"}))
	require.NoError(t, repo.Create(ctx, &domain.Tag{AccountID: account.ID, TagID: 3, Name: "Newbie"}))

	max, err = repo.MaxTagIDByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, max)
}

func TestTagRepoDeleteRemovesRelations(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db, "acct-1")
	tagRepo := NewGormTagRepository(db)
	fanTagRepo := NewGormFanTagRepository(db)
	ctx := context.Background()

	fan := seedFan(t, db, account.ID, "A", domain.StatusSubscribed)
	tag := &domain.Tag{AccountID: account.ID, TagID: 1, Name: "VIP"}
	require.NoError(t, tagRepo.Create(ctx, tag))

	_, err := fanTagRepo.Assign(ctx, []uint{fan.ID}, tag.ID)
	require.NoError(t, err)

	require.NoError(t, tagRepo.Delete(ctx, account.ID, 1))

	_, err = tagRepo.FindByAccountAndTagID(ctx, account.ID, 1)
	assert.ErrorIs(t, err, ErrTagNotFound)

	count, err := fanTagRepo.CountByTag(ctx, tag.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTagRepoApplySync(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db, "acct-1")
	repo := NewGormTagRepository(db)
	ctx := context.Background()

	vip := &domain.Tag{AccountID: account.ID, TagID: 1, Name: "VIP", Count: 10}
	newbie := &domain.Tag{AccountID: account.ID, TagID: 2, Name: "Newbie", Count: 3}
	require.NoError(t, repo.Create(ctx, vip))
	require.NoError(t, repo.Create(ctx, newbie))

	vip.Count = 12
	active := &domain.Tag{AccountID: account.ID, TagID: 3, Name: "Active", Count: 7}

	require.NoError(t, repo.ApplySync(ctx, account.ID, []*domain.Tag{vip, active}, []int{2}))

	tags, err := repo.FindByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, 1, tags[0].TagID)
	assert.Equal(t, 12, tags[0].Count)
	assert.Equal(t, 3, tags[1].TagID)
	assert.Equal(t, "Active", tags[1].Name)
}

func TestTagRepoApplySyncReclaimsDeletedName(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db, "acct-1")
	repo := NewGormTagRepository(db)
	ctx := context.Background()

	vip := &domain.Tag{AccountID: account.ID, TagID: 1, Name: "VIP", Count: 10}
	gold := &domain.Tag{AccountID: account.ID, TagID: 2, Name: "Gold", Count: 3}
	require.NoError(t, repo.Create(ctx, vip))
	require.NoError(t, repo.Create(ctx, gold))

	// The surviving tag takes over the name of the tag removed in the
	// same pass; the unique name index must not reject the rename.
	vip.Name = "Gold"
	require.NoError(t, repo.ApplySync(ctx, account.ID, []*domain.Tag{vip}, []int{2}))

	tags, err := repo.FindByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, 1, tags[0].TagID)
	assert.Equal(t, "Gold", tags[0].Name)
}

func TestFanTagRepoAssignSkipsExisting(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db, "acct-1")
	tagRepo := NewGormTagRepository(db)
	fanTagRepo := NewGormFanTagRepository(db)
	ctx := context.Background()

	fanA := seedFan(t, db, account.ID, "A", domain.StatusSubscribed)
	fanB := seedFan(t, db, account.ID, "B", domain.StatusSubscribed)
	tag := &domain.Tag{AccountID: account.ID, TagID: 1, Name: "VIP"}
	require.NoError(t, tagRepo.Create(ctx, tag))

	created, err := fanTagRepo.Assign(ctx, []uint{fanA.ID}, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created)

	// A is already assigned; only B counts this time.
	created, err = fanTagRepo.Assign(ctx, []uint{fanA.ID, fanB.ID}, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created)

	count, err := fanTagRepo.CountByTag(ctx, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestFanTagRepoUnassignSkipsAbsent(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db, "acct-1")
	tagRepo := NewGormTagRepository(db)
	fanTagRepo := NewGormFanTagRepository(db)
	ctx := context.Background()

	fanA := seedFan(t, db, account.ID, "A", domain.StatusSubscribed)
	fanB := seedFan(t, db, account.ID, "B", domain.StatusSubscribed)
	tag := &domain.Tag{AccountID: account.ID, TagID: 1, Name: "VIP"}
	require.NoError(t, tagRepo.Create(ctx, tag))

	_, err := fanTagRepo.Assign(ctx, []uint{fanA.ID}, tag.ID)
	require.NoError(t, err)

	removed, err := fanTagRepo.Unassign(ctx, []uint{fanA.ID, fanB.ID}, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestFanTagRepoFindFansByTagAndNames(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db, "acct-1")
	tagRepo := NewGormTagRepository(db)
	fanTagRepo := NewGormFanTagRepository(db)
	ctx := context.Background()

	fan := seedFan(t, db, account.ID, "A", domain.StatusSubscribed)
	vip := &domain.Tag{AccountID: account.ID, TagID: 1, Name: "VIP"}
	active := &domain.Tag{AccountID: account.ID, TagID: 2, Name: "Active"}
	require.NoError(t, tagRepo.Create(ctx, vip))
	require.NoError(t, tagRepo.Create(ctx, active))

	_, err := fanTagRepo.Assign(ctx, []uint{fan.ID}, vip.ID)
	require.NoError(t, err)
	_, err = fanTagRepo.Assign(ctx, []uint{fan.ID}, active.ID)
	require.NoError(t, err)

	fans, err := fanTagRepo.FindFansByTag(ctx, account.ID, 1)
	require.NoError(t, err)
	require.Len(t, fans, 1)
	assert.Equal(t, "A", fans[0].OpenID)

	names, err := fanTagRepo.TagNamesByFan(ctx, fan.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"VIP", "Active"}, names)
}

func TestAccountRepoLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormAccountRepository(db)
	ctx := context.Background()

	account := &domain.Account{Name: "shop", AppID: "wx-shop", AppSecret: "secret", Valid: true}
	require.NoError(t, repo.Create(ctx, account))
	assert.NotEmpty(t, account.ID)

	got, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "wx-shop", got.AppID)

	require.NoError(t, repo.SetValid(ctx, account.ID, false))

	active, err := repo.FindActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.ErrorIs(t, repo.SetValid(ctx, "missing", true), ErrAccountNotFound)
}
