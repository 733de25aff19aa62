package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tourze/wechat-fans-service/internal/cache"
	"github.com/tourze/wechat-fans-service/internal/domain"
	"github.com/tourze/wechat-fans-service/internal/repository"
)

type testEnv struct {
	db       *gorm.DB
	accounts repository.AccountRepository
	fans     repository.FanRepository
	tags     repository.TagRepository
	fanTags  repository.FanTagRepository

	accountSvc AccountService
	fanSvc     FanService
	tagSvc     TagService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&domain.AccountModel{},
		&domain.FanModel{},
		&domain.TagModel{},
		&domain.FanTagModel{},
	))

	env := &testEnv{
		db:       db,
		accounts: repository.NewGormAccountRepository(db),
		fans:     repository.NewGormFanRepository(db),
		tags:     repository.NewGormTagRepository(db),
		fanTags:  repository.NewGormFanTagRepository(db),
	}
	env.accountSvc = NewAccountService(env.accounts)
	env.fanSvc = NewFanService(env.fans, env.tags, env.fanTags, env.accounts, cache.NewNoopStatsCache())
	env.tagSvc = NewTagService(env.tags, env.fanTags)
	return env
}

func (env *testEnv) seedAccount(t *testing.T, id string) *domain.Account {
	t.Helper()

	model := domain.AccountModel{
		ID:        id,
		Name:      "account " + id,
		AppID:     "wx-" + id,
		AppSecret: "secret",
		Valid:     true,
	}
	require.NoError(t, env.db.Create(&model).Error)
	return model.ToDomain()
}

func (env *testEnv) seedFan(t *testing.T, accountID, openid string, status domain.FanStatus) *domain.Fan {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	model := domain.FanModel{
		AccountID:     accountID,
		OpenID:        openid,
		Status:        status,
		SubscribeTime: &now,
	}
	require.NoError(t, env.db.Create(&model).Error)
	return model.ToDomain()
}
