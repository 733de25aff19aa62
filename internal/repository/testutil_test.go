package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tourze/wechat-fans-service/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func seedAccount(t *testing.T, db *gorm.DB, id string) *domain.Account {
	t.Helper()

	model := domain.AccountModel{
		ID:        id,
		Name:      "account " + id,
		AppID:     "wx-" + id,
		AppSecret: "secret",
		Valid:     true,
	}
	require.NoError(t, db.Create(&model).Error)
	return model.ToDomain()
}

func seedFan(t *testing.T, db *gorm.DB, accountID, openid string, status domain.FanStatus) *domain.Fan {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	model := domain.FanModel{
		AccountID:     accountID,
		OpenID:        openid,
		Status:        status,
		SubscribeTime: &now,
	}
	require.NoError(t, db.Create(&model).Error)
	return model.ToDomain()
}
