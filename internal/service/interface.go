package service

import (
	"context"
	"errors"

	"github.com/tourze/wechat-fans-service/internal/cache"
	"github.com/tourze/wechat-fans-service/internal/domain"
	"github.com/tourze/wechat-fans-service/internal/repository"
)

var (
	ErrTagAlreadyExists = errors.New("tag with this name already exists")
	ErrInvalidTagName   = errors.New("tag name must be 1-30 characters")
	ErrInvalidAccount   = errors.New("account name, app id and app secret are required")
	ErrInvalidStatus    = errors.New("unknown fan status")
)

// AccountService manages the official accounts the service mirrors.
type AccountService interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	SetAccountValid(ctx context.Context, id string, valid bool) error
}

// FanPage is one page of a fan listing.
type FanPage struct {
	Fans  []*domain.Fan
	Total int64
	Page  int
	Limit int
}

// FanDetail is one fan plus its tag names.
type FanDetail struct {
	Fan      *domain.Fan
	TagNames []string
}

// FanService exposes read and admin operations over the fan mirror.
type FanService interface {
	ListFans(ctx context.Context, query repository.FanQuery) (*FanPage, error)
	GetFan(ctx context.Context, accountID, openid string) (*FanDetail, error)
	GetStats(ctx context.Context, accountID string) (*cache.FanStats, error)
	UpdateRemark(ctx context.Context, accountID, openid, remark string) error
	ExportFans(ctx context.Context, accountID string, status *domain.FanStatus) ([]*FanDetail, error)

	// AssignTag / UnassignTag apply one tag to a set of fans, returning
	// how many relations actually changed. Already-assigned or
	// already-absent pairs are skipped silently.
	AssignTag(ctx context.Context, accountID string, tagID int, openids []string) (int64, error)
	UnassignTag(ctx context.Context, accountID string, tagID int, openids []string) (int64, error)
}

// TagStat is one row of the per-tag fan-count report.
type TagStat struct {
	TagID int    `json:"tag_id"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// TagService manages local tag definitions.
type TagService interface {
	ListTags(ctx context.Context, accountID string) ([]*domain.Tag, error)
	GetTag(ctx context.Context, accountID string, tagID int) (*domain.Tag, error)
	CreateTag(ctx context.Context, accountID, name string) (*domain.Tag, error)
	RenameTag(ctx context.Context, accountID string, tagID int, name string) (*domain.Tag, error)
	DeleteTag(ctx context.Context, accountID string, tagID int) error
	FansByTag(ctx context.Context, accountID string, tagID int) ([]*domain.Fan, error)

	// TagStatistics reports the true relation count per tag, largest
	// first.
	TagStatistics(ctx context.Context, accountID string) ([]*TagStat, error)
	// SyncTagCounts refreshes every tag's cached count from the relation
	// table.
	SyncTagCounts(ctx context.Context, accountID string) error
}
