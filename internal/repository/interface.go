package repository

import (
	"context"
	"errors"

	"github.com/tourze/wechat-fans-service/internal/domain"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrFanNotFound     = errors.New("fan not found")
	ErrTagNotFound     = errors.New("tag not found")
	ErrDuplicateTag    = errors.New("tag already exists")
)

// AccountRepository defines persistence operations for official accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	List(ctx context.Context) ([]*domain.Account, error)
	FindActive(ctx context.Context) ([]*domain.Account, error)
	SetValid(ctx context.Context, id string, valid bool) error
}

// FanQuery describes a paginated fan listing.
type FanQuery struct {
	AccountID string
	Status    *domain.FanStatus
	TagID     *int // external tag id
	Page      int
	Limit     int
}

// FanRepository defines persistence operations for the fan mirror.
// The sync engine never builds queries itself; every batch operation it
// needs is expressed here.
type FanRepository interface {
	FindByAccountAndOpenID(ctx context.Context, accountID, openid string) (*domain.Fan, error)
	FindByAccountAndOpenIDs(ctx context.Context, accountID string, openids []string) ([]*domain.Fan, error)
	FindSubscribedByAccount(ctx context.Context, accountID string) ([]*domain.Fan, error)
	FindAllByAccount(ctx context.Context, accountID string, status *domain.FanStatus) ([]*domain.Fan, error)
	FindPage(ctx context.Context, q FanQuery) ([]*domain.Fan, int64, error)
	CountByAccountAndStatus(ctx context.Context, accountID string, status domain.FanStatus) (int64, error)

	// SaveBatch persists creations and updates for one chunk in a single
	// transaction (one flush per logical batch).
	SaveBatch(ctx context.Context, fans []*domain.Fan) error

	// BulkTransitionStatus moves every fan of the account currently in
	// `from` status to `to` status, excluding the given openids. An empty
	// exclusion list makes the transition unconditional. Returns the
	// number of rows changed.
	BulkTransitionStatus(ctx context.Context, accountID string, from, to domain.FanStatus, excludeOpenIDs []string) (int64, error)

	UpdateRemark(ctx context.Context, accountID, openid, remark string) error
}

// TagRepository defines persistence operations for account tags.
type TagRepository interface {
	FindByAccount(ctx context.Context, accountID string) ([]*domain.Tag, error)
	FindByAccountAndTagID(ctx context.Context, accountID string, tagID int) (*domain.Tag, error)
	FindByAccountAndName(ctx context.Context, accountID, name string) (*domain.Tag, error)
	MaxTagIDByAccount(ctx context.Context, accountID string) (int, error)
	Create(ctx context.Context, tag *domain.Tag) error
	Update(ctx context.Context, tag *domain.Tag) error
	Delete(ctx context.Context, accountID string, tagID int) error

	// ApplySync writes the outcome of a tag-list reconciliation in one
	// transaction: upserts first, then deletion of every tag whose
	// external id is in deleteTagIDs.
	ApplySync(ctx context.Context, accountID string, upserts []*domain.Tag, deleteTagIDs []int) error
}

// FanTagRepository defines persistence operations for fan-tag relations.
type FanTagRepository interface {
	// Assign creates the missing (fan, tag) rows, silently skipping pairs
	// that already exist. Returns the number of rows actually created.
	Assign(ctx context.Context, fanIDs []uint, tagPK uint) (int64, error)
	// Unassign removes existing (fan, tag) rows, silently skipping pairs
	// that are already absent. Returns the number of rows removed.
	Unassign(ctx context.Context, fanIDs []uint, tagPK uint) (int64, error)

	CountByTag(ctx context.Context, tagPK uint) (int64, error)
	FindFansByTag(ctx context.Context, accountID string, tagID int) ([]*domain.Fan, error)
	TagNamesByFan(ctx context.Context, fanID uint) ([]string, error)
}
