package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tourze/wechat-fans-service/internal/domain"
)

// GormFanRepository implements FanRepository using GORM.
type GormFanRepository struct {
	db *gorm.DB
}

// NewGormFanRepository creates a new GORM-backed fan repository.
func NewGormFanRepository(db *gorm.DB) *GormFanRepository {
	return &GormFanRepository{db: db}
}

// FindByAccountAndOpenID retrieves one fan by its (account, openid) pair.
func (r *GormFanRepository) FindByAccountAndOpenID(ctx context.Context, accountID, openid string) (*domain.Fan, error) {
	var model domain.FanModel
	err := r.db.WithContext(ctx).
		First(&model, "account_id = ? AND openid = ?", accountID, openid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFanNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByAccountAndOpenIDs loads the existing fans for one chunk of openids.
func (r *GormFanRepository) FindByAccountAndOpenIDs(ctx context.Context, accountID string, openids []string) ([]*domain.Fan, error) {
	if len(openids) == 0 {
		return nil, nil
	}

	var models []domain.FanModel
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND openid IN ?", accountID, openids).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	fans := make([]*domain.Fan, 0, len(models))
	for i := range models {
		fans = append(fans, models[i].ToDomain())
	}
	return fans, nil
}

// FindSubscribedByAccount returns every fan of the account in subscribed
// status, ordered by openid for stable batching.
func (r *GormFanRepository) FindSubscribedByAccount(ctx context.Context, accountID string) ([]*domain.Fan, error) {
	var models []domain.FanModel
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, domain.StatusSubscribed).
		Order("openid").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	fans := make([]*domain.Fan, 0, len(models))
	for i := range models {
		fans = append(fans, models[i].ToDomain())
	}
	return fans, nil
}

// FindAllByAccount returns every fan of the account, optionally filtered
// by status, newest subscription first.
func (r *GormFanRepository) FindAllByAccount(ctx context.Context, accountID string, status *domain.FanStatus) ([]*domain.Fan, error) {
	q := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("subscribe_time DESC")
	if status != nil {
		q = q.Where("status = ?", *status)
	}

	var models []domain.FanModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	fans := make([]*domain.Fan, 0, len(models))
	for i := range models {
		fans = append(fans, models[i].ToDomain())
	}
	return fans, nil
}

// FindPage returns one page of fans plus the total row count for the query.
func (r *GormFanRepository) FindPage(ctx context.Context, q FanQuery) ([]*domain.Fan, int64, error) {
	base := r.db.WithContext(ctx).Model(&domain.FanModel{}).
		Where("wechat_official_account_fans.account_id = ?", q.AccountID)

	if q.Status != nil {
		base = base.Where("wechat_official_account_fans.status = ?", *q.Status)
	}
	if q.TagID != nil {
		base = base.
			Joins("JOIN wechat_official_account_fan_tags ft ON ft.fan_id = wechat_official_account_fans.id").
			Joins("JOIN wechat_official_account_tags t ON t.id = ft.tag_id").
			Where("t.tag_id = ?", *q.TagID)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = 20
	}

	var models []domain.FanModel
	err := base.
		Order("subscribe_time DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	fans := make([]*domain.Fan, 0, len(models))
	for i := range models {
		fans = append(fans, models[i].ToDomain())
	}
	return fans, total, nil
}

// CountByAccountAndStatus counts fans of the account in the given status.
func (r *GormFanRepository) CountByAccountAndStatus(ctx context.Context, accountID string, status domain.FanStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.FanModel{}).
		Where("account_id = ? AND status = ?", accountID, status).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SaveBatch persists one chunk of creations and updates in a single
// transaction.
func (r *GormFanRepository) SaveBatch(ctx context.Context, fans []*domain.Fan) error {
	if len(fans) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fan := range fans {
			model := domain.FanToModel(fan)
			if model.ID == 0 {
				if err := tx.Create(model).Error; err != nil {
					return err
				}
				fan.ID = model.ID
				continue
			}
			if err := tx.Omit("created_at").Save(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// BulkTransitionStatus moves fans of the account from one status to
// another, excluding the given openids, in a single statement.
func (r *GormFanRepository) BulkTransitionStatus(ctx context.Context, accountID string, from, to domain.FanStatus, excludeOpenIDs []string) (int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.FanModel{}).
		Where("account_id = ? AND status = ?", accountID, from)
	if len(excludeOpenIDs) > 0 {
		q = q.Where("openid NOT IN ?", excludeOpenIDs)
	}

	result := q.Update("status", to)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// UpdateRemark sets the free-text annotation on one fan.
func (r *GormFanRepository) UpdateRemark(ctx context.Context, accountID, openid, remark string) error {
	result := r.db.WithContext(ctx).Model(&domain.FanModel{}).
		Where("account_id = ? AND openid = ?", accountID, openid).
		Update("remark", remark)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrFanNotFound
	}
	return nil
}

// Ensure interface is satisfied at compile time.
var _ FanRepository = (*GormFanRepository)(nil)
