package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tourze/wechat-fans-service/internal/domain"
)

// GormFanTagRepository implements FanTagRepository using GORM.
type GormFanTagRepository struct {
	db *gorm.DB
}

// NewGormFanTagRepository creates a new GORM-backed fan-tag repository.
func NewGormFanTagRepository(db *gorm.DB) *GormFanTagRepository {
	return &GormFanTagRepository{db: db}
}

// Assign creates the missing (fan, tag) relation rows in one statement.
// Pairs that already exist are skipped by the conflict clause, so the
// returned count is rows actually created, not rows requested.
func (r *GormFanTagRepository) Assign(ctx context.Context, fanIDs []uint, tagPK uint) (int64, error) {
	if len(fanIDs) == 0 {
		return 0, nil
	}

	rows := make([]domain.FanTagModel, 0, len(fanIDs))
	for _, fanID := range fanIDs {
		rows = append(rows, domain.FanTagModel{FanID: fanID, TagID: tagPK})
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Unassign removes existing (fan, tag) relation rows. Absent pairs are
// skipped; the returned count is rows actually removed.
func (r *GormFanTagRepository) Unassign(ctx context.Context, fanIDs []uint, tagPK uint) (int64, error) {
	if len(fanIDs) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Where("fan_id IN ? AND tag_id = ?", fanIDs, tagPK).
		Delete(&domain.FanTagModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CountByTag returns the true relation count for one tag.
func (r *GormFanTagRepository) CountByTag(ctx context.Context, tagPK uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.FanTagModel{}).
		Where("tag_id = ?", tagPK).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// FindFansByTag returns the fans assigned to the tag with the given
// external id.
func (r *GormFanTagRepository) FindFansByTag(ctx context.Context, accountID string, tagID int) ([]*domain.Fan, error) {
	var models []domain.FanModel
	err := r.db.WithContext(ctx).Model(&domain.FanModel{}).
		Joins("JOIN wechat_official_account_fan_tags ft ON ft.fan_id = wechat_official_account_fans.id").
		Joins("JOIN wechat_official_account_tags t ON t.id = ft.tag_id").
		Where("t.account_id = ? AND t.tag_id = ?", accountID, tagID).
		Order("wechat_official_account_fans.subscribe_time DESC").
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

// TagNamesByFan returns the names of every tag assigned to one fan.
func (r *GormFanTagRepository) TagNamesByFan(ctx context.Context, fanID uint) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(&domain.TagModel{}).
		Joins("JOIN wechat_official_account_fan_tags ft ON ft.tag_id = wechat_official_account_tags.id").
		Where("ft.fan_id = ?", fanID).
		Order("wechat_official_account_tags.tag_id").
		Pluck("wechat_official_account_tags.name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Ensure interface is satisfied at compile time.
var _ FanTagRepository = (*GormFanTagRepository)(nil)
