package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tourze/wechat-fans-service/internal/domain"
)

// GormTagRepository implements TagRepository using GORM.
type GormTagRepository struct {
	db *gorm.DB
}

// NewGormTagRepository creates a new GORM-backed tag repository.
func NewGormTagRepository(db *gorm.DB) *GormTagRepository {
	return &GormTagRepository{db: db}
}

// FindByAccount returns every tag of the account ordered by external id.
func (r *GormTagRepository) FindByAccount(ctx context.Context, accountID string) ([]*domain.Tag, error) {
	var models []domain.TagModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("tag_id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	tags := make([]*domain.Tag, 0, len(models))
	for i := range models {
		tags = append(tags, models[i].ToDomain())
	}
	return tags, nil
}

// FindByAccountAndTagID retrieves one tag by its external id.
func (r *GormTagRepository) FindByAccountAndTagID(ctx context.Context, accountID string, tagID int) (*domain.Tag, error) {
	var model domain.TagModel
	err := r.db.WithContext(ctx).
		First(&model, "account_id = ? AND tag_id = ?", accountID, tagID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTagNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByAccountAndName retrieves one tag by name.
func (r *GormTagRepository) FindByAccountAndName(ctx context.Context, accountID, name string) (*domain.Tag, error) {
	var model domain.TagModel
	err := r.db.WithContext(ctx).
		First(&model, "account_id = ? AND name = ?", accountID, name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTagNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// MaxTagIDByAccount returns the largest external tag id for the account,
// 0 when the account has no tags.
func (r *GormTagRepository) MaxTagIDByAccount(ctx context.Context, accountID string) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).Model(&domain.TagModel{}).
		Where("account_id = ?", accountID).
		Select("MAX(tag_id)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// Create inserts a new tag. A name or tag-id collision surfaces as
// ErrDuplicateTag.
func (r *GormTagRepository) Create(ctx context.Context, tag *domain.Tag) error {
	model := domain.TagModel{
		AccountID: tag.AccountID,
		TagID:     tag.TagID,
		Name:      tag.Name,
		Count:     tag.Count,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTag
		}
		return err
	}
	tag.ID = model.ID
	return nil
}

// Update writes name and count of an existing tag.
func (r *GormTagRepository) Update(ctx context.Context, tag *domain.Tag) error {
	result := r.db.WithContext(ctx).Model(&domain.TagModel{}).
		Where("account_id = ? AND tag_id = ?", tag.AccountID, tag.TagID).
		Updates(map[string]interface{}{
			"name":  tag.Name,
			"count": tag.Count,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTag
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTagNotFound
	}
	return nil
}

// Delete removes one tag by its external id. Relation rows cascade.
func (r *GormTagRepository) Delete(ctx context.Context, accountID string, tagID int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model domain.TagModel
		if err := tx.First(&model, "account_id = ? AND tag_id = ?", accountID, tagID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTagNotFound
			}
			return err
		}

		if err := tx.Delete(&domain.FanTagModel{}, "tag_id = ?", model.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.TagModel{}, "id = ?", model.ID).Error
	})
}

// ApplySync applies a tag-list reconciliation outcome in one transaction.
// Stale tags are removed before the upserts run, so a surviving tag can
// take over a name that a deleted tag held without tripping the unique
// (account_id, name) index mid-transaction.
func (r *GormTagRepository) ApplySync(ctx context.Context, accountID string, upserts []*domain.Tag, deleteTagIDs []int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(deleteTagIDs) > 0 {
			var stale []domain.TagModel
			err := tx.
				Where("account_id = ? AND tag_id IN ?", accountID, deleteTagIDs).
				Find(&stale).Error
			if err != nil {
				return err
			}
			for i := range stale {
				if err := tx.Delete(&domain.FanTagModel{}, "tag_id = ?", stale[i].ID).Error; err != nil {
					return err
				}
				if err := tx.Delete(&domain.TagModel{}, "id = ?", stale[i].ID).Error; err != nil {
					return err
				}
			}
		}

		for _, tag := range upserts {
			if tag.ID == 0 {
				model := domain.TagModel{
					AccountID: accountID,
					TagID:     tag.TagID,
					Name:      tag.Name,
					Count:     tag.Count,
				}
				if err := tx.Create(&model).Error; err != nil {
					return err
				}
				tag.ID = model.ID
				continue
			}

			err := tx.Model(&domain.TagModel{}).
				Where("id = ?", tag.ID).
				Updates(map[string]interface{}{
					"name":  tag.Name,
					"count": tag.Count,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Ensure interface is satisfied at compile time.
var _ TagRepository = (*GormTagRepository)(nil)
