package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tourze/wechat-fans-service/internal/domain"
)

// GormAccountRepository implements AccountRepository using GORM.
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GORM-backed account repository.
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// Create inserts a new account, assigning a fresh id.
func (r *GormAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	account.ID = uuid.New().String()

	model := domain.AccountModel{
		ID:        account.ID,
		Name:      account.Name,
		AppID:     account.AppID,
		AppSecret: account.AppSecret,
		Valid:     account.Valid,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}

	account.CreatedAt = model.CreatedAt
	account.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByID retrieves one account.
func (r *GormAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	var model domain.AccountModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns every account.
func (r *GormAccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	var models []domain.AccountModel
	if err := r.db.WithContext(ctx).Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}

	accounts := make([]*domain.Account, 0, len(models))
	for i := range models {
		accounts = append(accounts, models[i].ToDomain())
	}
	return accounts, nil
}

// FindActive returns the accounts the sync jobs should process.
func (r *GormAccountRepository) FindActive(ctx context.Context) ([]*domain.Account, error) {
	var models []domain.AccountModel
	err := r.db.WithContext(ctx).
		Where("valid = ?", true).
		Order("created_at").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	accounts := make([]*domain.Account, 0, len(models))
	for i := range models {
		accounts = append(accounts, models[i].ToDomain())
	}
	return accounts, nil
}

// SetValid toggles whether an account participates in sync jobs.
func (r *GormAccountRepository) SetValid(ctx context.Context, id string, valid bool) error {
	result := r.db.WithContext(ctx).Model(&domain.AccountModel{}).
		Where("id = ?", id).
		Update("valid", valid)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Ensure interface is satisfied at compile time.
var _ AccountRepository = (*GormAccountRepository)(nil)
