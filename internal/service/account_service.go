package service

import (
	"context"
	"strings"

	"github.com/tourze/wechat-fans-service/internal/domain"
	"github.com/tourze/wechat-fans-service/internal/repository"
	"github.com/tourze/wechat-fans-service/pkg/log"
)

// accountServiceImpl implements AccountService.
type accountServiceImpl struct {
	repo repository.AccountRepository
}

// NewAccountService creates a new account service.
func NewAccountService(repo repository.AccountRepository) AccountService {
	return &accountServiceImpl{repo: repo}
}

func (s *accountServiceImpl) CreateAccount(ctx context.Context, account *domain.Account) error {
	account.Name = strings.TrimSpace(account.Name)
	account.AppID = strings.TrimSpace(account.AppID)
	if account.Name == "" || account.AppID == "" || account.AppSecret == "" {
		return ErrInvalidAccount
	}
	account.Valid = true

	if err := s.repo.Create(ctx, account); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("app_id", account.AppID).Msg("failed to create account")
		return err
	}
	return nil
}

func (s *accountServiceImpl) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *accountServiceImpl) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	return s.repo.List(ctx)
}

func (s *accountServiceImpl) SetAccountValid(ctx context.Context, id string, valid bool) error {
	return s.repo.SetValid(ctx, id, valid)
}
