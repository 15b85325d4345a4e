package usecase

import (
	"context"
	"errors"

	"github.com/pawhaven/pawhaven/application/port/inbound"
	"github.com/pawhaven/pawhaven/application/port/outbound"
	"github.com/pawhaven/pawhaven/domain/entity"
	domainerr "github.com/pawhaven/pawhaven/domain/error"
	"github.com/pawhaven/pawhaven/domain/valueobject"
	"github.com/pawhaven/pawhaven/infrastructure/service/logger"
)

type AccountUseCase struct {
	accountRepository outbound.AccountRepository
	passwordService   outbound.PasswordService
	logger            logger.Logger
}

func NewAccountUseCase(accountRepo outbound.AccountRepository, passwordService outbound.PasswordService, log logger.Logger) *AccountUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &AccountUseCase{
		accountRepository: accountRepo,
		passwordService:   passwordService,
		logger:            log,
	}
}

var _ inbound.AccountUseCase = (*AccountUseCase)(nil)

func (uc *AccountUseCase) Get(ctx context.Context, accountID string) (*entity.Projection, error) {
	account, err := uc.accountRepository.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, outbound.ErrAccountNotFound) {
			return nil, domainerr.ErrUnauthorized("account not found")
		}
		return nil, domainerr.ErrInternalServerError("account lookup failed", err)
	}
	projection := account.Project()
	return &projection, nil
}

func (uc *AccountUseCase) ChangePassword(ctx context.Context, accountID string, req inbound.ChangePasswordRequest) error {
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return domainerr.ErrInvalidRequest("current_password and new_password are required")
	}
	if err := valueobject.ValidateNewPassword(req.NewPassword); err != nil {
		return domainerr.ErrInvalidPassword(err.Error())
	}

	account, err := uc.accountRepository.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, outbound.ErrAccountNotFound) {
			return domainerr.ErrUnauthorized("account not found")
		}
		return domainerr.ErrInternalServerError("account lookup failed", err)
	}

	valid, err := uc.passwordService.VerifyPassword(req.CurrentPassword, account.PasswordHash)
	if err != nil {
		return domainerr.ErrInternalServerError("password verification failed", err)
	}
	if !valid {
		logger.LogSecurityEvent(ctx, uc.logger, "password_change_wrong_current", "MEDIUM", map[string]interface{}{
			"user_id": accountID,
		})
		return domainerr.ErrInvalidCredentials()
	}

	hash, err := uc.passwordService.HashPassword(req.NewPassword)
	if err != nil {
		return domainerr.ErrInternalServerError("password hashing failed", err)
	}
	if err := uc.accountRepository.UpdatePassword(ctx, accountID, hash); err != nil {
		return domainerr.ErrInternalServerError("password update failed", err)
	}

	logger.LogSecurityEvent(ctx, uc.logger, "password_changed", "LOW", map[string]interface{}{
		"user_id": accountID,
	})
	return nil
}
