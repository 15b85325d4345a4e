package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pawhaven/pawhaven/application/port/inbound"
	"github.com/pawhaven/pawhaven/application/port/outbound"
	"github.com/pawhaven/pawhaven/domain/entity"
	domainerr "github.com/pawhaven/pawhaven/domain/error"
	"github.com/pawhaven/pawhaven/domain/valueobject"
	"github.com/pawhaven/pawhaven/infrastructure/service/logger"
)

type AuthUseCase struct {
	accountRepository outbound.AccountRepository
	refreshRegistry   outbound.RefreshRegistry
	tokenService      outbound.TokenService
	passwordService   outbound.PasswordService
	logger            logger.Logger
	accessTokenTTL    time.Duration
	refreshTokenTTL   time.Duration
	now               func() time.Time
}

func NewAuthUseCase(
	accountRepo outbound.AccountRepository,
	refreshRegistry outbound.RefreshRegistry,
	tokenService outbound.TokenService,
	passwordService outbound.PasswordService,
	log logger.Logger,
	accessTokenTTL time.Duration,
	refreshTokenTTL time.Duration,
) *AuthUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthUseCase{
		accountRepository: accountRepo,
		refreshRegistry:   refreshRegistry,
		tokenService:      tokenService,
		passwordService:   passwordService,
		logger:            log,
		accessTokenTTL:    accessTokenTTL,
		refreshTokenTTL:   refreshTokenTTL,
		now:               time.Now,
	}
}

var _ inbound.AuthUseCase = (*AuthUseCase)(nil)

// Login checks the credentials, stamps the last login and opens a session.
// Unknown email and wrong password fail the same way.
func (uc *AuthUseCase) Login(ctx context.Context, req inbound.LoginRequest) (*inbound.LoginResponse, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, domainerr.ErrInvalidRequest("email and password are required")
	}

	creds, err := valueobject.NewCredentials(req.Email, req.Password)
	if err != nil {
		logger.LogAuthEvent(ctx, uc.logger, "login_failed_malformed_email", "", "", false, nil)
		return nil, domainerr.ErrInvalidCredentials()
	}

	account, err := uc.accountRepository.FindByEmail(ctx, creds.Email())
	if err != nil {
		if errors.Is(err, outbound.ErrAccountNotFound) {
			logger.LogAuthEvent(ctx, uc.logger, "login_failed_unknown_account", "", "", false, nil)
			return nil, domainerr.ErrInvalidCredentials()
		}
		uc.logger.Error(ctx, "Failed to find account", err, nil)
		return nil, domainerr.ErrInternalServerError("account lookup failed", err)
	}

	start := time.Now()
	valid, err := uc.passwordService.VerifyPassword(creds.Password(), account.PasswordHash)
	logger.LogPerformance(ctx, uc.logger, "password_verification", time.Since(start), map[string]interface{}{
		"user_id": account.ID,
	})
	if err != nil {
		uc.logger.Error(ctx, "Password verification error", err, map[string]interface{}{"user_id": account.ID})
		return nil, domainerr.ErrInternalServerError("password verification failed", err)
	}
	if !valid {
		logger.LogAuthEvent(ctx, uc.logger, "login_failed_invalid_password", account.ID, "", false, nil)
		return nil, domainerr.ErrInvalidCredentials()
	}

	now := uc.now()
	if err := uc.accountRepository.UpdateLastLogin(ctx, account.ID, now); err != nil {
		// the session is still valid without the stamp
		uc.logger.Warn(ctx, "Failed to stamp last login", map[string]interface{}{
			"user_id": account.ID,
			"error":   err.Error(),
		})
	} else {
		account.StampLogin(now)
	}

	pair, err := uc.tokenService.IssueTokens(account.ID, account.Role.String())
	if err != nil {
		uc.logger.Error(ctx, "Failed to issue tokens", err, map[string]interface{}{"user_id": account.ID})
		return nil, domainerr.ErrInternalServerError("token issuance failed", err)
	}

	if err := uc.refreshRegistry.Store(ctx, pair.RefreshToken, account.ID, uc.refreshTokenTTL); err != nil {
		uc.logger.Error(ctx, "Failed to store refresh token", err, map[string]interface{}{"user_id": account.ID})
		return nil, domainerr.ErrInternalServerError("session could not be opened", err)
	}

	logger.LogAuthEvent(ctx, uc.logger, "login_success", account.ID, "", true, map[string]interface{}{
		"role": account.Role.String(),
	})

	return &inbound.LoginResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		ExpiresIn:        int(uc.accessTokenTTL.Seconds()),
		RefreshExpiresIn: int(uc.refreshTokenTTL.Seconds()),
		User:             account.Project(),
	}, nil
}

// Refresh mints a new access token for a live session. The refresh token is
// reused as-is; only Login ever creates one.
func (uc *AuthUseCase) Refresh(ctx context.Context, req inbound.RefreshRequest) (*inbound.RefreshResponse, error) {
	if req.RefreshToken == "" {
		return nil, domainerr.ErrUnauthorized("refresh token missing")
	}

	subjectID, err := uc.refreshRegistry.ValidateAndGet(ctx, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, outbound.ErrRefreshTokenExpired):
			logger.LogAuthEvent(ctx, uc.logger, "refresh_failed_expired", "", "", false, nil)
			return nil, domainerr.ErrUnauthorized("refresh token expired")
		case errors.Is(err, outbound.ErrRefreshTokenNotFound):
			logger.LogAuthEvent(ctx, uc.logger, "refresh_failed_unknown_token", "", "", false, nil)
			return nil, domainerr.ErrUnauthorized("refresh token invalid")
		default:
			uc.logger.Error(ctx, "Failed to validate refresh token", err, nil)
			return nil, domainerr.ErrInternalServerError("refresh token lookup failed", err)
		}
	}

	account, err := uc.accountRepository.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, outbound.ErrAccountNotFound) {
			// the account is gone; the session goes with it
			_ = uc.refreshRegistry.Revoke(ctx, req.RefreshToken)
			logger.LogAuthEvent(ctx, uc.logger, "refresh_failed_account_missing", subjectID, "", false, nil)
			return nil, domainerr.ErrUnauthorized("account not found")
		}
		uc.logger.Error(ctx, "Failed to load account for refresh", err, map[string]interface{}{"user_id": subjectID})
		return nil, domainerr.ErrInternalServerError("account lookup failed", err)
	}

	accessToken, _, err := uc.tokenService.GenerateAccessToken(account.ID, account.Role.String())
	if err != nil {
		uc.logger.Error(ctx, "Failed to generate access token", err, map[string]interface{}{"user_id": account.ID})
		return nil, domainerr.ErrInternalServerError("token issuance failed", err)
	}

	logger.LogAuthEvent(ctx, uc.logger, "refresh_success", account.ID, "", true, nil)

	return &inbound.RefreshResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(uc.accessTokenTTL.Seconds()),
	}, nil
}

// Logout revokes the refresh token if one is presented. It only reports
// failures for logging; the caller always treats logout as done.
func (uc *AuthUseCase) Logout(ctx context.Context, req inbound.LogoutRequest) error {
	if req.RefreshToken == "" {
		logger.LogAuthEvent(ctx, uc.logger, "logout_without_session", "", "", true, nil)
		return nil
	}

	if err := uc.refreshRegistry.Revoke(ctx, req.RefreshToken); err != nil {
		uc.logger.Warn(ctx, "Failed to revoke refresh token on logout", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	logger.LogAuthEvent(ctx, uc.logger, "logout", "", "", true, nil)
	return nil
}

// WhoAmI resolves the bearer of a valid access token to its account.
func (uc *AuthUseCase) WhoAmI(ctx context.Context, accessToken string) (*entity.Projection, error) {
	if accessToken == "" {
		return nil, domainerr.ErrUnauthorized("access token missing")
	}

	claims, err := uc.tokenService.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, domainerr.ErrUnauthorized("access token invalid")
	}

	account, err := uc.accountRepository.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, outbound.ErrAccountNotFound) {
			return nil, domainerr.ErrUnauthorized("account not found")
		}
		return nil, domainerr.ErrInternalServerError("account lookup failed", err)
	}

	projection := account.Project()
	return &projection, nil
}
