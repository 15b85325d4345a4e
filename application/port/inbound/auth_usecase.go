package inbound

import (
	"context"

	"github.com/pawhaven/pawhaven/domain/entity"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken      string            `json:"access_token"`
	RefreshToken     string            `json:"-"`
	ExpiresIn        int               `json:"expires_in"`
	RefreshExpiresIn int               `json:"-"`
	User             entity.Projection `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string
}

type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type LogoutRequest struct {
	RefreshToken string
}

// AuthUseCase is the session lifecycle behind the /auth endpoints.
type AuthUseCase interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Refresh(ctx context.Context, req RefreshRequest) (*RefreshResponse, error)
	Logout(ctx context.Context, req LogoutRequest) error
	WhoAmI(ctx context.Context, accessToken string) (*entity.Projection, error)
}
