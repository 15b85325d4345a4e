package inbound

import (
	"context"

	"github.com/pawhaven/pawhaven/domain/entity"
)

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type AccountUseCase interface {
	Get(ctx context.Context, accountID string) (*entity.Projection, error)
	ChangePassword(ctx context.Context, accountID string, req ChangePasswordRequest) error
}
