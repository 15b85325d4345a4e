package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/pawhaven/pawhaven/domain/entity"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")
)

// AccountRepository is the Credential Store.
type AccountRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Account, error)
	FindByEmail(ctx context.Context, email string) (*entity.Account, error)
	Create(ctx context.Context, account *entity.Account) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}
