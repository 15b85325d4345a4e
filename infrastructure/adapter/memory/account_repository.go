package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pawhaven/pawhaven/application/port/outbound"
	"github.com/pawhaven/pawhaven/domain/entity"
)

// AccountRepository is a map-backed credential store for tests and local
// runs without Postgres. Emails are matched case-insensitively.
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*entity.Account
}

func NewAccountRepository(seed ...*entity.Account) *AccountRepository {
	r := &AccountRepository{accounts: make(map[string]*entity.Account)}
	for _, a := range seed {
		r.accounts[a.ID] = a
	}
	return r
}

var _ outbound.AccountRepository = (*AccountRepository)(nil)

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok || a.DeletedAt != nil {
		return nil, outbound.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.accounts {
		if a.DeletedAt == nil && strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, outbound.ErrAccountNotFound
}

func (r *AccountRepository) Create(ctx context.Context, account *entity.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.ID]; exists {
		return outbound.ErrAccountAlreadyExists
	}
	for _, a := range r.accounts {
		if a.DeletedAt == nil && strings.EqualFold(a.Email, account.Email) {
			return outbound.ErrAccountAlreadyExists
		}
	}
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(id, func(a *entity.Account) { a.StampLogin(at) })
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.update(id, func(a *entity.Account) {
		a.PasswordHash = passwordHash
		a.PasswordResetToken = nil
		a.PasswordResetExpiresAt = nil
		a.UpdatedAt = time.Now()
	})
}

func (r *AccountRepository) update(id string, fn func(*entity.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok || a.DeletedAt != nil {
		return outbound.ErrAccountNotFound
	}
	fn(a)
	return nil
}
