package entity

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleAdopter       Role = "adopter"
	RoleFoster        Role = "foster"
	RoleRescueShelter Role = "rescue-shelter"
	RolePetOwner      Role = "pet_owner"
	RoleAdmin         Role = "admin"
	RolePetShop       Role = "pet_shop"
	RoleVolunteer     Role = "volunteer"
)

var validRoles = map[Role]struct{}{
	RoleAdopter:       {},
	RoleFoster:        {},
	RoleRescueShelter: {},
	RolePetOwner:      {},
	RoleAdmin:         {},
	RolePetShop:       {},
	RoleVolunteer:     {},
}

// ParseRole accepts only the roles an account can hold.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if _, ok := validRoles[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) String() string { return string(r) }

type Account struct {
	ID                     string     `json:"id"`
	Email                  string     `json:"email"`
	PasswordHash           string     `json:"-"`
	Role                   Role       `json:"role"`
	LastLoginAt            *time.Time `json:"last_login_at,omitempty"`
	PasswordResetToken     *string    `json:"-"`
	PasswordResetExpiresAt *time.Time `json:"-"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
	DeletedAt              *time.Time `json:"-"`
}

func NewAccount(id, email, passwordHash string, role Role) *Account {
	now := time.Now()
	return &Account{
		ID:           id,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// StampLogin records a successful login.
func (a *Account) StampLogin(at time.Time) {
	a.LastLoginAt = &at
	a.UpdatedAt = at
}

// Projection is the only shape of an account that leaves the server.
type Projection struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (a *Account) Project() Projection {
	return Projection{ID: a.ID, Email: a.Email, Role: a.Role}
}
