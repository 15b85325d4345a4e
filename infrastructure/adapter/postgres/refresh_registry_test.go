package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawhaven/pawhaven/application/port/outbound"
	"github.com/pawhaven/pawhaven/domain/entity"
)

const (
	storeRefreshQuery  = `^INSERT INTO refresh_tokens \(token_hash, account_id, expires_at, created_at\) VALUES \(\$1, \$2, \$3, \$4\) ON CONFLICT \(token_hash\) DO UPDATE SET account_id = EXCLUDED.account_id, expires_at = EXCLUDED.expires_at$`
	selectRefreshQuery = `^SELECT account_id, expires_at FROM refresh_tokens WHERE token_hash = \$1$`
	deleteRefreshQuery = `^DELETE FROM refresh_tokens WHERE token_hash = \$1$`
)

func newTestRegistry(t *testing.T, now time.Time) (*refreshRegistry, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	r := NewRefreshRegistry(db, "salt").(*refreshRegistry)
	r.now = func() time.Time { return now }
	return r, mock
}

func TestRefreshRegistry_Store(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, mock := newTestRegistry(t, now)

	key := entity.RefreshTokenKey("salt", "raw-token")
	mock.ExpectExec(storeRefreshQuery).
		WithArgs(key, "acc-1", now.Add(time.Hour), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Store(context.Background(), "raw-token", "acc-1", time.Hour))
}

func TestRefreshRegistry_StoreNeverWritesRawToken(t *testing.T) {
	r, mock := newTestRegistry(t, time.Now())

	mock.ExpectExec(storeRefreshQuery).
		WithArgs(sqlmock.AnyArg(), "acc-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Store(context.Background(), "raw-token", "acc-1", time.Hour))
	assert.NotEqual(t, "raw-token", entity.RefreshTokenKey("salt", "raw-token"))
}

func TestRefreshRegistry_StoreRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		subject string
		ttl     time.Duration
	}{
		{"EmptyToken", "", "acc-1", time.Hour},
		{"EmptySubject", "raw-token", "", time.Hour},
		{"ZeroTTL", "raw-token", "acc-1", 0},
		{"NegativeTTL", "raw-token", "acc-1", -time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// no expectations: the database must not be touched
			r, _ := newTestRegistry(t, time.Now())
			err := r.Store(context.Background(), tt.token, tt.subject, tt.ttl)
			require.Error(t, err)
			assert.NotContains(t, err.Error(), "failed to create refresh token")
		})
	}
}

func TestRefreshRegistry_StoreDatabaseError(t *testing.T) {
	r, mock := newTestRegistry(t, time.Now())

	mock.ExpectExec(storeRefreshQuery).WillReturnError(errors.New("db down"))

	err := r.Store(context.Background(), "raw-token", "acc-1", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestRefreshRegistry_ValidateAndGet(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, mock := newTestRegistry(t, now)

	key := entity.RefreshTokenKey("salt", "raw-token")
	mock.ExpectQuery(selectRefreshQuery).WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "expires_at"}).AddRow("acc-1", now.Add(time.Minute)))

	subject, err := r.ValidateAndGet(context.Background(), "raw-token")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", subject)
}

func TestRefreshRegistry_ValidateAndGetNotFound(t *testing.T) {
	r, mock := newTestRegistry(t, time.Now())

	mock.ExpectQuery(selectRefreshQuery).WillReturnError(sql.ErrNoRows)

	_, err := r.ValidateAndGet(context.Background(), "unknown")
	assert.ErrorIs(t, err, outbound.ErrRefreshTokenNotFound)
}

func TestRefreshRegistry_ValidateAndGetEvictsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, mock := newTestRegistry(t, now)

	key := entity.RefreshTokenKey("salt", "raw-token")
	mock.ExpectQuery(selectRefreshQuery).WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "expires_at"}).AddRow("acc-1", now))
	mock.ExpectExec(deleteRefreshQuery).WithArgs(key).WillReturnResult(sqlmock.NewResult(0, 1))

	subject, err := r.ValidateAndGet(context.Background(), "raw-token")
	assert.ErrorIs(t, err, outbound.ErrRefreshTokenExpired)
	assert.Empty(t, subject)
}

func TestRefreshRegistry_ValidateAndGetEvictionFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, mock := newTestRegistry(t, now)

	mock.ExpectQuery(selectRefreshQuery).
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "expires_at"}).AddRow("acc-1", now.Add(-time.Minute)))
	mock.ExpectExec(deleteRefreshQuery).WillReturnError(errors.New("db down"))

	_, err := r.ValidateAndGet(context.Background(), "raw-token")
	require.Error(t, err)
	assert.NotErrorIs(t, err, outbound.ErrRefreshTokenExpired)
	assert.Contains(t, err.Error(), "db down")
}

func TestRefreshRegistry_Revoke(t *testing.T) {
	r, mock := newTestRegistry(t, time.Now())

	key := entity.RefreshTokenKey("salt", "raw-token")
	mock.ExpectExec(deleteRefreshQuery).WithArgs(key).WillReturnResult(sqlmock.NewResult(0, 0))

	// revoking an unknown token is not an error
	require.NoError(t, r.Revoke(context.Background(), "raw-token"))
}
