// Package memory holds the in-process Refresh Registry. State lives only as
// long as the process: a restart logs every client out, and replicas do not
// share entries. Use the redis or postgres registry when either matters.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pawhaven/pawhaven/application/port/outbound"
	"github.com/pawhaven/pawhaven/domain/entity"
	"github.com/pawhaven/pawhaven/infrastructure/service/logger"
)

type RefreshRegistry struct {
	mu      sync.RWMutex
	entries map[string]*entity.RefreshToken
	salt    string
	now     func() time.Time
	logger  logger.Logger
}

func NewRefreshRegistry(salt string, log logger.Logger) *RefreshRegistry {
	if log == nil {
		log = logger.Nop()
	}
	return &RefreshRegistry{
		entries: make(map[string]*entity.RefreshToken),
		salt:    salt,
		now:     time.Now,
		logger:  log,
	}
}

var _ outbound.RefreshRegistry = (*RefreshRegistry)(nil)

func (r *RefreshRegistry) Store(ctx context.Context, token, subjectID string, ttl time.Duration) error {
	if token == "" || subjectID == "" {
		return errors.New("token and subject id are required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	key := entity.RefreshTokenKey(r.salt, token)
	entry := entity.NewRefreshToken(key, subjectID, r.now().Add(ttl))

	r.mu.Lock()
	r.entries[key] = entry
	r.mu.Unlock()
	return nil
}

// ValidateAndGet evicts an expired entry on sight and reports it as expired
// once; later lookups of the same token see it as not found.
func (r *RefreshRegistry) ValidateAndGet(ctx context.Context, token string) (string, error) {
	key := entity.RefreshTokenKey(r.salt, token)

	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return "", outbound.ErrRefreshTokenNotFound
	}

	if entry.IsExpiredAt(r.now()) {
		r.mu.Lock()
		// the entry may have been replaced between the locks
		if cur, still := r.entries[key]; still && cur == entry {
			delete(r.entries, key)
		}
		r.mu.Unlock()
		return "", outbound.ErrRefreshTokenExpired
	}

	return entry.SubjectID, nil
}

func (r *RefreshRegistry) Revoke(ctx context.Context, token string) error {
	key := entity.RefreshTokenKey(r.salt, token)

	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
	return nil
}

func (r *RefreshRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sweep drops every entry expired at now and returns how many went.
func (r *RefreshRegistry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, entry := range r.entries {
		if entry.IsExpiredAt(now) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps on every tick until ctx is done. Lazy eviction alone would keep
// tokens that are never presented again.
func (r *RefreshRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(r.now()); n > 0 {
				r.logger.Debug(ctx, "Swept expired refresh tokens", map[string]interface{}{
					"removed":   n,
					"remaining": r.Len(),
				})
			}
		}
	}
}
