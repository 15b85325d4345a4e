package apiclient

import "sync"

// TokenStore caches the access token between calls. Implementations must be
// safe for concurrent use.
type TokenStore interface {
	AccessToken() string
	SetAccessToken(token string)
	Clear()
}

type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemoryTokenStore) SetAccessToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *MemoryTokenStore) Clear() {
	s.SetAccessToken("")
}
