package authclient

import "sync"

// Credentials are the tokens of one logged-in session.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	// Audience is "user" or "admin"; it selects the refresh endpoint and the
	// login surface a failed session is sent back to.
	Audience string
}

// TokenStore holds the credentials of the current session. Implementations
// must be safe for concurrent use.
type TokenStore interface {
	Load() (Credentials, bool)
	Save(Credentials)
	Clear()
}

// MemoryTokenStore keeps credentials in process memory.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	creds *Credentials
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load() (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return Credentials{}, false
	}
	return *s.creds, true
}

func (s *MemoryTokenStore) Save(c Credentials) {
	s.mu.Lock()
	s.creds = &c
	s.mu.Unlock()
}

func (s *MemoryTokenStore) Clear() {
	s.mu.Lock()
	s.creds = nil
	s.mu.Unlock()
}
