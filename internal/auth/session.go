package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/lepinet/internal/credential"
)

// User is the identity attached to a session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is an authenticated session as issued by the auth server.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         User   `json:"user"`
}

// Expiry returns the time the access token stops being accepted.
func (s Session) Expiry() time.Time {
	return time.Unix(s.ExpiresAt, 0)
}

// ExpiresWithin reports whether the access token expires before now+d.
func (s Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return !now.Add(d).Before(s.Expiry())
}

// SessionStore persists the current session between runs.
type SessionStore interface {
	// Load returns nil when no session is stored.
	Load() (*Session, error)
	Save(s Session) error
	Clear() error
}

const sessionKey = "session"

// KeyringSessions keeps the session in the system keyring.
type KeyringSessions struct {
	ring *credential.Keyring
}

// NewKeyringSessions returns a SessionStore over ring.
func NewKeyringSessions(ring *credential.Keyring) *KeyringSessions {
	return &KeyringSessions{ring: ring}
}

func (k *KeyringSessions) Load() (*Session, error) {
	data, err := k.ring.Get(sessionKey)
	if errors.Is(err, credential.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding stored session: %w", err)
	}
	if s.AccessToken == "" {
		return nil, nil
	}
	return &s, nil
}

func (k *KeyringSessions) Save(s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return k.ring.Set(sessionKey, data)
}

func (k *KeyringSessions) Clear() error {
	return k.ring.Delete(sessionKey)
}
