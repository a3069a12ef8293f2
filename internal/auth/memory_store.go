package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// UserCredential is a configured account. Exactly one of Password or
// PasswordHash should be set; plain passwords are hashed on load.
type UserCredential struct {
	Name         string
	Password     string
	PasswordHash string
}

// MemoryUserStore keeps password hashes in memory. It is safe for concurrent
// use and backs accounts declared in the library configuration.
type MemoryUserStore struct {
	mu     sync.RWMutex
	hashes map[string]string
}

// NewMemoryUserStore hashes and records the provided users.
func NewMemoryUserStore(users []UserCredential) (*MemoryUserStore, error) {
	store := &MemoryUserStore{hashes: make(map[string]string, len(users))}
	for _, user := range users {
		if err := store.Put(user); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Put adds or replaces a user.
func (s *MemoryUserStore) Put(user UserCredential) error {
	name, hash, err := user.resolve()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.hashes[name] = hash
	s.mu.Unlock()
	return nil
}

// resolve returns the trimmed name and the encoded hash, deriving one from
// a plain password when needed.
func (u UserCredential) resolve() (string, string, error) {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		return "", "", fmt.Errorf("user name is required")
	}
	hash := strings.TrimSpace(u.PasswordHash)
	switch {
	case hash != "":
		if !IsPasswordHash(hash) {
			return "", "", fmt.Errorf("user %q: password_hash is not a pbkdf2 hash", name)
		}
	case u.Password != "":
		derived, err := HashPassword(u.Password)
		if err != nil {
			return "", "", fmt.Errorf("user %q: %w", name, err)
		}
		hash = derived
	default:
		return "", "", fmt.Errorf("user %q: password or password_hash is required", name)
	}
	return name, hash, nil
}

// PasswordHash returns the stored hash for username.
func (s *MemoryUserStore) PasswordHash(_ context.Context, username string) (string, error) {
	s.mu.RLock()
	hash, ok := s.hashes[username]
	s.mu.RUnlock()
	if !ok {
		return "", ErrUnknownUser
	}
	return hash, nil
}

// Len returns the number of configured users.
func (s *MemoryUserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hashes)
}

// Ping always reports success for the in-memory store.
func (s *MemoryUserStore) Ping(context.Context) error {
	return nil
}
