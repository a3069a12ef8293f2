package auth

import (
	"context"
	"errors"
	"fmt"
)

// UserStore resolves the stored password hash for a username. Stores return
// ErrUnknownUser when the account does not exist.
type UserStore interface {
	PasswordHash(ctx context.Context, username string) (string, error)
}

// dummyHash keeps verification time comparable for unknown users.
var dummyHash = mustHash("polaris-unknown-user")

// Authenticator verifies username/password pairs against a UserStore.
type Authenticator struct {
	store UserStore
}

// NewAuthenticator wraps store.
func NewAuthenticator(store UserStore) *Authenticator {
	return &Authenticator{store: store}
}

// Authenticate returns true when the credentials match. Store failures are
// returned as errors and never count as a match.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (bool, error) {
	if a == nil || a.store == nil {
		return false, fmt.Errorf("authenticator has no user store")
	}
	if username == "" || password == "" {
		return false, nil
	}
	hash, err := a.store.PasswordHash(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			_ = VerifyPassword(dummyHash, password)
			return false, nil
		}
		return false, err
	}
	if err := VerifyPassword(hash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Ping verifies the underlying store is reachable when it exposes a ping method.
func (a *Authenticator) Ping(ctx context.Context) error {
	if a == nil || a.store == nil {
		return nil
	}
	if pinger, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func mustHash(password string) string {
	hash, err := HashPassword(password)
	if err != nil {
		panic(err)
	}
	return hash
}
