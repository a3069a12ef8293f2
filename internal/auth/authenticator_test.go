package auth

import (
	"context"
	"errors"
	"testing"
)

type failingStore struct{ err error }

func (f failingStore) PasswordHash(context.Context, string) (string, error) {
	return "", f.err
}

func TestAuthenticator(t *testing.T) {
	store, err := NewMemoryUserStore([]UserCredential{{Name: "alice", Password: "wonderland"}})
	if err != nil {
		t.Fatalf("NewMemoryUserStore: %v", err)
	}
	authenticator := NewAuthenticator(store)

	cases := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{name: "valid", username: "alice", password: "wonderland", want: true},
		{name: "wrong password", username: "alice", password: "looking-glass"},
		{name: "unknown user", username: "bob", password: "wonderland"},
		{name: "empty password", username: "alice"},
		{name: "empty username", password: "wonderland"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := authenticator.Authenticate(context.Background(), tc.username, tc.password)
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if ok != tc.want {
				t.Fatalf("Authenticate(%q, %q) = %v, want %v", tc.username, tc.password, ok, tc.want)
			}
		})
	}
}

func TestAuthenticatorPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("store down")
	authenticator := NewAuthenticator(failingStore{err: boom})
	ok, err := authenticator.Authenticate(context.Background(), "alice", "pw")
	if ok {
		t.Fatal("expected failure")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
