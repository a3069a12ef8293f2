// Package collection composes the virtual filesystem, the catalogue and the
// credential store into the service consumed by the HTTP API.
package collection

import (
	"context"
	"fmt"
	"log/slog"

	"polaris/internal/index"
	"polaris/internal/models"
	"polaris/internal/vfs"
)

// Authenticator verifies credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (bool, error)
}

// Catalogue is the read/rebuild surface of the index.
type Catalogue interface {
	Browse(ctx context.Context, path models.VirtualPath) ([]models.Entry, error)
	Flatten(ctx context.Context, path models.VirtualPath) ([]models.Song, error)
	Rebuild(ctx context.Context) (index.Stats, error)
	Ping(ctx context.Context) error
}

// RebuildObserver is notified after every rebuild attempt.
type RebuildObserver func(stats index.Stats, err error)

// Config wires a Collection.
type Config struct {
	VFS           *vfs.VFS
	Catalogue     Catalogue
	Authenticator Authenticator
	Logger        *slog.Logger
	OnRebuild     RebuildObserver
}

// Collection serves browse, flatten, locate and authentication requests.
type Collection struct {
	vfs       *vfs.VFS
	catalogue Catalogue
	auth      Authenticator
	logger    *slog.Logger
	onRebuild RebuildObserver
}

// New validates cfg and returns a Collection.
func New(cfg Config) (*Collection, error) {
	if cfg.VFS == nil {
		return nil, fmt.Errorf("collection requires a vfs")
	}
	if cfg.Catalogue == nil {
		return nil, fmt.Errorf("collection requires a catalogue")
	}
	if cfg.Authenticator == nil {
		return nil, fmt.Errorf("collection requires an authenticator")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Collection{
		vfs:       cfg.VFS,
		catalogue: cfg.Catalogue,
		auth:      cfg.Authenticator,
		logger:    logger,
		onRebuild: cfg.OnRebuild,
	}, nil
}

// Authenticate reports whether the credentials are valid. Store failures
// are logged and treated as a rejection.
func (c *Collection) Authenticate(ctx context.Context, username, password string) bool {
	ok, err := c.auth.Authenticate(ctx, username, password)
	if err != nil {
		c.logger.Error("credential lookup failed", "username", username, "error", err)
		return false
	}
	return ok
}

// Browse lists the children of a virtual directory.
func (c *Collection) Browse(ctx context.Context, path models.VirtualPath) ([]models.Entry, error) {
	entries, err := c.catalogue.Browse(ctx, path)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	return entries, nil
}

// Flatten lists every song below a virtual directory.
func (c *Collection) Flatten(ctx context.Context, path models.VirtualPath) ([]models.Song, error) {
	songs, err := c.catalogue.Flatten(ctx, path)
	if err != nil {
		return nil, err
	}
	if songs == nil {
		songs = []models.Song{}
	}
	return songs, nil
}

// Locate resolves a virtual path to a real filesystem path. The target is
// not required to exist.
func (c *Collection) Locate(_ context.Context, path models.VirtualPath) (string, error) {
	return c.vfs.VirtualToReal(path)
}

// Reindex rebuilds the catalogue and notifies the observer.
func (c *Collection) Reindex(ctx context.Context) error {
	stats, err := c.catalogue.Rebuild(ctx)
	if c.onRebuild != nil {
		c.onRebuild(stats, err)
	}
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	return nil
}

// Ping checks that the catalogue is reachable.
func (c *Collection) Ping(ctx context.Context) error {
	return c.catalogue.Ping(ctx)
}
