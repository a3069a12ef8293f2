// Package config loads the library description: mount points, users,
// the virtual path separator and indexing behaviour.
//
// Example:
//
//	separator: '\'
//	album_art_pattern: '^(folder|cover)\.(jpe?g|png)$'
//	reindex_every_seconds: 1800
//	mount_dirs:
//	  - name: MusicLibrary
//	    source: /srv/music
//	users:
//	  - name: alice
//	    password_hash: pbkdf2$sha256$120000$...
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"polaris/internal/auth"
	"polaris/internal/index"
	"polaris/internal/models"
	"polaris/internal/vfs"
)

// DefaultReindexEvery is the rebuild period used when none is configured.
const DefaultReindexEvery = 30 * time.Minute

// MountDir maps a virtual top-level name to a real directory.
type MountDir struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
}

// User is an account allowed to log in.
type User struct {
	Name         string `yaml:"name"`
	Password     string `yaml:"password,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty"`
}

// Config is the library configuration file.
type Config struct {
	Separator           string     `yaml:"separator"`
	AlbumArtPattern     string     `yaml:"album_art_pattern"`
	ReindexEverySeconds int        `yaml:"reindex_every_seconds"`
	MountDirs           []MountDir `yaml:"mount_dirs"`
	Users               []User     `yaml:"users"`
}

// Default returns a configuration with no mounts or users.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFromPath reads, parses and validates a YAML config file.
func LoadFromPath(path string) (*Config, error) {
	const op = "config.LoadFromPath"
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.E(models.KindConfigDirectory, op, fmt.Errorf("read config: %w", err))
	}
	return Parse(data)
}

// Parse decodes and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Separator == "" {
		c.Separator = vfs.DefaultSeparator
	}
	if strings.TrimSpace(c.AlbumArtPattern) == "" {
		c.AlbumArtPattern = index.DefaultAlbumArtPattern
	}
	if c.ReindexEverySeconds == 0 {
		c.ReindexEverySeconds = int(DefaultReindexEvery / time.Second)
	}
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	var problems []error
	if c.ReindexEverySeconds < 0 {
		problems = append(problems, fmt.Errorf("reindex_every_seconds must not be negative"))
	}
	if _, err := vfs.New(c.Separator, c.VFSMounts()); err != nil {
		problems = append(problems, fmt.Errorf("mount_dirs: %w", err))
	}
	seen := make(map[string]struct{}, len(c.Users))
	for i, user := range c.Users {
		name := strings.TrimSpace(user.Name)
		switch {
		case name == "":
			problems = append(problems, fmt.Errorf("users[%d]: name is required", i))
			continue
		case user.Password == "" && user.PasswordHash == "":
			problems = append(problems, fmt.Errorf("user %q: password or password_hash is required", name))
		case user.Password != "" && user.PasswordHash != "":
			problems = append(problems, fmt.Errorf("user %q: set only one of password and password_hash", name))
		case user.PasswordHash != "" && !auth.IsPasswordHash(user.PasswordHash):
			problems = append(problems, fmt.Errorf("user %q: password_hash is not a pbkdf2 hash", name))
		}
		if _, dup := seen[name]; dup {
			problems = append(problems, fmt.Errorf("user %q is declared twice", name))
		}
		seen[name] = struct{}{}
	}
	return errors.Join(problems...)
}

// ReindexEvery returns the rebuild period.
func (c *Config) ReindexEvery() time.Duration {
	return time.Duration(c.ReindexEverySeconds) * time.Second
}

// VFSMounts converts the mount list for the vfs package.
func (c *Config) VFSMounts() []vfs.MountPoint {
	mounts := make([]vfs.MountPoint, 0, len(c.MountDirs))
	for _, dir := range c.MountDirs {
		mounts = append(mounts, vfs.MountPoint{Name: dir.Name, Source: dir.Source})
	}
	return mounts
}

// Credentials converts the user list for the auth package.
func (c *Config) Credentials() []auth.UserCredential {
	users := make([]auth.UserCredential, 0, len(c.Users))
	for _, user := range c.Users {
		users = append(users, auth.UserCredential{
			Name:         strings.TrimSpace(user.Name),
			Password:     user.Password,
			PasswordHash: user.PasswordHash,
		})
	}
	return users
}
