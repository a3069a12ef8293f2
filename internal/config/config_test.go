package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"polaris/internal/auth"
	"polaris/internal/models"
	"polaris/internal/vfs"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("mount_dirs:\n  - name: MusicLibrary\n    source: /srv/music\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Separator != vfs.DefaultSeparator {
		t.Fatalf("expected default separator, got %q", cfg.Separator)
	}
	if cfg.ReindexEvery() != DefaultReindexEvery {
		t.Fatalf("expected default reindex period, got %v", cfg.ReindexEvery())
	}
	if cfg.AlbumArtPattern == "" {
		t.Fatal("expected default album art pattern")
	}
	mounts := cfg.VFSMounts()
	if len(mounts) != 1 || mounts[0].Name != "MusicLibrary" || mounts[0].Source != "/srv/music" {
		t.Fatalf("unexpected mounts %+v", mounts)
	}
}

func TestParseFullConfig(t *testing.T) {
	hash, err := auth.HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	data := strings.Join([]string{
		"separator: '/'",
		"album_art_pattern: 'cover\\.jpg'",
		"reindex_every_seconds: 60",
		"mount_dirs:",
		"  - name: Music",
		"    source: /srv/music",
		"users:",
		"  - name: alice",
		"    password: wonderland",
		"  - name: bob",
		"    password_hash: " + hash,
		"",
	}, "\n")
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Separator != "/" || cfg.AlbumArtPattern != `cover\.jpg` {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ReindexEvery() != time.Minute {
		t.Fatalf("expected one minute, got %v", cfg.ReindexEvery())
	}
	creds := cfg.Credentials()
	if len(creds) != 2 || creds[0].Password != "wonderland" || creds[1].PasswordHash != hash {
		t.Fatalf("unexpected credentials %+v", creds)
	}
	if _, err := auth.NewMemoryUserStore(creds); err != nil {
		t.Fatalf("credentials should load into a store: %v", err)
	}
}

func TestValidateReportsProblems(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{name: "negative reindex", yaml: "reindex_every_seconds: -1\n", want: "reindex_every_seconds"},
		{name: "separator in mount", yaml: "mount_dirs:\n  - name: 'a\\b'\n    source: /x\n", want: "separator"},
		{name: "duplicate mount", yaml: "mount_dirs:\n  - {name: a, source: /x}\n  - {name: a, source: /y}\n", want: "duplicate"},
		{name: "missing password", yaml: "users:\n  - name: alice\n", want: "password"},
		{name: "both passwords", yaml: "users:\n  - {name: alice, password: a, password_hash: b}\n", want: "only one"},
		{name: "bad hash", yaml: "users:\n  - {name: alice, password_hash: plain}\n", want: "pbkdf2"},
		{name: "duplicate user", yaml: "users:\n  - {name: a, password: x}\n  - {name: a, password: y}\n", want: "twice"},
		{name: "nameless user", yaml: "users:\n  - {password: x}\n", want: "name is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("mount_dirs: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polaris.yaml")
	if err := os.WriteFile(path, []byte("users:\n  - {name: alice, password: pw}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if len(cfg.Users) != 1 {
		t.Fatalf("expected one user, got %d", len(cfg.Users))
	}

	_, err = LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	if !models.IsKind(err, models.KindConfigDirectory) {
		t.Fatalf("expected KindConfigDirectory, got %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}
