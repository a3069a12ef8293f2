// Package index keeps a SQLite catalogue of the directories and songs found
// below the configured mount points.
//
// The catalogue is rebuilt wholesale by Rebuild and queried by the browse and
// flatten operations of the collection. Paths stored in the database are
// canonical virtual paths.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"polaris/internal/vfs"
)

// DefaultAlbumArtPattern matches the conventional cover file names.
const DefaultAlbumArtPattern = `^(folder|cover|front)\.(jpe?g|png)$`

var errClosed = errors.New("index closed")

// Options tunes an Index.
type Options struct {
	// AlbumArtPattern is matched case-insensitively against file names.
	AlbumArtPattern string
	Logger          *slog.Logger
}

// Stats summarises the most recent rebuild.
type Stats struct {
	Directories int
	Songs       int
	Duration    time.Duration
	FinishedAt  time.Time
}

// Index is a SQLite-backed catalogue. Reads run concurrently; rebuilds are
// serialised.
type Index struct {
	db       *sql.DB
	vfs      *vfs.VFS
	albumArt *regexp.Regexp
	logger   *slog.Logger

	rebuildMu sync.Mutex
	statsMu   sync.RWMutex
	stats     Stats
}

// Open opens (or creates) the database at path. Use ":memory:" for a
// throwaway catalogue.
func Open(ctx context.Context, path string, v *vfs.VFS, opts Options) (*Index, error) {
	if v == nil {
		return nil, fmt.Errorf("index requires a vfs")
	}
	pattern := strings.TrimSpace(opts.AlbumArtPattern)
	if pattern == "" {
		pattern = DefaultAlbumArtPattern
	}
	albumArt, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile album art pattern: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	idx := &Index{db: db, vfs: v, albumArt: albumArt, logger: logger}
	if err := idx.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate index database: %w", err)
	}
	return idx, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (idx *Index) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS directories (
		path TEXT PRIMARY KEY,
		parent TEXT NOT NULL,
		artwork TEXT NOT NULL DEFAULT '',
		artist TEXT NOT NULL DEFAULT '',
		album TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL DEFAULT 0,
		modified INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS songs (
		path TEXT PRIMARY KEY,
		parent TEXT NOT NULL,
		track_number INTEGER NOT NULL DEFAULT 0,
		disc_number INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL DEFAULT '',
		artist TEXT NOT NULL DEFAULT '',
		album_artist TEXT NOT NULL DEFAULT '',
		album TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL DEFAULT 0,
		artwork TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_directories_parent ON directories(parent);
	CREATE INDEX IF NOT EXISTS idx_songs_parent ON songs(parent);
	`
	_, err := idx.db.ExecContext(ctx, schema)
	return err
}

// Ping checks that the database is reachable.
func (idx *Index) Ping(ctx context.Context) error {
	if idx == nil || idx.db == nil {
		return errClosed
	}
	return idx.db.PingContext(ctx)
}

// Close releases the database handle.
func (idx *Index) Close() error {
	if idx == nil || idx.db == nil {
		return nil
	}
	return idx.db.Close()
}

// Stats returns the summary of the last successful rebuild.
func (idx *Index) Stats() Stats {
	idx.statsMu.RLock()
	defer idx.statsMu.RUnlock()
	return idx.stats
}

// IsAlbumArt reports whether a file name matches the album art pattern.
func (idx *Index) IsAlbumArt(name string) bool {
	return idx.albumArt.MatchString(name)
}
