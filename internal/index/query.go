package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"polaris/internal/models"
)

const (
	directoryColumns = `path, parent, artwork, artist, album, year, modified`
	songColumns      = `path, parent, track_number, disc_number, title, artist, album_artist, album, year, artwork`
)

// Browse lists the immediate children of path: directories first, then
// songs. The root lists one directory per mount point.
func (idx *Index) Browse(ctx context.Context, path models.VirtualPath) ([]models.Entry, error) {
	const op = "index.Browse"
	path = idx.vfs.Canonical(path)
	if !path.IsRoot() {
		if err := idx.requireDirectory(ctx, op, path); err != nil {
			return nil, err
		}
	}

	dirs, err := idx.queryDirectories(ctx, `SELECT `+directoryColumns+` FROM directories WHERE parent = ?`, string(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	songs, err := idx.querySongs(ctx, `SELECT `+songColumns+` FROM songs WHERE parent = ?`, string(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sortDirectories(dirs)
	sortSongs(songs)

	entries := make([]models.Entry, 0, len(dirs)+len(songs))
	for _, dir := range dirs {
		entries = append(entries, models.DirectoryEntry(dir))
	}
	for _, song := range songs {
		entries = append(entries, models.SongEntry(song))
	}
	return entries, nil
}

// Flatten lists every song below path, recursively, in path order.
func (idx *Index) Flatten(ctx context.Context, path models.VirtualPath) ([]models.Song, error) {
	const op = "index.Flatten"
	path = idx.vfs.Canonical(path)

	var (
		songs []models.Song
		err   error
	)
	if path.IsRoot() {
		songs, err = idx.querySongs(ctx, `SELECT `+songColumns+` FROM songs`)
	} else {
		if err := idx.requireDirectory(ctx, op, path); err != nil {
			return nil, err
		}
		prefix := string(path) + idx.vfs.Separator()
		// substr counts characters, not bytes.
		songs, err = idx.querySongs(ctx,
			`SELECT `+songColumns+` FROM songs WHERE substr(path, 1, ?) = ?`,
			utf8.RuneCountInString(prefix), prefix)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sortByPath(songs, func(s models.Song) models.VirtualPath { return s.Path })
	return songs, nil
}

func (idx *Index) requireDirectory(ctx context.Context, op string, path models.VirtualPath) error {
	var found string
	err := idx.db.QueryRowContext(ctx, `SELECT path FROM directories WHERE path = ?`, string(path)).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return models.E(models.KindPathNotInVFS, op, fmt.Errorf("directory %s is not indexed", path))
	}
	if err != nil {
		return fmt.Errorf("%s: lookup %s: %w", op, path, err)
	}
	return nil
}

func (idx *Index) queryDirectories(ctx context.Context, query string, args ...any) ([]models.Directory, error) {
	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query directories: %w", err)
	}
	defer rows.Close()

	var out []models.Directory
	for rows.Next() {
		var (
			dir                   models.Directory
			path, parent, artwork string
		)
		if err := rows.Scan(&path, &parent, &artwork, &dir.Artist, &dir.Album, &dir.Year, &dir.Modified); err != nil {
			return nil, fmt.Errorf("scan directory: %w", err)
		}
		dir.Path = models.VirtualPath(path)
		dir.Artwork = models.VirtualPath(artwork)
		dir.IsMount = parent == ""
		out = append(out, dir)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate directories: %w", err)
	}
	return out, nil
}

func (idx *Index) querySongs(ctx context.Context, query string, args ...any) ([]models.Song, error) {
	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query songs: %w", err)
	}
	defer rows.Close()

	var out []models.Song
	for rows.Next() {
		var (
			song                  models.Song
			path, parent, artwork string
		)
		if err := rows.Scan(&path, &parent, &song.TrackNumber, &song.DiscNumber, &song.Title,
			&song.Artist, &song.AlbumArtist, &song.Album, &song.Year, &artwork); err != nil {
			return nil, fmt.Errorf("scan song: %w", err)
		}
		song.Path = models.VirtualPath(path)
		song.Parent = models.VirtualPath(parent)
		song.Artwork = models.VirtualPath(artwork)
		out = append(out, song)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate songs: %w", err)
	}
	return out, nil
}

// newCollator returns a case-insensitive, digit-aware collator. Collators
// keep internal buffers, so each sort gets its own.
func newCollator() *collate.Collator {
	return collate.New(language.Und, collate.IgnoreCase, collate.Numeric)
}

func sortDirectories(dirs []models.Directory) {
	sortByPath(dirs, func(d models.Directory) models.VirtualPath { return d.Path })
}

// sortSongs orders an album listing by disc, then track, then path.
func sortSongs(songs []models.Song) {
	c := newCollator()
	sort.SliceStable(songs, func(i, j int) bool {
		a, b := songs[i], songs[j]
		if a.DiscNumber != b.DiscNumber {
			return a.DiscNumber < b.DiscNumber
		}
		if a.TrackNumber != b.TrackNumber {
			return a.TrackNumber < b.TrackNumber
		}
		return c.CompareString(string(a.Path), string(b.Path)) < 0
	})
}

func sortByPath[T any](items []T, path func(T) models.VirtualPath) {
	c := newCollator()
	sort.SliceStable(items, func(i, j int) bool {
		a, b := string(path(items[i])), string(path(items[j]))
		if cmp := c.CompareString(a, b); cmp != 0 {
			return cmp < 0
		}
		return a < b
	})
}
