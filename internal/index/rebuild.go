package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"polaris/internal/media"
	"polaris/internal/models"
)

// Rebuild replaces the catalogue with a fresh walk of every mount point. The
// previous contents stay visible to readers until the new walk commits.
func (idx *Index) Rebuild(ctx context.Context) (Stats, error) {
	const op = "index.Rebuild"
	idx.rebuildMu.Lock()
	defer idx.rebuildMu.Unlock()

	start := time.Now()
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, models.E(models.KindCannotClearExistingIndex, op, err)
	}
	defer tx.Rollback()

	for _, table := range []string{"songs", "directories"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return Stats{}, models.E(models.KindCannotClearExistingIndex, op, fmt.Errorf("clear %s: %w", table, err))
		}
	}

	w, err := newWalker(ctx, idx, tx)
	if err != nil {
		return Stats{}, err
	}
	defer w.close()

	for _, mount := range idx.vfs.Mounts() {
		if err := w.walk(ctx, mount.Source, idx.vfs.Join(mount.Name), ""); err != nil {
			return Stats{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit index: %w", err)
	}

	stats := Stats{
		Directories: w.directories,
		Songs:       w.songs,
		Duration:    time.Since(start),
		FinishedAt:  time.Now(),
	}
	idx.statsMu.Lock()
	idx.stats = stats
	idx.statsMu.Unlock()

	idx.logger.Info("index rebuilt",
		"directories", stats.Directories,
		"songs", stats.Songs,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

type walker struct {
	idx         *Index
	insertDir   *sql.Stmt
	insertSong  *sql.Stmt
	directories int
	songs       int

	// ancestors holds the directories on the current walk path so a
	// symlink back into one of them is not followed again.
	ancestors []os.FileInfo
}

func newWalker(ctx context.Context, idx *Index, tx *sql.Tx) (*walker, error) {
	insertDir, err := tx.PrepareContext(ctx, `
		INSERT INTO directories (path, parent, artwork, artist, album, year, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare directory insert: %w", err)
	}
	insertSong, err := tx.PrepareContext(ctx, `
		INSERT INTO songs (path, parent, track_number, disc_number, title, artist, album_artist, album, year, artwork)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		insertDir.Close()
		return nil, fmt.Errorf("prepare song insert: %w", err)
	}
	return &walker{idx: idx, insertDir: insertDir, insertSong: insertSong}, nil
}

func (w *walker) close() {
	w.insertDir.Close()
	w.insertSong.Close()
}

// walk indexes the directory at real (virtual path virtual) and everything
// below it. Unreadable directories are logged and skipped.
func (w *walker) walk(ctx context.Context, real string, virtual models.VirtualPath, parent models.VirtualPath) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := w.idx.logger

	info, err := os.Stat(real)
	if err != nil || !info.IsDir() {
		logger.Warn("skipping unreadable directory", "path", real, "error", err)
		return nil
	}
	if w.onWalkPath(info) {
		logger.Warn("skipping directory cycle", "path", real)
		return nil
	}
	w.ancestors = append(w.ancestors, info)
	defer func() { w.ancestors = w.ancestors[:len(w.ancestors)-1] }()
	entries, err := os.ReadDir(real)
	if err != nil {
		logger.Warn("skipping unreadable directory", "path", real, "error", err)
		return nil
	}

	var (
		songs   []models.Song
		artwork models.VirtualPath
		subdirs []string
	)
	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(real, name)
		isDir := entry.IsDir()
		if entry.Type()&os.ModeSymlink != 0 {
			target, err := os.Stat(full)
			if err != nil {
				logger.Debug("skipping broken symlink", "path", full, "error", err)
				continue
			}
			isDir = target.IsDir()
		}
		switch {
		case isDir:
			subdirs = append(subdirs, name)
		case media.IsAudio(name):
			songs = append(songs, w.song(full, w.idx.vfs.Join(string(virtual), name), virtual))
		case artwork == "" && media.IsImage(name) && w.idx.IsAlbumArt(name):
			artwork = w.idx.vfs.Join(string(virtual), name)
		}
	}

	dir := summarise(virtual, songs)
	dir.Artwork = artwork
	dir.Modified = info.ModTime().Unix()
	if _, err := w.insertDir.ExecContext(ctx, string(dir.Path), string(parent), string(dir.Artwork), dir.Artist, dir.Album, dir.Year, dir.Modified); err != nil {
		return fmt.Errorf("insert directory %s: %w", virtual, err)
	}
	w.directories++

	for _, song := range songs {
		song.Artwork = artwork
		if _, err := w.insertSong.ExecContext(ctx,
			string(song.Path), string(song.Parent), song.TrackNumber, song.DiscNumber,
			song.Title, song.Artist, song.AlbumArtist, song.Album, song.Year, string(song.Artwork),
		); err != nil {
			return fmt.Errorf("insert song %s: %w", song.Path, err)
		}
		w.songs++
	}

	for _, name := range subdirs {
		if err := w.walk(ctx, filepath.Join(real, name), w.idx.vfs.Join(string(virtual), name), virtual); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) onWalkPath(info os.FileInfo) bool {
	for _, ancestor := range w.ancestors {
		if os.SameFile(ancestor, info) {
			return true
		}
	}
	return false
}

func (w *walker) song(real string, virtual, parent models.VirtualPath) models.Song {
	song := models.Song{Path: virtual, Parent: parent}
	meta, err := ReadMetadata(real)
	if err != nil {
		level := slog.LevelWarn
		if models.IsKind(err, models.KindUnsupportedMetadataFormat) {
			level = slog.LevelDebug
		}
		w.idx.logger.Log(context.Background(), level, "song metadata unavailable", "path", real, "error", err)
		return song
	}
	song.Title = meta.Title
	song.Artist = meta.Artist
	song.AlbumArtist = meta.AlbumArtist
	song.Album = meta.Album
	song.Year = meta.Year
	song.TrackNumber = meta.TrackNumber
	song.DiscNumber = meta.DiscNumber
	return song
}

// summarise derives album-level fields for a directory from its songs. A
// field is only set when every song that carries it agrees.
func summarise(path models.VirtualPath, songs []models.Song) models.Directory {
	dir := models.Directory{Path: path}
	var (
		artist, album string
		year          int
		mixedArtist   bool
		mixedAlbum    bool
		mixedYear     bool
	)
	for _, song := range songs {
		songArtist := song.AlbumArtist
		if songArtist == "" {
			songArtist = song.Artist
		}
		artist, mixedArtist = agree(artist, songArtist, mixedArtist)
		album, mixedAlbum = agree(album, song.Album, mixedAlbum)
		if song.Year != 0 {
			if year != 0 && year != song.Year {
				mixedYear = true
			}
			year = song.Year
		}
	}
	if !mixedArtist {
		dir.Artist = artist
	}
	if !mixedAlbum {
		dir.Album = album
	}
	if !mixedYear {
		dir.Year = year
	}
	return dir
}

func agree(current, next string, mixed bool) (string, bool) {
	if next == "" {
		return current, mixed
	}
	if current != "" && current != next {
		return next, true
	}
	return next, mixed
}
