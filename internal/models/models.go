package models

// VirtualPath is a location inside the logical media library, expressed with
// the configured separator between components. Values are produced by the API
// path decoder and never contain raw percent escapes.
type VirtualPath string

// String implements fmt.Stringer.
func (p VirtualPath) String() string {
	return string(p)
}

// IsRoot reports whether the path addresses the top of the library.
func (p VirtualPath) IsRoot() bool {
	return p == ""
}

// Version is the API version advertised to clients.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// Directory describes a browsable folder of the collection.
type Directory struct {
	Path     VirtualPath `json:"path"`
	Artwork  VirtualPath `json:"artwork,omitempty"`
	Artist   string      `json:"artist,omitempty"`
	Album    string      `json:"album,omitempty"`
	Year     int         `json:"year,omitempty"`
	IsMount  bool        `json:"is_mount,omitempty"`
	Modified int64       `json:"modified,omitempty"`
}

// Song describes a playable audio file of the collection.
type Song struct {
	Path        VirtualPath `json:"path"`
	Parent      VirtualPath `json:"parent"`
	TrackNumber int         `json:"track_number,omitempty"`
	DiscNumber  int         `json:"disc_number,omitempty"`
	Title       string      `json:"title,omitempty"`
	Artist      string      `json:"artist,omitempty"`
	AlbumArtist string      `json:"album_artist,omitempty"`
	Album       string      `json:"album,omitempty"`
	Year        int         `json:"year,omitempty"`
	Artwork     VirtualPath `json:"artwork,omitempty"`
}

// EntryKind tags the variant held by an Entry.
type EntryKind string

const (
	EntryDirectory EntryKind = "directory"
	EntrySong      EntryKind = "song"
)

// Entry is a single child returned by a browse listing. Exactly one of
// Directory or Song is set, matching Kind.
type Entry struct {
	Kind      EntryKind  `json:"kind"`
	Directory *Directory `json:"directory,omitempty"`
	Song      *Song      `json:"song,omitempty"`
}

// DirectoryEntry wraps a directory as a browse entry.
func DirectoryEntry(dir Directory) Entry {
	return Entry{Kind: EntryDirectory, Directory: &dir}
}

// SongEntry wraps a song as a browse entry.
func SongEntry(song Song) Entry {
	return Entry{Kind: EntrySong, Song: &song}
}

// Path returns the virtual path of the wrapped value.
func (e Entry) Path() VirtualPath {
	switch {
	case e.Directory != nil:
		return e.Directory.Path
	case e.Song != nil:
		return e.Song.Path
	default:
		return ""
	}
}
