package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"

	"polaris/internal/models"
)

// Formats the tag reader understands. Other audio files are indexed without
// metadata.
var taggedExtensions = map[string]struct{}{
	"flac": {},
	"mp3":  {},
	"m4a":  {},
	"ogg":  {},
	"oga":  {},
	"opus": {},
}

// Metadata holds the tag fields copied into the catalogue.
type Metadata struct {
	Title       string
	Artist      string
	AlbumArtist string
	Album       string
	Year        int
	TrackNumber int
	DiscNumber  int
}

// ReadMetadata reads the tags of an audio file. Files without tags yield
// empty metadata and no error.
func ReadMetadata(path string) (Metadata, error) {
	const op = "index.ReadMetadata"
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if _, ok := taggedExtensions[ext]; !ok {
		return Metadata{}, models.E(models.KindUnsupportedMetadataFormat, op, fmt.Errorf("%q files carry no supported tags", ext))
	}

	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, models.E(models.KindIO, op, err)
	}
	defer f.Close()

	tags, err := tag.ReadFrom(f)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return Metadata{}, nil
		}
		return Metadata{}, models.E(models.KindMetadataDecoding, op, err)
	}

	track, _ := tags.Track()
	disc, _ := tags.Disc()
	return Metadata{
		Title:       strings.TrimSpace(tags.Title()),
		Artist:      strings.TrimSpace(tags.Artist()),
		AlbumArtist: strings.TrimSpace(tags.AlbumArtist()),
		Album:       strings.TrimSpace(tags.Album()),
		Year:        tags.Year(),
		TrackNumber: track,
		DiscNumber:  disc,
	}, nil
}
