// Package media classifies library files by extension.
//
// Classification is purely name based: the audio and image allow-lists are
// fixed, disjoint and matched case-insensitively against the file suffix.
// Content is never sniffed.
package media

import (
	"path/filepath"
	"strings"
)

// Kind is the resource kind of a resolved library file.
type Kind int

const (
	KindUnsupported Kind = iota
	KindAudio
	KindImage
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindImage:
		return "image"
	case KindDirectory:
		return "directory"
	default:
		return "unsupported"
	}
}

// ExtensionSet is an immutable set of lower-case extensions without the
// leading dot.
type ExtensionSet struct {
	members map[string]struct{}
}

func newExtensionSet(exts ...string) ExtensionSet {
	set := ExtensionSet{members: make(map[string]struct{}, len(exts))}
	for _, ext := range exts {
		set.members[strings.ToLower(ext)] = struct{}{}
	}
	return set
}

// Contains reports whether ext (with or without leading dot, any case) is a member.
func (s ExtensionSet) Contains(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return false
	}
	_, ok := s.members[ext]
	return ok
}

// Matches reports whether the file name carries a member extension.
func (s ExtensionSet) Matches(name string) bool {
	return s.Contains(filepath.Ext(name))
}

var (
	audioExtensions = newExtensionSet("flac", "mp3", "ogg", "oga", "opus", "m4a", "aac", "wav")
	imageExtensions = newExtensionSet("jpg", "jpeg", "png", "gif", "bmp", "webp")
)

// IsAudio reports whether name has an audio extension.
func IsAudio(name string) bool { return audioExtensions.Matches(name) }

// IsImage reports whether name has an image extension.
func IsImage(name string) bool { return imageExtensions.Matches(name) }

// Classify returns the kind of a regular file by its name.
func Classify(name string) Kind {
	switch {
	case IsAudio(name):
		return KindAudio
	case IsImage(name):
		return KindImage
	default:
		return KindUnsupported
	}
}

var audioContentTypes = map[string]string{
	"flac": "audio/flac",
	"mp3":  "audio/mpeg",
	"ogg":  "audio/ogg",
	"oga":  "audio/ogg",
	"opus": "audio/ogg",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"wav":  "audio/wav",
}

// AudioContentType returns the MIME type for an audio file name, or "" when
// the extension is not an audio extension.
func AudioContentType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	return audioContentTypes[ext]
}
