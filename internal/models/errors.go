package models

import (
	"errors"
	"fmt"
)

// Kind classifies the failures produced by the collection, index and
// thumbnail collaborators. The set is closed: every value listed by Kinds
// must have a transport mapping in the API error translator.
type Kind int

const (
	KindIO Kind = iota + 1
	KindCannotClearExistingIndex
	KindPathDecoding
	KindConfigDirectory
	KindCacheDirectory
	KindPathNotInVFS
	KindCannotServeDirectory
	KindUnsupportedFileType
	KindAlbumArtSearch
	KindImageProcessing
	KindUnsupportedMetadataFormat
	KindMetadataDecoding
	KindUnauthorized
	KindIncorrectCredentials
)

var kindDescriptions = map[Kind]string{
	KindIO:                        "i/o error",
	KindCannotClearExistingIndex:  "could not clear existing index",
	KindPathDecoding:              "error while decoding a path",
	KindConfigDirectory:           "could not access the config directory",
	KindCacheDirectory:            "could not access the cache directory",
	KindPathNotInVFS:              "requested path does not index a mount point",
	KindCannotServeDirectory:      "only individual files can be served",
	KindUnsupportedFileType:       "unrecognized file type",
	KindAlbumArtSearch:            "error while looking for album art",
	KindImageProcessing:           "error while processing image",
	KindUnsupportedMetadataFormat: "unsupported metadata format",
	KindMetadataDecoding:          "error while reading song metadata",
	KindUnauthorized:              "authentication required",
	KindIncorrectCredentials:      "incorrect username or password",
}

// Kinds lists every defined kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindDescriptions))
	for k := KindIO; k <= KindIncorrectCredentials; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// String returns the client-safe description of the kind.
func (k Kind) String() string {
	if desc, ok := kindDescriptions[k]; ok {
		return desc
	}
	return fmt.Sprintf("unknown error kind %d", int(k))
}

// Error is a classified failure. Op names the operation that failed and Err
// carries the underlying cause for logging; neither is exposed to clients.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E builds a classified error for op, wrapping cause when non-nil.
func E(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
