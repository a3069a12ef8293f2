package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"polaris/internal/models"
	"polaris/internal/vfs"
)

// ErrInvalidUTF8 reports a request path whose decoded bytes are not UTF-8.
var ErrInvalidUTF8 = errors.New("decoded path is not valid UTF-8")

// DecodeError is returned when a request path cannot be turned into a
// virtual path. It is a client error, distinct from the PathDecoding kind
// that collaborators may report.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode path %q: %v", e.Raw, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PathDecoder rebuilds virtual paths from raw URL path segments.
type PathDecoder struct {
	// Separator joins segments. Empty selects vfs.DefaultSeparator.
	Separator string
}

func (d PathDecoder) separator() string {
	if d.Separator == "" {
		return vfs.DefaultSeparator
	}
	return d.Separator
}

// Decode joins the still percent-encoded segments with the separator,
// percent-decodes the result and requires it to be valid UTF-8.
func (d PathDecoder) Decode(segments []string) (models.VirtualPath, error) {
	joined := strings.Join(segments, d.separator())
	decoded, err := url.PathUnescape(joined)
	if err != nil {
		return "", &DecodeError{Raw: joined, Err: err}
	}
	if !utf8.ValidString(decoded) {
		return "", &DecodeError{Raw: joined, Err: ErrInvalidUTF8}
	}
	return models.VirtualPath(decoded), nil
}

// DecodeRequest decodes the request path left after the route prefix has
// been stripped. An empty remainder is the library root.
func (d PathDecoder) DecodeRequest(r *http.Request) (models.VirtualPath, error) {
	raw := strings.TrimPrefix(r.URL.EscapedPath(), "/")
	if raw == "" {
		return "", nil
	}
	return d.Decode(strings.Split(raw, "/"))
}
