package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
)

const maxCredentialsBody = 1 << 20

var (
	errMissingField   = errors.New("field missing")
	errDuplicateField = errors.New("field given more than once")
	errNotString      = errors.New("field is not a string")
)

type credentials struct {
	Username string
	Password string
}

// parseCredentials reads username and password from a form, multipart or
// JSON body. Each must appear exactly once as a plain string.
func parseCredentials(w http.ResponseWriter, r *http.Request) (credentials, error) {
	if r.Body == nil {
		return credentials{}, errors.New("request body is required")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxCredentialsBody)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return credentials{}, fmt.Errorf("content type: %w", err)
	}
	switch mediaType {
	case "application/json":
		return credentialsFromJSON(r.Body)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return credentials{}, fmt.Errorf("parse form: %w", err)
		}
		return credentialsFromValues(r.PostForm)
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxCredentialsBody); err != nil {
			return credentials{}, fmt.Errorf("parse multipart form: %w", err)
		}
		defer r.MultipartForm.RemoveAll()
		return credentialsFromValues(url.Values(r.MultipartForm.Value))
	default:
		return credentials{}, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func credentialsFromValues(values url.Values) (credentials, error) {
	username, err := singleValue(values, "username")
	if err != nil {
		return credentials{}, err
	}
	password, err := singleValue(values, "password")
	if err != nil {
		return credentials{}, err
	}
	return credentials{Username: username, Password: password}, nil
}

func singleValue(values url.Values, field string) (string, error) {
	switch got := values[field]; len(got) {
	case 0:
		return "", fmt.Errorf("%s: %w", field, errMissingField)
	case 1:
		return got[0], nil
	default:
		return "", fmt.Errorf("%s: %w", field, errDuplicateField)
	}
}

// credentialsFromJSON walks the top-level object token by token so repeated
// keys are detected instead of silently overwritten. Unknown keys are
// ignored.
func credentialsFromJSON(body io.Reader) (credentials, error) {
	decoder := json.NewDecoder(body)
	token, err := decoder.Token()
	if err != nil {
		return credentials{}, fmt.Errorf("decode json: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return credentials{}, errors.New("decode json: expected an object")
	}

	found := map[string][]json.RawMessage{}
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return credentials{}, fmt.Errorf("decode json: %w", err)
		}
		key, _ := keyToken.(string)
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			return credentials{}, fmt.Errorf("decode json %q: %w", key, err)
		}
		if key == "username" || key == "password" {
			found[key] = append(found[key], raw)
		}
	}
	if _, err := decoder.Token(); err != nil {
		return credentials{}, fmt.Errorf("decode json: %w", err)
	}

	username, err := singleString(found, "username")
	if err != nil {
		return credentials{}, err
	}
	password, err := singleString(found, "password")
	if err != nil {
		return credentials{}, err
	}
	return credentials{Username: username, Password: password}, nil
}

func singleString(found map[string][]json.RawMessage, field string) (string, error) {
	values := found[field]
	switch len(values) {
	case 0:
		return "", fmt.Errorf("%s: %w", field, errMissingField)
	case 1:
	default:
		return "", fmt.Errorf("%s: %w", field, errDuplicateField)
	}
	raw := bytes.TrimSpace(values[0])
	if len(raw) == 0 || raw[0] != '"' {
		return "", fmt.Errorf("%s: %w", field, errNotString)
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	return value, nil
}
