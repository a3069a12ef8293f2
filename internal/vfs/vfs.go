// Package vfs maps the virtual library namespace onto real directories.
//
// A virtual path is a sequence of components joined by the configured
// separator. The first component names a mount point; the remaining
// components are resolved below that mount's source directory.
package vfs

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"polaris/internal/models"
)

// DefaultSeparator joins virtual path components unless configured otherwise.
const DefaultSeparator = `\`

var (
	errEmptyMountName   = errors.New("mount name is required")
	errEmptyMountSource = errors.New("mount source is required")
)

// MountPoint binds a virtual top-level name to a real directory.
type MountPoint struct {
	Name   string
	Source string
}

// VFS resolves virtual paths against a fixed set of mount points. It is
// immutable after construction and safe for concurrent use.
type VFS struct {
	separator string
	mounts    map[string]string
	names     []string
}

// New validates the mounts and returns a VFS using separator between
// components. An empty separator selects DefaultSeparator.
func New(separator string, mounts []MountPoint) (*VFS, error) {
	if separator == "" {
		separator = DefaultSeparator
	}
	v := &VFS{separator: separator, mounts: make(map[string]string, len(mounts))}
	for _, mount := range mounts {
		name := strings.TrimSpace(mount.Name)
		if name == "" {
			return nil, errEmptyMountName
		}
		if strings.Contains(name, separator) {
			return nil, fmt.Errorf("mount %q contains the path separator", name)
		}
		source := strings.TrimSpace(mount.Source)
		if source == "" {
			return nil, fmt.Errorf("mount %q: %w", name, errEmptyMountSource)
		}
		abs, err := filepath.Abs(source)
		if err != nil {
			return nil, fmt.Errorf("mount %q: resolve source: %w", name, err)
		}
		if _, exists := v.mounts[name]; exists {
			return nil, fmt.Errorf("duplicate mount %q", name)
		}
		v.mounts[name] = filepath.Clean(abs)
		v.names = append(v.names, name)
	}
	sort.Strings(v.names)
	return v, nil
}

// Separator returns the component separator.
func (v *VFS) Separator() string {
	return v.separator
}

// Mounts returns the mount points sorted by name.
func (v *VFS) Mounts() []MountPoint {
	out := make([]MountPoint, 0, len(v.names))
	for _, name := range v.names {
		out = append(out, MountPoint{Name: name, Source: v.mounts[name]})
	}
	return out
}

// Components splits a virtual path, dropping empty components.
func (v *VFS) Components(path models.VirtualPath) []string {
	raw := strings.Split(string(path), v.separator)
	out := raw[:0]
	for _, part := range raw {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Join builds a virtual path from components.
func (v *VFS) Join(components ...string) models.VirtualPath {
	return models.VirtualPath(strings.Join(components, v.separator))
}

// Canonical rewrites path without empty components so it can be compared
// against indexed paths.
func (v *VFS) Canonical(path models.VirtualPath) models.VirtualPath {
	return v.Join(v.Components(path)...)
}

// VirtualToReal resolves path to a real location. Paths that do not start
// with a known mount or that try to climb out of it fail with
// KindPathNotInVFS.
func (v *VFS) VirtualToReal(path models.VirtualPath) (string, error) {
	const op = "vfs.VirtualToReal"
	components := v.Components(path)
	if len(components) == 0 {
		return "", models.E(models.KindPathNotInVFS, op, errors.New("empty path"))
	}
	source, ok := v.mounts[components[0]]
	if !ok {
		return "", models.E(models.KindPathNotInVFS, op, fmt.Errorf("unknown mount %q", components[0]))
	}
	rest := components[1:]
	for _, part := range rest {
		if part == "." || part == ".." || strings.ContainsAny(part, "/\x00") || strings.ContainsRune(part, filepath.Separator) {
			return "", models.E(models.KindPathNotInVFS, op, fmt.Errorf("invalid component %q", part))
		}
	}
	return filepath.Join(append([]string{source}, rest...)...), nil
}
