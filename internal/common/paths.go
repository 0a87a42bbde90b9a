// Package common holds error taxonomy and path-string helpers shared by
// every core component.
package common

import (
	"path/filepath"
	"strings"
)

// NormalizePath cleans and normalizes a path, removing leading/trailing slashes
func NormalizePath(path string) string {
	path = filepath.Clean(path)
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	if path == "." {
		return ""
	}
	return path
}

// SplitPath splits a path into its components
func SplitPath(path string) []string {
	path = NormalizePath(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// JoinPath joins path components
func JoinPath(parts ...string) string {
	return NormalizePath(filepath.Join(parts...))
}

// ParentPath returns the parent directory of a path
func ParentPath(path string) string {
	path = NormalizePath(path)
	if path == "" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

// BaseName returns the base name of a path
func BaseName(path string) string {
	path = NormalizePath(path)
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

// RelativeSuffix returns path's suffix relative to prefix, assuming
// prefix is a "/"-boundary ancestor of path (or equal to it, in which
// case the suffix is "."). Both inputs are plain "/"-joined relative
// path strings, not full URIs: callers strip the URI scheme/origin
// first. Returns ok=false if prefix is not actually a boundary-ancestor.
func RelativeSuffix(prefix, path string) (suffix string, ok bool) {
	prefix = NormalizePath(prefix)
	path = NormalizePath(path)
	if prefix == path {
		return ".", true
	}
	if prefix == "" {
		if path == "" {
			return ".", true
		}
		return path, true
	}
	if strings.HasPrefix(path, prefix+"/") {
		return path[len(prefix)+1:], true
	}
	return "", false
}

// Depth returns the number of "/"-separated components in a relative
// path string, treating "" and "." as depth 0.
func Depth(relPath string) int {
	relPath = NormalizePath(relPath)
	if relPath == "" {
		return 0
	}
	return strings.Count(relPath, "/") + 1
}
