// Package model defines the typed records shared across every core
// component: URI helpers, Node, and Snapshot.
package model

import (
	"fmt"
	"strings"

	"github.com/latentloop/diskindex/internal/common"
)

// Scheme distinguishes the two URI origins diskindex understands.
type Scheme string

const (
	SchemeLocal  Scheme = "local"
	SchemeObject Scheme = "object"
)

// SchemeOf classifies a canonical URI as local or object. A URI
// matching `<scheme>://<bucket>[/<key>]` is object; anything else is
// treated as a local absolute path.
func SchemeOf(uri string) Scheme {
	if strings.Contains(uri, "://") {
		return SchemeObject
	}
	return SchemeLocal
}

// Canonicalize puts uri into its canonical form: no trailing slash
// except at the scheme root, components separated by "/". Returns
// ErrInvalidURI for inputs that can't be canonicalized (relative local
// paths, malformed object URIs).
func Canonicalize(uri string) (string, error) {
	if uri == "" {
		return "", fmt.Errorf("empty uri: %w", common.ErrInvalidURI)
	}
	if idx := strings.Index(uri, "://"); idx >= 0 {
		scheme := uri[:idx]
		rest := strings.Trim(uri[idx+3:], "/")
		if scheme == "" || rest == "" {
			return "", fmt.Errorf("malformed object uri %q: %w", uri, common.ErrInvalidURI)
		}
		parts := strings.Split(rest, "/")
		bucket := parts[0]
		if bucket == "" {
			return "", fmt.Errorf("malformed object uri %q: %w", uri, common.ErrInvalidURI)
		}
		key := strings.Join(parts[1:], "/")
		key = strings.Trim(key, "/")
		if key == "" {
			return scheme + "://" + bucket, nil
		}
		return scheme + "://" + bucket + "/" + key, nil
	}

	if !strings.HasPrefix(uri, "/") {
		return "", fmt.Errorf("local uri %q must be absolute: %w", uri, common.ErrInvalidURI)
	}
	clean := "/" + common.NormalizePath(uri)
	return clean, nil
}

// IsSchemeRoot reports whether uri is the root of its scheme (the
// local filesystem root "/", or an object URI with no key component).
func IsSchemeRoot(uri string) bool {
	if SchemeOf(uri) == SchemeObject {
		return !strings.Contains(strings.SplitN(uri, "://", 2)[1], "/")
	}
	return uri == "/"
}

// Parent returns the parent of uri. Total except at the scheme root,
// where ok is false.
func Parent(uri string) (parent string, ok bool) {
	if IsSchemeRoot(uri) {
		return "", false
	}
	switch SchemeOf(uri) {
	case SchemeObject:
		idx := strings.Index(uri, "://")
		scheme := uri[:idx]
		rest := uri[idx+3:]
		slash := strings.LastIndex(rest, "/")
		if slash < 0 {
			return "", false
		}
		bucket := rest[:slash]
		key := rest[slash+1:]
		remainder := strings.TrimSuffix(rest, "/"+key)
		if remainder == bucket {
			return scheme + "://" + bucket, true
		}
		return scheme + "://" + remainder, true
	default:
		rel := strings.TrimPrefix(uri, "/")
		p := common.ParentPath(rel)
		return "/" + p, true
	}
}

// IsAncestor reports whether ancestor is equal to uri or a
// "/"-boundary prefix of it.
func IsAncestor(ancestor, uri string) bool {
	if ancestor == uri {
		return true
	}
	prefix := ancestor
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(uri, prefix)
}

// RelativeSuffix returns uri's suffix relative to ancestor ("." if
// equal), assuming IsAncestor(ancestor, uri). ok is false otherwise.
func RelativeSuffix(ancestor, uri string) (suffix string, ok bool) {
	if !IsAncestor(ancestor, uri) {
		return "", false
	}
	if ancestor == uri {
		return ".", true
	}
	prefix := ancestor
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.TrimPrefix(uri, prefix), true
}

// Depth returns the number of path components separating uri from its
// scheme root (root = 0).
func Depth(uri string) int {
	d := 0
	cur := uri
	for {
		p, ok := Parent(cur)
		if !ok {
			return d
		}
		d++
		cur = p
	}
}

// Join appends a single path component to a canonical URI.
func Join(uri, component string) string {
	if SchemeOf(uri) == SchemeObject {
		return uri + "/" + component
	}
	if uri == "/" {
		return "/" + component
	}
	return uri + "/" + component
}
