package common

import "errors"

// Taxonomy of sentinel errors returned by the core components. Callers
// match with errors.Is; the external API surface maps these back to a
// short "kind" string via Kind.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	ErrInvalidURI        = errors.New("invalid uri")
	ErrSourcePermission  = errors.New("source permission denied")
	ErrSourceTransient   = errors.New("transient source error")
	ErrBlobCorrupt       = errors.New("blob corrupt")
	ErrCatalogConflict   = errors.New("catalog conflict")
	ErrAborted           = errors.New("aborted")
	ErrInternal          = errors.New("internal error")
)

// Kind maps err back to its taxonomy name, for error bodies on the
// external API surface ({error: message, kind: enum}). Returns
// "internal" for unrecognized errors.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnsupportedScheme):
		return "unsupported_scheme"
	case errors.Is(err, ErrInvalidURI):
		return "invalid_uri"
	case errors.Is(err, ErrSourcePermission):
		return "source_permission"
	case errors.Is(err, ErrSourceTransient):
		return "source_transient"
	case errors.Is(err, ErrBlobCorrupt):
		return "blob_corrupt"
	case errors.Is(err, ErrCatalogConflict):
		return "catalog_conflict"
	case errors.Is(err, ErrAborted):
		return "aborted"
	default:
		return "internal"
	}
}
