package probe

import (
	ignore "github.com/sabhiram/go-gitignore"
)

// excludeMatcher evaluates probe_exclude_globs against paths relative
// to the scan root. Patterns use gitignore syntax, fed from static
// config globs rather than a tree of .gitignore files.
type excludeMatcher struct {
	ignore *ignore.GitIgnore
}

func newExcludeMatcher(globs []string) *excludeMatcher {
	if len(globs) == 0 {
		return nil
	}
	return &excludeMatcher{ignore: ignore.CompileIgnoreLines(globs...)}
}

// excluded reports whether relPath (slash-separated, root-relative,
// no leading slash) should be skipped. Directories are checked with a
// trailing slash so directory-only glob patterns ("build/") match.
func (m *excludeMatcher) excluded(relPath string, isDir bool) bool {
	if m == nil || relPath == "" {
		return false
	}
	checkPath := relPath
	if isDir {
		checkPath += "/"
	}
	return m.ignore.MatchesPath(checkPath)
}
