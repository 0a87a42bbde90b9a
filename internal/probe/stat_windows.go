//go:build windows

package probe

import "io/fs"

// hasBlockAccounting is false on Windows: os.FileInfo has no portable
// block-count equivalent here, so Select falls back to LocalSubprocess.
const hasBlockAccounting = false

// allocatedSize has no portable block-count equivalent on Windows via
// os.FileInfo; callers needing accurate sparse-file accounting there
// should use the local-subprocess variant instead. This falls back to
// logical size.
func allocatedSize(fi fs.FileInfo) int64 {
	if fi.IsDir() {
		return 0
	}
	return fi.Size()
}

func inodeKeyOf(path string) (inodeKey, bool) {
	return inodeKey{}, false
}
