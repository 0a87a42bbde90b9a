//go:build !windows

package probe

import (
	"io/fs"
	"syscall"
)

// hasBlockAccounting is true wherever syscall.Stat_t exposes a block
// count, so Select can prefer LocalNative's accurate sparse-file
// sizing over the LocalSubprocess fallback.
const hasBlockAccounting = true

// allocatedSize returns block-count x 512, the disk usage the OS
// actually reserves for the file, in contrast to fi.Size() which is
// the logical (possibly sparse) length.
func allocatedSize(fi fs.FileInfo) int64 {
	if fi.IsDir() {
		return 0
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return st.Blocks * 512
	}
	return fi.Size()
}

func inodeKeyOf(path string) (inodeKey, bool) {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return inodeKey{}, false
	}
	return inodeKey{dev: uint64(st.Dev), ino: st.Ino}, true
}
