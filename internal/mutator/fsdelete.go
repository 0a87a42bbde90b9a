package mutator

import (
	"fmt"
	"os"
	"path/filepath"
)

// deleteTree removes root (file or directory), continuing past
// per-path failures rather than aborting the whole operation. Children
// are removed before their parent directory, mirroring the Probe's
// bottom-up ordering.
func deleteTree(root string) []string {
	info, err := os.Lstat(root)
	if err != nil {
		return []string{fmt.Sprintf("%s: %v", root, err)}
	}
	if !info.IsDir() {
		if err := os.Remove(root); err != nil {
			return []string{fmt.Sprintf("%s: %v", root, err)}
		}
		return nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return []string{fmt.Sprintf("%s: %v", root, err)}
	}

	var errs []string
	for _, e := range entries {
		errs = append(errs, deleteTree(filepath.Join(root, e.Name()))...)
	}
	if err := os.Remove(root); err != nil {
		errs = append(errs, fmt.Sprintf("%s: %v", root, err))
	}
	return errs
}
