package probe

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/latentloop/diskindex/internal/common"
	"github.com/latentloop/diskindex/internal/model"
)

// LocalSubprocess shells out to `find -depth -printf` as a fallback
// for platforms where syscall.Stat_t.Blocks isn't available. The
// -depth flag makes find visit a directory's contents before the
// directory itself, the same bottom-up order LocalNative walks in, so
// the Aggregator's single-pass rollup sees every child before its
// parent. It reports logical size, not allocated size: the caller is
// expected to prefer LocalNative wherever block-accurate sizing is
// available and fall back to this only when it isn't.
type LocalSubprocess struct{}

var _ Source = LocalSubprocess{}

// findFormat produces one TSV line per entry: kind, size, mtime, path.
// %y is the entry type (d/f/l/...), %s logical size in bytes, %T@
// mtime as seconds.fraction since epoch, %p the path.
const findFormat = "%y\t%s\t%T@\t%p\n"

func (LocalSubprocess) Run(ctx context.Context, uri string, opts Options) (*Stream, error) {
	root, err := model.Canonicalize(uri)
	if err != nil {
		return nil, err
	}
	rootPath := root

	args := []string{rootPath}
	if !opts.FollowSymlinks {
		args = append([]string{"-P"}, args...)
	} else {
		args = append([]string{"-L"}, args...)
	}
	args = append(args, "-depth", "-printf", findFormat)

	cmd := exec.CommandContext(ctx, "find", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("starting find: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("starting find: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting find: %w", err)
	}

	entries := make(chan RawEntry, 256)
	errs := make(chan PathError, 64)
	done := make(chan error, 1)
	progress := &Progress{}
	matcher := newExcludeMatcher(opts.ExcludeGlobs)

	go func() {
		defer close(errs)
		drainFindStderr(ctx, stderr, errs)
	}()

	go func() {
		defer close(entries)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		sawRoot := false
		for scanner.Scan() {
			if ctx.Err() != nil {
				break
			}
			entry, relPath, isDir, ok := parseFindLine(scanner.Text(), rootPath)
			if !ok {
				continue
			}
			if entry.URI == rootPath {
				sawRoot = true
			}
			if matcher.excluded(relPath, isDir) {
				continue
			}
			select {
			case entries <- entry:
				progress.Inc()
			case <-ctx.Done():
			}
		}

		// find exits non-zero when any path below the root was
		// unreadable; those are already reported on errs, so the exit
		// status is fatal only when the root itself was never listed.
		waitErr := cmd.Wait()
		if waitErr != nil && ctx.Err() == nil && !sawRoot {
			done <- fmt.Errorf("find exited: %w", waitErr)
		} else {
			done <- nil
		}
		close(done)
	}()

	return &Stream{Entries: entries, Errors: errs, Progress: progress, Done: done}, nil
}

// parseFindLine turns one -printf line into a RawEntry plus the
// root-relative path used for exclude matching. Directory symlinks
// ("l" entries pointing at directories) aren't distinguishable from
// this output alone, so symlinks are reported as files; good enough
// for the fallback path, which trades precision for portability.
func parseFindLine(line, rootPath string) (entry RawEntry, relPath string, isDir bool, ok bool) {
	parts := strings.SplitN(line, "\t", 4)
	if len(parts) != 4 {
		return RawEntry{}, "", false, false
	}
	kindCh, sizeStr, mtimeStr, path := parts[0], parts[1], parts[2], parts[3]

	kind := model.KindFile
	if kindCh == "d" {
		kind = model.KindDir
		isDir = true
	} else if kindCh != "f" && kindCh != "l" {
		return RawEntry{}, "", false, false
	}

	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return RawEntry{}, "", false, false
	}
	mtimeFloat, err := strconv.ParseFloat(mtimeStr, 64)
	if err != nil {
		return RawEntry{}, "", false, false
	}

	suffix, _ := common.RelativeSuffix(rootPath, path)
	if suffix == "." {
		suffix = ""
	}
	uri := path
	if suffix != "" {
		uri = rootPath + "/" + suffix
	} else {
		uri = rootPath
	}

	return RawEntry{URI: uri, Kind: kind, Size: size, Mtime: int64(mtimeFloat)}, suffix, isDir, true
}

func drainFindStderr(ctx context.Context, r interface{ Read([]byte) (int, error) }, errs chan<- PathError) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case errs <- PathError{URI: "", Err: fmt.Errorf("find: %s: %w", line, common.ErrSourcePermission)}:
		case <-ctx.Done():
			return
		}
	}
}
