package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/latentloop/diskindex/internal/common"
	"github.com/latentloop/diskindex/internal/model"
	"github.com/latentloop/diskindex/internal/util"
)

// LocalNative walks a local directory tree directly, reporting
// allocated size (block-count x 512) rather than logical length, so
// sparse files are accounted accurately. Depth-first, one entry per
// inode, directories reported after their children.
type LocalNative struct{}

var _ Source = LocalNative{}

func (LocalNative) Run(ctx context.Context, uri string, opts Options) (*Stream, error) {
	root, err := model.Canonicalize(uri)
	if err != nil {
		return nil, err
	}
	rootPath := filepath.FromSlash(root)

	info, statErr := os.Lstat(rootPath)
	if statErr != nil {
		return nil, fatalStatError(root, statErr)
	}
	if info.Mode()&os.ModeSymlink != 0 && opts.FollowSymlinks {
		info, statErr = os.Stat(rootPath)
		if statErr != nil {
			return nil, fatalStatError(root, statErr)
		}
	}

	entries := make(chan RawEntry, 256)
	errs := make(chan PathError, 64)
	done := make(chan error, 1)
	progress := &Progress{}

	matcher := newExcludeMatcher(opts.ExcludeGlobs)

	go func() {
		defer close(entries)
		defer close(errs)

		w := &walker{
			ctx:      ctx,
			opts:     opts,
			entries:  entries,
			errs:     errs,
			progress: progress,
			matcher:  matcher,
			seen:     make(map[inodeKey]struct{}),
		}
		w.walk(rootPath, root, "")
		done <- nil
		close(done)
	}()

	return &Stream{Entries: entries, Errors: errs, Progress: progress, Done: done}, nil
}

type inodeKey struct {
	dev, ino uint64
}

type walker struct {
	ctx      context.Context
	opts     Options
	entries  chan<- RawEntry
	errs     chan<- PathError
	progress *Progress
	matcher  *excludeMatcher

	mu   sync.Mutex
	seen map[inodeKey]struct{}
}

// walk reports the node at diskPath (uri: its canonical URI, relPath:
// slash-separated path from the scan root used for exclude matching)
// and recurses into directories. It never returns an error: failures
// below the root are routed to w.errs and the subtree is skipped.
func (w *walker) walk(diskPath, uri, relPath string) {
	if w.ctx.Err() != nil {
		return
	}

	lst, err := w.lstatRetrying(diskPath)
	if err != nil {
		w.reportErr(uri, err)
		return
	}

	statPath := diskPath
	mode := lst.Mode()
	if mode&os.ModeSymlink != 0 {
		if !w.opts.FollowSymlinks {
			return
		}
		target, err := os.Stat(diskPath)
		if err != nil {
			w.reportErr(uri, err)
			return
		}
		if target.IsDir() {
			// Following directory symlinks risks cycles; treat as a
			// leaf sized by the link stat itself.
			w.emit(uri, model.KindFile, allocatedSize(lst), lst.ModTime().Unix())
			return
		}
		statPath = diskPath
		lst = target
	}

	if w.opts.DedupeByInode && !lst.IsDir() {
		if key, ok := inodeKeyOf(statPath); ok {
			w.mu.Lock()
			_, dup := w.seen[key]
			if !dup {
				w.seen[key] = struct{}{}
			}
			w.mu.Unlock()
			if dup {
				return
			}
		}
	}

	if !lst.IsDir() {
		w.emit(uri, model.KindFile, allocatedSize(lst), lst.ModTime().Unix())
		return
	}

	children, err := w.readDirRetrying(diskPath)
	if err != nil {
		w.reportErr(uri, err)
		return
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name() < children[j].Name() })

	for _, c := range children {
		if w.ctx.Err() != nil {
			return
		}
		childRel := c.Name()
		if relPath != "" {
			childRel = relPath + "/" + c.Name()
		}
		if w.matcher.excluded(childRel, c.IsDir()) {
			continue
		}
		w.walk(filepath.Join(diskPath, c.Name()), model.Join(uri, c.Name()), childRel)
	}

	// Directories are reported after their children so the Aggregator
	// can buffer a single open directory's state at a time. The dir's
	// own mtime is that of the directory inode, not a rollup.
	w.emit(uri, model.KindDir, allocatedSize(lst), lst.ModTime().Unix())
}

func (w *walker) emit(uri string, kind model.Kind, size int64, mtime int64) {
	select {
	case w.entries <- RawEntry{URI: uri, Kind: kind, Size: size, Mtime: mtime}:
		w.progress.Inc()
	case <-w.ctx.Done():
	}
}

func (w *walker) reportErr(uri string, err error) {
	wrapped := classifyFSError(err)
	log.Debugf("[Probe] %s: %v", uri, wrapped)
	select {
	case w.errs <- PathError{URI: uri, Err: wrapped}:
	case <-w.ctx.Done():
	}
}

func classifyFSError(err error) error {
	if errors.Is(err, common.ErrSourcePermission) || errors.Is(err, common.ErrSourceTransient) {
		return err // already classified, e.g. by a retrying caller
	}
	if os.IsPermission(err) {
		return common.ErrSourcePermission
	}
	if os.IsNotExist(err) {
		// A path that vanished between directory listing and stat is
		// a transient race, not a permanent not-found.
		return common.ErrSourceTransient
	}
	return common.ErrSourceTransient
}

// lstatRetrying retries a transient Lstat failure with capped backoff
// before the caller records it as a per-path error.
func (w *walker) lstatRetrying(path string) (os.FileInfo, error) {
	return util.RetryWithResult(w.ctx, func() (os.FileInfo, error) {
		info, err := os.Lstat(path)
		if err != nil {
			return info, classifyFSError(err)
		}
		return info, nil
	}, util.ProbeRetryOptions(w.ctx)...)
}

func (w *walker) readDirRetrying(path string) ([]os.DirEntry, error) {
	return util.RetryWithResult(w.ctx, func() ([]os.DirEntry, error) {
		entries, err := os.ReadDir(path)
		if err != nil {
			return entries, classifyFSError(err)
		}
		return entries, nil
	}, util.ProbeRetryOptions(w.ctx)...)
}

func fatalStatError(uri string, err error) error {
	if os.IsPermission(err) {
		return common.ErrSourcePermission
	}
	if os.IsNotExist(err) {
		return common.ErrNotFound
	}
	return err
}
