package probe

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/latentloop/diskindex/internal/model"
)

// ObjectEntry is one key listed beneath a bucket/prefix.
type ObjectEntry struct {
	Key   string // full key, no leading slash
	Size  int64
	Mtime int64
}

// ObjectLister enumerates keys under a bucket/prefix. Production
// backends (S3, GCS, ...) satisfy this out-of-tree; the core only
// depends on this interface, never a specific cloud SDK.
type ObjectLister interface {
	List(ctx context.Context, bucket, prefix string) ([]ObjectEntry, error)
}

// Object probes an object-store bucket/prefix, synthesizing
// directories from common key prefixes: there are no real directory
// objects, only keys, so every "/"-separated path component that
// isn't itself a leaf key becomes a synthetic dir entry.
type Object struct {
	Lister ObjectLister
}

var _ Source = Object{}

func (o Object) Run(ctx context.Context, uri string, opts Options) (*Stream, error) {
	root, err := model.Canonicalize(uri)
	if err != nil {
		return nil, err
	}
	bucket, prefix, err := splitObjectURI(root)
	if err != nil {
		return nil, err
	}

	entries := make(chan RawEntry, 256)
	errs := make(chan PathError, 8)
	done := make(chan error, 1)
	progress := &Progress{}

	matcher := newExcludeMatcher(opts.ExcludeGlobs)

	go func() {
		defer close(entries)
		defer close(errs)

		listed, listErr := o.Lister.List(ctx, bucket, prefix)
		if listErr != nil {
			done <- fmt.Errorf("listing %s: %w", root, listErr)
			close(done)
			return
		}

		tree := buildKeyTree(listed)
		walkKeyTree(ctx, tree, root, "", matcher, func(e RawEntry) {
			select {
			case entries <- e:
				progress.Inc()
			case <-ctx.Done():
			}
		})
		done <- nil
		close(done)
	}()

	return &Stream{Entries: entries, Errors: errs, Progress: progress, Done: done}, nil
}

func splitObjectURI(uri string) (bucket, prefix string, err error) {
	idx := strings.Index(uri, "://")
	if idx < 0 {
		return "", "", fmt.Errorf("not an object uri: %s", uri)
	}
	rest := strings.TrimPrefix(uri[idx+3:], "")
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = parts[1]
	}
	return bucket, prefix, nil
}

// keyNode is a synthesized tree node built from key-lexical listings.
type keyNode struct {
	name     string
	isLeaf   bool
	size     int64
	mtime    int64
	children map[string]*keyNode
	order    []string
}

func newKeyNode(name string) *keyNode {
	return &keyNode{name: name, children: make(map[string]*keyNode)}
}

func (n *keyNode) child(name string) *keyNode {
	if c, ok := n.children[name]; ok {
		return c
	}
	c := newKeyNode(name)
	n.children[name] = c
	n.order = append(n.order, name)
	return c
}

// buildKeyTree groups object-store keys by "/"-separated component
// into a synthesized directory tree: directories are synthesized from
// key prefixes, not stored as real objects.
func buildKeyTree(listed []ObjectEntry) *keyNode {
	root := newKeyNode("")
	for _, e := range listed {
		key := strings.Trim(e.Key, "/")
		if key == "" {
			continue
		}
		parts := strings.Split(key, "/")
		cur := root
		for i, part := range parts {
			cur = cur.child(part)
			if i == len(parts)-1 {
				cur.isLeaf = true
				cur.size = e.Size
				cur.mtime = e.Mtime
			}
		}
	}
	return root
}

// walkKeyTree emits entries depth-first, children before parent,
// matching the local probe's bottom-up ordering so the Aggregator's
// buffering path can treat both sources uniformly. relPath is the
// "/"-joined path from the scan root, used for exclude matching.
func walkKeyTree(ctx context.Context, n *keyNode, uri, relPath string, matcher *excludeMatcher, emit func(RawEntry)) (size int64, mtime int64) {
	if ctx.Err() != nil {
		return 0, 0
	}
	if n.isLeaf && len(n.children) == 0 {
		emit(RawEntry{URI: uri, Kind: model.KindFile, Size: n.size, Mtime: n.mtime})
		return n.size, n.mtime
	}

	names := append([]string(nil), n.order...)
	sort.Strings(names)

	var totalSize int64
	var maxMtime int64
	for _, name := range names {
		child := n.children[name]
		childURI := model.Join(uri, name)
		childRel := name
		if relPath != "" {
			childRel = relPath + "/" + name
		}
		if matcher.excluded(childRel, len(child.children) > 0 || !child.isLeaf) {
			continue
		}
		cs, cm := walkKeyTree(ctx, child, childURI, childRel, matcher, emit)
		totalSize += cs
		if cm > maxMtime {
			maxMtime = cm
		}
	}

	if n.isLeaf {
		// A key that is simultaneously a leaf object and a prefix of
		// other keys (e.g. both "a/b" and "a/b/c" exist) is emitted
		// only as the synthesized directory, not also as a file. Its
		// own bytes count toward this function's returned total and
		// its mtime toward the emitted entry's Mtime, but the entry
		// carries Size 0 and the Aggregator sizes a directory from its
		// children alone, so those bytes are not part of the
		// directory's rolled-up Size. A node is either a
		// file or a directory, never both, so emitting a second entry
		// for the same URI here would double-count it in the parent's
		// rollup and clobber the aggregator's per-URI accumulator.
		totalSize += n.size
		if n.mtime > maxMtime {
			maxMtime = n.mtime
		}
	}

	emit(RawEntry{URI: uri, Kind: model.KindDir, Size: 0, Mtime: maxMtime})
	return totalSize, maxMtime
}
