// Package blobstore persists Snapshots as immutable, content-addressed
// ".dtb" blob files with depth and prefix pushdown.
package blobstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/latentloop/diskindex/internal/common"
	"github.com/latentloop/diskindex/internal/model"
)

var errCorrupt = common.ErrBlobCorrupt

// Store manages .dtb files under a single directory. Writes go to a
// temp file and are renamed into place; a flock guards a blob's
// rename against a concurrent GC delete of the same blob_id.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(blobID string) string {
	return filepath.Join(s.dir, blobID+".dtb")
}

func (s *Store) lockPath(blobID string) string {
	return filepath.Join(s.dir, "."+blobID+".lock")
}

// Put serializes snap into a new blob and returns its id. Nodes must
// already be ordered ascending by depth (aggregator.Aggregate's
// contract).
func (s *Store) Put(snap *model.Snapshot) (blobID string, err error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating blob dir: %w", err)
	}

	maxDepth := 0
	for _, n := range snap.Nodes {
		if n.Depth > maxDepth {
			maxDepth = n.Depth
		}
	}
	byDepth := make([][]model.Node, maxDepth+1)
	for _, n := range snap.Nodes {
		byDepth[n.Depth] = append(byDepth[n.Depth], n)
	}

	runs := make([]runInfo, maxDepth+1)
	runBytes := make([][]byte, maxDepth+1)
	offset := uint64(headerByteLen(maxDepth + 1))
	for d := 0; d <= maxDepth; d++ {
		encoded := encodeRun(byDepth[d])
		runBytes[d] = encoded
		runs[d] = runInfo{
			rowCount: uint32(len(byDepth[d])),
			offset:   offset,
			length:   uint64(len(encoded)),
		}
		offset += uint64(len(encoded))
	}

	tmp, err := os.CreateTemp(s.dir, "*.dtb.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	if err = writeHeader(tmp, header{version: formatVersion, maxDepth: uint32(maxDepth), runs: runs}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing dtb header: %w", err)
	}
	for _, rb := range runBytes {
		if _, err = tmp.Write(rb); err != nil {
			tmp.Close()
			return "", fmt.Errorf("writing dtb run: %w", err)
		}
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing blob: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("closing blob: %w", err)
	}

	blobID = uuid.NewString()
	lk := flock.New(s.lockPath(blobID))
	if lerr := lk.Lock(); lerr != nil {
		err = fmt.Errorf("locking blob %s: %w", blobID, lerr)
		return "", err
	}
	defer lk.Unlock()

	if err = os.Rename(tmpPath, s.path(blobID)); err != nil {
		return "", fmt.Errorf("renaming blob into place: %w", err)
	}
	return blobID, nil
}

// Delete removes a blob, guarded by the same flock Put uses so an
// in-flight rename into that blob_id (which never happens, ids are
// unique per Put, but a concurrent GC sweep could race another GC
// sweep) can't interleave with it.
func (s *Store) Delete(blobID string) error {
	lk := flock.New(s.lockPath(blobID))
	if err := lk.Lock(); err != nil {
		return fmt.Errorf("locking blob %s: %w", blobID, err)
	}
	defer lk.Unlock()
	defer os.Remove(s.lockPath(blobID))

	if err := os.Remove(s.path(blobID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("blob %s: %w", blobID, common.ErrNotFound)
		}
		return err
	}
	return nil
}

// Open returns a Reader over blobID's nodes.
func (s *Store) Open(blobID string) (*Reader, error) {
	f, err := os.Open(s.path(blobID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", blobID, common.ErrNotFound)
		}
		return nil, err
	}
	h, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blob %s: %w", blobID, err)
	}
	return &Reader{f: f, h: h}, nil
}

// Reader supports pushdown reads over one blob. Callers must Close it.
type Reader struct {
	f *os.File
	h header
}

func (r *Reader) Close() error { return r.f.Close() }

func (r *Reader) MaxDepth() int { return int(r.h.maxDepth) }

// All materializes every node in the blob.
func (r *Reader) All() ([]model.Node, error) {
	return r.DepthLE(r.MaxDepth())
}

// DepthLE decodes only runs 0..k, never touching bytes belonging to
// deeper runs.
func (r *Reader) DepthLE(k int) ([]model.Node, error) {
	if k > r.MaxDepth() {
		k = r.MaxDepth()
	}
	var nodes []model.Node
	for d := 0; d <= k; d++ {
		rn, err := decodeRun(r.f, r.h.runs[d], d)
		if err != nil {
			return nil, fmt.Errorf("%w: depth %d", err, d)
		}
		nodes = append(nodes, rn...)
	}
	return nodes, nil
}

// UriPrefix scans every run's uri column to find matching rows, then
// fully decodes only those rows' runs. Every run in the blob must be
// consulted since a prefix match can occur at any depth, but each
// run's non-uri columns are skipped until a match in that run is
// confirmed.
func (r *Reader) UriPrefix(prefix string) ([]model.Node, error) {
	var matched []model.Node
	for d, run := range r.h.runs {
		uris, err := readURIColumnOnly(r.f, run)
		if err != nil {
			return nil, fmt.Errorf("%w: depth %d", err, d)
		}
		hasMatch := false
		for _, u := range uris {
			if matchesPrefix(prefix, u) {
				hasMatch = true
				break
			}
		}
		if !hasMatch {
			continue
		}
		full, err := decodeRun(r.f, run, d)
		if err != nil {
			return nil, fmt.Errorf("%w: depth %d", err, d)
		}
		for _, n := range full {
			if matchesPrefix(prefix, n.URI) {
				matched = append(matched, n)
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Depth < matched[j].Depth })
	return matched, nil
}

func matchesPrefix(prefix, uri string) bool {
	if uri == prefix {
		return true
	}
	p := prefix
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return strings.HasPrefix(uri, p)
}

// BlobPath exposes the on-disk path for diagnostics (e.g. GC
// logging); not part of the store's read/write contract.
func (s *Store) BlobPath(blobID string) string { return s.path(blobID) }
