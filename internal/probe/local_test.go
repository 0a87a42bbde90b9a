package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latentloop/diskindex/internal/model"
)

func collect(t *testing.T, stream *Stream) ([]RawEntry, []PathError) {
	t.Helper()
	var entries []RawEntry
	var errs []PathError
	for stream.Entries != nil || stream.Errors != nil {
		select {
		case e, ok := <-stream.Entries:
			if !ok {
				stream.Entries = nil
				continue
			}
			entries = append(entries, e)
		case e, ok := <-stream.Errors:
			if !ok {
				stream.Errors = nil
				continue
			}
			errs = append(errs, e)
		}
	}
	require.NoError(t, <-stream.Done)
	return entries, errs
}

func byURI(entries []RawEntry) map[string]RawEntry {
	m := make(map[string]RawEntry, len(entries))
	for _, e := range entries {
		m[e.URI] = e
	}
	return m
}

func TestLocalNativeWalksTreeBottomUp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b", "leaf.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.txt"), []byte("hi"), 0o644))

	stream, err := LocalNative{}.Run(context.Background(), dir, Options{})
	require.NoError(t, err)

	entries, errs := collect(t, stream)
	assert.Empty(t, errs)

	byPath := byURI(entries)
	leafURI := model.Join(model.Join(model.Join(dir, "a"), "b"), "leaf.txt")
	require.Contains(t, byPath, leafURI)
	assert.Equal(t, model.KindFile, byPath[leafURI].Kind)

	require.Contains(t, byPath, dir)
	assert.Equal(t, model.KindDir, byPath[dir].Kind)

	// Children must appear before the root in the stream, since the
	// Aggregator relies on depth-first, bottom-up ordering.
	rootIdx, leafIdx := -1, -1
	for i, e := range entries {
		if e.URI == dir {
			rootIdx = i
		}
		if e.URI == leafURI {
			leafIdx = i
		}
	}
	require.NotEqual(t, -1, rootIdx)
	require.NotEqual(t, -1, leafIdx)
	assert.Less(t, leafIdx, rootIdx)
}

func TestLocalNativeSparseFileReportsZeroAllocated(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sparse.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(1<<30)) // 1 GiB logical, 0 blocks allocated
	require.NoError(t, f.Close())

	stream, err := LocalNative{}.Run(context.Background(), dir, Options{})
	require.NoError(t, err)
	entries, errs := collect(t, stream)
	assert.Empty(t, errs)

	byPath := byURI(entries)
	uri := model.Join(dir, "sparse.bin")
	require.Contains(t, byPath, uri)
	assert.Equal(t, int64(0), byPath[uri].Size)
}

func TestLocalNativeExcludeGlobsSkipsMatchedSubtree(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "pkg", "x.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))

	stream, err := LocalNative{}.Run(context.Background(), dir, Options{ExcludeGlobs: []string{"node_modules/"}})
	require.NoError(t, err)
	entries, _ := collect(t, stream)

	byPath := byURI(entries)
	assert.Contains(t, byPath, model.Join(dir, "main.go"))
	assert.NotContains(t, byPath, model.Join(model.Join(dir, "node_modules"), "pkg"))
}

func TestLocalNativePermissionDeniedIsRecordedNotFatal(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks are meaningless running as root")
	}
	t.Parallel()

	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.MkdirAll(blocked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.txt"), []byte("ok"), 0o644))

	stream, err := LocalNative{}.Run(context.Background(), dir, Options{})
	require.NoError(t, err)
	entries, errs := collect(t, stream)

	byPath := byURI(entries)
	assert.Contains(t, byPath, model.Join(dir, "ok.txt"))
	require.NotEmpty(t, errs)
	assert.Equal(t, model.Join(dir, "blocked"), errs[0].URI)
}

func TestLocalNativeDedupeByInodeCountsHardlinkOnce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	original := filepath.Join(dir, "orig.txt")
	linked := filepath.Join(dir, "linked.txt")
	require.NoError(t, os.WriteFile(original, []byte("shared"), 0o644))
	if err := os.Link(original, linked); err != nil {
		t.Skipf("hard links unsupported: %v", err)
	}

	stream, err := LocalNative{}.Run(context.Background(), dir, Options{DedupeByInode: true})
	require.NoError(t, err)
	entries, _ := collect(t, stream)

	count := 0
	for _, e := range entries {
		if e.Kind == model.KindFile {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestProgressSample(t *testing.T) {
	t.Parallel()
	p := &Progress{}
	p.Inc()
	p.Inc()
	assert.Equal(t, int64(2), p.Items())

	first := p.Sample()
	assert.Zero(t, first)

	time.Sleep(10 * time.Millisecond)
	p.Inc()
	second := p.Sample()
	assert.GreaterOrEqual(t, second, 0.0)
}
