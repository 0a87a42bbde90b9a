package probe

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latentloop/diskindex/internal/model"
)

func requireFind(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("find"); err != nil {
		t.Skip("find binary not available")
	}
}

func TestLocalSubprocessWalksTreeBottomUp(t *testing.T) {
	requireFind(t)
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b", "leaf.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.txt"), []byte("hi"), 0o644))

	stream, err := LocalSubprocess{}.Run(context.Background(), dir, Options{})
	require.NoError(t, err)

	entries, errs := collect(t, stream)
	assert.Empty(t, errs)

	byPath := byURI(entries)
	leafURI := model.Join(model.Join(model.Join(dir, "a"), "b"), "leaf.txt")
	require.Contains(t, byPath, leafURI)
	assert.Equal(t, model.KindFile, byPath[leafURI].Kind)
	assert.Equal(t, int64(5), byPath[leafURI].Size)

	require.Contains(t, byPath, dir)
	assert.Equal(t, model.KindDir, byPath[dir].Kind)

	bURI := model.Join(model.Join(dir, "a"), "b")
	require.Contains(t, byPath, bURI)
	assert.Equal(t, model.KindDir, byPath[bURI].Kind)

	// find -depth visits a directory's contents before the directory
	// itself, so the Aggregator's bottom-up rollup sees every child
	// before its parent, the same guarantee LocalNative provides.
	idx := make(map[string]int, len(entries))
	for i, e := range entries {
		idx[e.URI] = i
	}
	assert.Less(t, idx[leafURI], idx[bURI])
	assert.Less(t, idx[bURI], idx[dir])
}

func TestLocalSubprocessExcludeGlobsSkipsMatchedSubtree(t *testing.T) {
	requireFind(t)
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "pkg", "x.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("keep"), 0o644))

	stream, err := LocalSubprocess{}.Run(context.Background(), dir, Options{ExcludeGlobs: []string{"node_modules/"}})
	require.NoError(t, err)

	entries, errs := collect(t, stream)
	assert.Empty(t, errs)

	byPath := byURI(entries)
	assert.Contains(t, byPath, model.Join(dir, "keep.txt"))
	assert.NotContains(t, byPath, model.Join(model.Join(dir, "node_modules"), "pkg"))
}

func TestSelectFallsBackToLocalSubprocessWithoutBlockAccounting(t *testing.T) {
	orig := blockAccounting
	t.Cleanup(func() { blockAccounting = orig })

	blockAccounting = false
	assert.IsType(t, LocalSubprocess{}, Select("/some/path", nil))

	blockAccounting = true
	assert.IsType(t, LocalNative{}, Select("/some/path", nil))
}

func TestSelectAlwaysPicksObjectForObjectScheme(t *testing.T) {
	orig := blockAccounting
	t.Cleanup(func() { blockAccounting = orig })

	for _, b := range []bool{true, false} {
		blockAccounting = b
		assert.IsType(t, Object{}, Select("s3://bucket/prefix", nil))
	}
}
