package planner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latentloop/diskindex/internal/blobstore"
	"github.com/latentloop/diskindex/internal/catalog"
	"github.com/latentloop/diskindex/internal/model"
)

func strPtr(s string) *string { return &s }

func newTestPlanner(t *testing.T) (*Planner, *blobstore.Store, *catalog.DB) {
	t.Helper()
	dir := t.TempDir()
	store := blobstore.New(filepath.Join(dir, "blobs"))
	cat, err := catalog.Open(filepath.Join(dir, "catalog.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	return New(cat, store), store, cat
}

func putScan(t *testing.T, store *blobstore.Store, cat *catalog.DB, completedAt time.Time, nodes []model.Node) model.ScanRecord {
	t.Helper()
	var root model.Node
	for _, n := range nodes {
		if n.Depth == 0 {
			root = n
		}
	}
	require.NotEmpty(t, root.URI, "nodes must include a depth-0 root")

	blobID, err := store.Put(&model.Snapshot{RootURI: root.URI, CompletedAt: completedAt, Nodes: nodes})
	require.NoError(t, err)

	rec, err := cat.Upsert(context.Background(), model.ScanRecord{
		RootURI:       root.URI,
		CompletedAt:   completedAt,
		BlobID:        blobID,
		RootSize:      root.Size,
		RootNChildren: root.NChildren,
		RootNDesc:     root.NDesc,
	})
	require.NoError(t, err)
	return rec
}

func viewRow(t *testing.T, v *model.View, path string) model.ViewNode {
	t.Helper()
	for _, r := range v.Rows {
		if r.Path == path {
			return r
		}
	}
	t.Fatalf("row %q not found in view rows", path)
	return model.ViewNode{}
}

// TestViewPatchesFresherChild reproduces spec's worked patch scenario:
// scan /A at t=100 (size=10, n_desc=9, child B size=3); later scan
// /A/B at t=200 (size=5, n_desc=12). view("/A", depth=1) must reflect
// the patched child and a recomputed root size of 10-3+5=12.
func TestViewPatchesFresherChild(t *testing.T) {
	p, store, cat := newTestPlanner(t)
	ctx := context.Background()

	aNodes := []model.Node{
		{URI: "/A", Kind: model.KindDir, Size: 10, Depth: 0, NChildren: 8, NDesc: 9},
		{URI: "/A/B", Kind: model.KindDir, Size: 3, Depth: 1, ParentURI: strPtr("/A"), NChildren: 1, NDesc: 1},
		{URI: "/A/B/b1", Kind: model.KindFile, Size: 3, Depth: 2, ParentURI: strPtr("/A/B")},
		{URI: "/A/other1", Kind: model.KindFile, Size: 1, Depth: 1, ParentURI: strPtr("/A")},
		{URI: "/A/other2", Kind: model.KindFile, Size: 1, Depth: 1, ParentURI: strPtr("/A")},
		{URI: "/A/other3", Kind: model.KindFile, Size: 1, Depth: 1, ParentURI: strPtr("/A")},
		{URI: "/A/other4", Kind: model.KindFile, Size: 1, Depth: 1, ParentURI: strPtr("/A")},
		{URI: "/A/other5", Kind: model.KindFile, Size: 1, Depth: 1, ParentURI: strPtr("/A")},
		{URI: "/A/other6", Kind: model.KindFile, Size: 1, Depth: 1, ParentURI: strPtr("/A")},
		{URI: "/A/other7", Kind: model.KindFile, Size: 1, Depth: 1, ParentURI: strPtr("/A")},
	}
	putScan(t, store, cat, time.Unix(100, 0), aNodes)

	bNodes := []model.Node{
		{URI: "/A/B", Kind: model.KindDir, Size: 5, Depth: 0, NChildren: 1, NDesc: 12},
	}
	putScan(t, store, cat, time.Unix(200, 0), bNodes)

	view, err := p.View(ctx, "/A", 1)
	require.NoError(t, err)

	assert.Equal(t, model.ViewStatusPartial, view.ScanStatus)
	assert.Equal(t, int64(12), view.Root.Size)

	b := viewRow(t, view, "B")
	assert.Equal(t, model.ScannedYes, b.Scanned)
	assert.Equal(t, int64(5), b.Size)
	assert.Equal(t, int32(12), b.NDesc)
}

// TestViewDepthZeroExcludesFresherChildRows reproduces the patch
// scenario from TestViewPatchesFresherChild but requests depth=0: the
// fresher /A/B scan must not inject a depth-1 row into the response,
// since rows are only ever allowed to hold depth <= depthLimit.
func TestViewDepthZeroExcludesFresherChildRows(t *testing.T) {
	p, store, cat := newTestPlanner(t)
	ctx := context.Background()

	aNodes := []model.Node{
		{URI: "/A", Kind: model.KindDir, Size: 10, Depth: 0, NChildren: 1, NDesc: 1},
		{URI: "/A/B", Kind: model.KindDir, Size: 3, Depth: 1, ParentURI: strPtr("/A"), NChildren: 0, NDesc: 0},
	}
	putScan(t, store, cat, time.Unix(100, 0), aNodes)

	bNodes := []model.Node{
		{URI: "/A/B", Kind: model.KindDir, Size: 5, Depth: 0, NChildren: 0, NDesc: 0},
	}
	putScan(t, store, cat, time.Unix(200, 0), bNodes)

	view, err := p.View(ctx, "/A", 0)
	require.NoError(t, err)

	for _, r := range view.Rows {
		assert.LessOrEqual(t, r.Depth, 0, "row %q at depth %d leaked past depthLimit=0", r.Path, r.Depth)
	}
	assert.Empty(t, view.Children)
	// The un-patched ancestor size is reported as-is, since re-rolling
	// is also gated on depthLimit >= 1.
	assert.Equal(t, int64(10), view.Root.Size)
}

// TestViewAncestorReroot covers spec's "ancestor re-root" scenario:
// only /home/u was scanned; view("/home/u/docs") must resolve that
// ancestor and rebase the response at docs.
func TestViewAncestorReroot(t *testing.T) {
	p, store, cat := newTestPlanner(t)
	ctx := context.Background()

	nodes := []model.Node{
		{URI: "/home/u", Kind: model.KindDir, Size: 20, Depth: 0, NChildren: 1, NDesc: 2},
		{URI: "/home/u/docs", Kind: model.KindDir, Size: 20, Depth: 1, ParentURI: strPtr("/home/u"), NChildren: 1, NDesc: 1},
		{URI: "/home/u/docs/f1", Kind: model.KindFile, Size: 20, Depth: 2, ParentURI: strPtr("/home/u/docs")},
	}
	putScan(t, store, cat, time.Unix(100, 0), nodes)

	view, err := p.View(ctx, "/home/u/docs", 2)
	require.NoError(t, err)

	assert.Equal(t, ".", view.Root.Path)
	assert.Equal(t, "/home/u/docs", view.Root.URI)
	assert.Equal(t, int64(20), view.Root.Size)
	require.Len(t, view.Children, 1)
	assert.Equal(t, "f1", view.Children[0].Path)
	assert.Equal(t, "/home/u", view.ScanPath)
}

func TestViewNoScanReturnsNone(t *testing.T) {
	p, _, _ := newTestPlanner(t)
	view, err := p.View(context.Background(), "/nowhere", 2)
	require.NoError(t, err)
	assert.Equal(t, model.ViewStatusNone, view.ScanStatus)
}

func TestViewAncestorPredatesTargetReturnsNone(t *testing.T) {
	p, store, cat := newTestPlanner(t)
	ctx := context.Background()

	nodes := []model.Node{
		{URI: "/A", Kind: model.KindDir, Size: 1, Depth: 0, NChildren: 1, NDesc: 1},
		{URI: "/A/x", Kind: model.KindFile, Size: 1, Depth: 1, ParentURI: strPtr("/A")},
	}
	putScan(t, store, cat, time.Unix(100, 0), nodes)

	view, err := p.View(ctx, "/A/not-there", 2)
	require.NoError(t, err)
	assert.Equal(t, model.ViewStatusNone, view.ScanStatus)
}

func TestViewFullStatusWhenScanRootMatchesTarget(t *testing.T) {
	p, store, cat := newTestPlanner(t)
	ctx := context.Background()

	nodes := []model.Node{
		{URI: "/A", Kind: model.KindDir, Size: 5, Depth: 0, NChildren: 1, NDesc: 1},
		{URI: "/A/x", Kind: model.KindFile, Size: 5, Depth: 1, ParentURI: strPtr("/A")},
	}
	putScan(t, store, cat, time.Unix(100, 0), nodes)

	view, err := p.View(ctx, "/A", 2)
	require.NoError(t, err)
	assert.Equal(t, model.ViewStatusFull, view.ScanStatus)
}

func TestViewIdempotentAcrossRepeatedCalls(t *testing.T) {
	p, store, cat := newTestPlanner(t)
	ctx := context.Background()

	nodes := []model.Node{
		{URI: "/A", Kind: model.KindDir, Size: 5, Depth: 0, NChildren: 2, NDesc: 2},
		{URI: "/A/x", Kind: model.KindFile, Size: 2, Depth: 1, ParentURI: strPtr("/A")},
		{URI: "/A/y", Kind: model.KindFile, Size: 3, Depth: 1, ParentURI: strPtr("/A")},
	}
	putScan(t, store, cat, time.Unix(100, 0), nodes)

	v1, err := p.View(ctx, "/A", 1)
	require.NoError(t, err)
	v2, err := p.View(ctx, "/A", 1)
	require.NoError(t, err)
	if diff := cmp.Diff(v1, v2); diff != "" {
		t.Errorf("view is not idempotent across repeated calls (-first +second):\n%s", diff)
	}
}

// TestCompareAddedRemovedUnchanged reproduces spec's compare worked
// example: scan A has a(10), b(20); scan B has b(20), c(5).
func TestCompareAddedRemovedUnchanged(t *testing.T) {
	p, store, cat := newTestPlanner(t)
	ctx := context.Background()

	aNodes := []model.Node{
		{URI: "/X", Kind: model.KindDir, Size: 30, Depth: 0, NChildren: 2, NDesc: 2},
		{URI: "/X/a", Kind: model.KindFile, Size: 10, Depth: 1, ParentURI: strPtr("/X")},
		{URI: "/X/b", Kind: model.KindFile, Size: 20, Depth: 1, ParentURI: strPtr("/X")},
	}
	recA := putScan(t, store, cat, time.Unix(100, 0), aNodes)

	bNodes := []model.Node{
		{URI: "/X", Kind: model.KindDir, Size: 25, Depth: 0, NChildren: 2, NDesc: 2},
		{URI: "/X/b", Kind: model.KindFile, Size: 20, Depth: 1, ParentURI: strPtr("/X")},
		{URI: "/X/c", Kind: model.KindFile, Size: 5, Depth: 1, ParentURI: strPtr("/X")},
	}
	recB := putScan(t, store, cat, time.Unix(200, 0), bNodes)

	result, err := p.Compare(ctx, "/X", recA.ID, recB.ID)
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)

	byPath := make(map[string]model.CompareRow)
	for _, r := range result.Rows {
		byPath[r.Path] = r
	}

	assert.Equal(t, model.CompareRemoved, byPath["a"].Status)
	assert.Equal(t, int64(-10), byPath["a"].SizeDelta)

	assert.Equal(t, model.CompareUnchanged, byPath["b"].Status)
	assert.Equal(t, int64(0), byPath["b"].SizeDelta)

	assert.Equal(t, model.CompareAdded, byPath["c"].Status)
	assert.Equal(t, int64(5), byPath["c"].SizeDelta)

	assert.Equal(t, int64(-5), result.TotalDelta)
}

func TestCompareNeitherScanCoversReturnsError(t *testing.T) {
	p, store, cat := newTestPlanner(t)
	ctx := context.Background()

	aNodes := []model.Node{
		{URI: "/X", Kind: model.KindDir, Size: 1, Depth: 0, NChildren: 0, NDesc: 0},
	}
	recA := putScan(t, store, cat, time.Unix(100, 0), aNodes)

	bNodes := []model.Node{
		{URI: "/Y", Kind: model.KindDir, Size: 1, Depth: 0, NChildren: 0, NDesc: 0},
	}
	recB := putScan(t, store, cat, time.Unix(100, 0), bNodes)

	_, err := p.Compare(ctx, "/Z", recA.ID, recB.ID)
	assert.Error(t, err)
}
