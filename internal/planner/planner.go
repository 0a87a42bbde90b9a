// Package planner answers view(uri, depth) and compare(uri, a, b): it
// consults the Catalog for the freshest covering scans, loads the
// relevant blob slices via BlobStore, and assembles a re-rooted,
// mixed-freshness View.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/latentloop/diskindex/internal/blobstore"
	"github.com/latentloop/diskindex/internal/catalog"
	"github.com/latentloop/diskindex/internal/common"
	"github.com/latentloop/diskindex/internal/model"
)

// Planner is the read-path over a Catalog and its BlobStore.
type Planner struct {
	catalog *catalog.DB
	blobs   *blobstore.Store
}

func New(cat *catalog.DB, blobs *blobstore.Store) *Planner {
	return &Planner{catalog: cat, blobs: blobs}
}

// View selects the freshest covering ancestor scan, slices out
// target's subtree, patches in fresher descendant scans, and derives
// an overall freshness status.
func (p *Planner) View(ctx context.Context, uri string, depthLimit int) (*model.View, error) {
	target, err := model.Canonicalize(uri)
	if err != nil {
		return nil, err
	}
	if depthLimit < 0 {
		depthLimit = 0
	}

	// Step 1: resolve the most recent covering ancestor scan.
	history, err := p.catalog.HistoryFor(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("resolving ancestor for %s: %w", target, err)
	}
	if len(history) == 0 {
		return &model.View{ScanStatus: model.ViewStatusNone}, nil
	}
	anc := history[0]

	reader, err := p.blobs.Open(anc.BlobID)
	if err != nil {
		return nil, fmt.Errorf("opening blob for scan %d: %w", anc.ID, err)
	}
	defer reader.Close()

	// Step 2: base slice.
	baseNodes, found, err := sliceTarget(reader, anc.RootURI, target, depthLimit)
	if err != nil {
		return nil, err
	}
	if !found {
		return &model.View{ScanStatus: model.ViewStatusNone}, nil
	}

	// Step 3: rebase onto target.
	rootScanned := anc.RootURI == target
	rows := rebase(baseNodes, target, rootScanned)

	rootIdx, ok := findByPath(rows, ".")
	if !ok {
		return nil, fmt.Errorf("%w: target %s missing from rebased slice", common.ErrInternal, target)
	}

	// Step 4: fresher-child patching, single level only.
	partial, err := patchFresherChildren(ctx, p.catalog, target, anc, &rows, rootIdx, depthLimit)
	if err != nil {
		return nil, err
	}

	// Step 5: re-roll root aggregates from (possibly patched) children.
	if depthLimit >= 1 && rows[rootIdx].Kind == model.KindDir {
		rerollRoot(rows, rootIdx)
	}

	// Step 6: status.
	status := model.ViewStatusPartial
	if rootScanned && !partial {
		status = model.ViewStatusFull
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Depth != rows[j].Depth {
			return rows[i].Depth < rows[j].Depth
		}
		return rows[i].Path < rows[j].Path
	})
	// rootIdx is invalidated by the sort above; the root always sorts
	// first since it is the only depth-0 row.
	root := rows[0]

	var children []model.ViewNode
	for _, r := range rows {
		if r.Depth == 1 {
			children = append(children, r)
		}
	}
	sort.SliceStable(children, func(i, j int) bool { return children[i].Size > children[j].Size })

	scanTime := anc.CompletedAt
	return &model.View{
		Root:       root,
		Children:   children,
		Rows:       rows,
		ScanTime:   &scanTime,
		ScanPath:   anc.RootURI,
		ScanStatus: status,
	}, nil
}

// patchFresherChildren folds in scans newer than anc that are rooted
// inside target's subtree: scans whose root is a direct child of
// target replace that child's row outright; scans rooted deeper only
// mark their depth-1 ancestor row "partial". depthLimit gates row
// mutation: rows only ever holds depth <= depthLimit, so when
// depthLimit is 0 neither case is allowed to add or touch a depth-1
// row, even though a fresher child scan exists.
func patchFresherChildren(ctx context.Context, cat *catalog.DB, target string, anc model.ScanRecord, rows *[]model.ViewNode, rootIdx int, depthLimit int) (partial bool, err error) {
	fresher, err := cat.FresherChildrenOf(ctx, target, anc.CompletedAt)
	if err != nil {
		return false, fmt.Errorf("querying fresher children of %s: %w", target, err)
	}
	if depthLimit < 1 {
		return false, nil
	}

	for _, s := range fresher {
		suffix, ok := model.RelativeSuffix(target, s.RootURI)
		if !ok {
			continue
		}
		depthFromTarget := model.Depth(s.RootURI) - model.Depth(target)
		switch {
		case depthFromTarget == 1:
			dot := "."
			patched := model.ViewNode{
				Path:      suffix,
				URI:       s.RootURI,
				Kind:      model.KindDir,
				Size:      s.RootSize,
				Mtime:     s.CompletedAt.Unix(),
				Parent:    &dot,
				Depth:     1,
				NChildren: s.RootNChildren,
				NDesc:     s.RootNDesc,
				Scanned:   model.ScannedYes,
			}
			if idx, ok := findByPath(*rows, suffix); ok {
				(*rows)[idx] = patched
			} else {
				*rows = append(*rows, patched)
			}
		case depthFromTarget > 1:
			first := firstComponent(suffix)
			if idx, ok := findByPath(*rows, first); ok {
				if (*rows)[idx].Scanned != model.ScannedYes {
					(*rows)[idx].Scanned = model.ScannedPartial
				}
				partial = true
			}
		}
	}
	return partial, nil
}

// rerollRoot recomputes rows[rootIdx]'s aggregates from its direct
// (depth-1) children, so the root reflects any patches applied to
// those children.
func rerollRoot(rows []model.ViewNode, rootIdx int) {
	var size int64
	var nDesc, nChildren int32
	var maxMtime int64
	for i, r := range rows {
		if i == rootIdx || r.Depth != 1 {
			continue
		}
		size += r.Size
		nChildren++
		nDesc += 1 + r.NDesc
		if r.Mtime > maxMtime {
			maxMtime = r.Mtime
		}
	}
	rows[rootIdx].Size = size
	rows[rootIdx].NChildren = nChildren
	rows[rootIdx].NDesc = nDesc
	if maxMtime > 0 {
		rows[rootIdx].Mtime = maxMtime
	}
}

func firstComponent(suffix string) string {
	if idx := strings.Index(suffix, "/"); idx >= 0 {
		return suffix[:idx]
	}
	return suffix
}
