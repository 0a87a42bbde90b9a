package planner

import (
	"context"
	"fmt"
	"sort"

	"github.com/latentloop/diskindex/internal/model"
)

type childAgg struct {
	size  int64
	nDesc int32
}

// Compare returns a row-per-child diff of two scans' views of uri.
func (p *Planner) Compare(ctx context.Context, uri string, scanA, scanB int64) (*model.CompareResult, error) {
	target, err := model.Canonicalize(uri)
	if err != nil {
		return nil, err
	}

	recA, okA, err := p.catalog.GetByID(ctx, scanA)
	if err != nil {
		return nil, fmt.Errorf("loading scan %d: %w", scanA, err)
	}
	if !okA {
		return nil, fmt.Errorf("scan %d not found", scanA)
	}
	recB, okB, err := p.catalog.GetByID(ctx, scanB)
	if err != nil {
		return nil, fmt.Errorf("loading scan %d: %w", scanB, err)
	}
	if !okB {
		return nil, fmt.Errorf("scan %d not found", scanB)
	}

	mapA, coversA, err := p.childMapFor(recA, target)
	if err != nil {
		return nil, err
	}
	mapB, coversB, err := p.childMapFor(recB, target)
	if err != nil {
		return nil, err
	}
	if !coversA && !coversB {
		return nil, fmt.Errorf("neither scan %d nor %d covers %s", scanA, scanB, target)
	}

	paths := make(map[string]bool)
	for path := range mapA {
		paths[path] = true
	}
	for path := range mapB {
		paths[path] = true
	}

	rows := make([]model.CompareRow, 0, len(paths))
	var totalDelta int64
	for path := range paths {
		a, inA := mapA[path]
		b, inB := mapB[path]
		row := model.CompareRow{Path: path}
		switch {
		case !inA && inB:
			row.Status = model.CompareAdded
			row.SizeNew, row.NDescNew = b.size, b.nDesc
			row.SizeDelta, row.NDescDelta = b.size, b.nDesc
		case inA && !inB:
			row.Status = model.CompareRemoved
			row.SizeOld, row.NDescOld = a.size, a.nDesc
			row.SizeDelta, row.NDescDelta = -a.size, -a.nDesc
		default:
			row.SizeOld, row.NDescOld = a.size, a.nDesc
			row.SizeNew, row.NDescNew = b.size, b.nDesc
			row.SizeDelta = b.size - a.size
			row.NDescDelta = b.nDesc - a.nDesc
			if a.size == b.size && a.nDesc == b.nDesc {
				row.Status = model.CompareUnchanged
			} else {
				row.Status = model.CompareChanged
			}
		}
		totalDelta += row.SizeDelta
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })
	return &model.CompareResult{Rows: rows, TotalDelta: totalDelta}, nil
}

// childMapFor returns uri's direct children as seen by rec, or
// covers=false if rec's root is not an ancestor of uri or uri is
// absent from rec's snapshot. If rec covers uri at a deeper ancestor, it's sliced the
// same way View slices its rows.
func (p *Planner) childMapFor(rec model.ScanRecord, uri string) (map[string]childAgg, bool, error) {
	if !model.IsAncestor(rec.RootURI, uri) {
		return nil, false, nil
	}
	reader, err := p.blobs.Open(rec.BlobID)
	if err != nil {
		return nil, false, fmt.Errorf("opening blob for scan %d: %w", rec.ID, err)
	}
	defer reader.Close()

	nodes, found, err := sliceTarget(reader, rec.RootURI, uri, 1)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	out := make(map[string]childAgg)
	for _, n := range nodes {
		if n.URI == uri {
			continue
		}
		suffix, ok := model.RelativeSuffix(uri, n.URI)
		if !ok || suffix == "." {
			continue
		}
		out[suffix] = childAgg{size: n.Size, nDesc: n.NDesc}
	}
	return out, true, nil
}
