package planner

import (
	"github.com/latentloop/diskindex/internal/model"
)

// rebase rewrites a slice of absolute-URI nodes (rooted at anc) into
// ViewNodes rooted at target: target becomes path ".", parent nil, and
// every descendant's path/parent become suffixes relative to target.
// rootScanned marks whether the target node itself was produced by a
// scan rooted exactly at target (as opposed to inherited from a
// shallower ancestor scan).
func rebase(nodes []model.Node, target string, rootScanned bool) []model.ViewNode {
	out := make([]model.ViewNode, 0, len(nodes))
	for _, n := range nodes {
		vn := model.ViewNode{
			URI:       n.URI,
			Kind:      n.Kind,
			Size:      n.Size,
			Mtime:     n.Mtime,
			Depth:     model.Depth(n.URI) - model.Depth(target),
			NChildren: n.NChildren,
			NDesc:     n.NDesc,
			Scanned:   model.ScannedNo,
		}
		if n.URI == target {
			vn.Path = "."
			vn.Parent = nil
			if rootScanned {
				vn.Scanned = model.ScannedYes
			}
			out = append(out, vn)
			continue
		}
		suffix, ok := model.RelativeSuffix(target, n.URI)
		if !ok {
			continue // not actually under target; shouldn't happen given sliceTarget's filter
		}
		vn.Path = suffix
		if vn.Depth == 1 {
			dot := "."
			vn.Parent = &dot
		} else if n.ParentURI != nil {
			parentSuffix, ok := model.RelativeSuffix(target, *n.ParentURI)
			if ok {
				vn.Parent = &parentSuffix
			}
		}
		out = append(out, vn)
	}
	return out
}

func findByPath(rows []model.ViewNode, path string) (int, bool) {
	for i, r := range rows {
		if r.Path == path {
			return i, true
		}
	}
	return -1, false
}
