package planner

import (
	"fmt"

	"github.com/latentloop/diskindex/internal/blobstore"
	"github.com/latentloop/diskindex/internal/model"
)

// sliceTarget reads nodes from reader (a blob rooted at rootURI) that
// lie within target's subtree and within depthLimit of target,
// returning the target node itself (if present) and its descendants.
// depthLimit is relative to target, not to rootURI: depth_in_target =
// node.depth - depth(target_uri in anc).
func sliceTarget(reader *blobstore.Reader, rootURI, target string, depthLimit int) (nodes []model.Node, targetFound bool, err error) {
	offset := model.Depth(target) - model.Depth(rootURI)
	if offset < 0 {
		return nil, false, fmt.Errorf("target %q is not a descendant of %q", target, rootURI)
	}

	absLimit := offset + depthLimit
	if absLimit > reader.MaxDepth() {
		absLimit = reader.MaxDepth()
	}
	all, err := reader.DepthLE(absLimit)
	if err != nil {
		return nil, false, fmt.Errorf("reading blob slice: %w", err)
	}

	for _, n := range all {
		if n.URI == target {
			targetFound = true
			nodes = append(nodes, n)
			continue
		}
		if model.IsAncestor(target, n.URI) {
			nodes = append(nodes, n)
		}
	}
	return nodes, targetFound, nil
}
