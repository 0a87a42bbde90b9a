package mutator

import "github.com/latentloop/diskindex/internal/model"

// repairBlob rewrites nodes to remove target and its descendants,
// decrements n_children on target's direct parent, and subtracts
// deletedSize/deletedNDesc+1 from every strict ancestor of target.
// Nodes that are neither under target nor its ancestors are passed
// through unchanged; the root row, being an ancestor, comes back with
// its aggregates already adjusted.
func repairBlob(nodes []model.Node, target string, deletedSize int64, deletedNDesc int32) []model.Node {
	out := make([]model.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.URI == target || model.IsAncestor(target, n.URI) {
			continue
		}
		out = append(out, n)
	}

	for i := range out {
		if out[i].URI != target && model.IsAncestor(out[i].URI, target) {
			out[i].Size -= deletedSize
			out[i].NDesc -= deletedNDesc + 1
		}
	}

	if parentURI, ok := model.Parent(target); ok {
		for i := range out {
			if out[i].URI == parentURI {
				out[i].NChildren--
				break
			}
		}
	}
	return out
}
