// Package mutator implements delete(uri): deletes from the source
// filesystem, then repairs every catalog snapshot whose blob contains
// the deleted path so the Catalog stays consistent with disk without
// requiring a rescan.
package mutator

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/latentloop/diskindex/internal/blobstore"
	"github.com/latentloop/diskindex/internal/catalog"
	"github.com/latentloop/diskindex/internal/common"
	"github.com/latentloop/diskindex/internal/model"
)

// Mutator is the write path over a Catalog and its BlobStore.
type Mutator struct {
	catalog *catalog.DB
	blobs   *blobstore.Store
}

func New(cat *catalog.DB, blobs *blobstore.Store) *Mutator {
	return &Mutator{catalog: cat, blobs: blobs}
}

// Delete removes target from the source filesystem, then repairs or
// evicts every catalog snapshot affected by its removal.
func (m *Mutator) Delete(ctx context.Context, uri string) (model.DeleteResult, error) {
	target, err := model.Canonicalize(uri)
	if err != nil {
		return model.DeleteResult{}, err
	}
	if model.IsSchemeRoot(target) || model.SchemeOf(target) == model.SchemeObject {
		return model.DeleteResult{}, fmt.Errorf("delete %s: %w", target, common.ErrUnsupportedScheme)
	}

	deletedSize, deletedNDesc, err := m.lookupDeletedStats(ctx, target)
	if err != nil {
		return model.DeleteResult{}, fmt.Errorf("looking up %s: %w", target, err)
	}

	pathErrors := deleteTree(target)

	repairErrors, err := m.repairAffectedScans(ctx, target, deletedSize, deletedNDesc)
	if err != nil {
		return model.DeleteResult{}, fmt.Errorf("repairing scans after deleting %s: %w", target, err)
	}

	return model.DeleteResult{
		OK:           len(pathErrors) == 0,
		DeletedSize:  deletedSize,
		DeletedNDesc: deletedNDesc,
		PathErrors:   pathErrors,
		RepairErrors: repairErrors,
	}, nil
}

// lookupDeletedStats finds the smallest covering snapshot for target
// and returns its size/n_desc. Absent any covering scan, both are
// zero: the delete still proceeds, it just carries no size accounting.
func (m *Mutator) lookupDeletedStats(ctx context.Context, target string) (int64, int32, error) {
	history, err := m.catalog.HistoryFor(ctx, target)
	if err != nil {
		return 0, 0, err
	}
	if len(history) == 0 {
		return 0, 0, nil
	}
	// history is newest first: keep the deepest root, and among equally
	// deep roots the newest one.
	anc := history[0]
	for _, h := range history[1:] {
		if model.Depth(h.RootURI) > model.Depth(anc.RootURI) {
			anc = h
		}
	}

	reader, err := m.blobs.Open(anc.BlobID)
	if err != nil {
		return 0, 0, err
	}
	defer reader.Close()

	nodes, err := reader.UriPrefix(target)
	if err != nil {
		return 0, 0, err
	}
	for _, n := range nodes {
		if n.URI == target {
			return n.Size, n.NDesc, nil
		}
	}
	return 0, 0, nil
}

// repairAffectedScans handles the two ways a delete can affect an
// existing snapshot: snapshots rooted at or inside the deleted subtree
// are evicted outright (their root no longer exists); snapshots rooted
// strictly above it are repaired in place, or deferred via
// needs_repair on failure.
func (m *Mutator) repairAffectedScans(ctx context.Context, target string, deletedSize int64, deletedNDesc int32) ([]string, error) {
	var repairErrors []string

	under, err := m.catalog.ScansUnder(ctx, target)
	if err != nil {
		return nil, err
	}
	for _, s := range under {
		if err := m.catalog.Delete(ctx, s.ID); err != nil && !errors.Is(err, common.ErrNotFound) {
			repairErrors = append(repairErrors, fmt.Sprintf("evicting scan %d (%s): %v", s.ID, s.RootURI, err))
			continue
		}
		if err := m.blobs.Delete(s.BlobID); err != nil && !errors.Is(err, common.ErrNotFound) {
			repairErrors = append(repairErrors, fmt.Sprintf("deleting blob for scan %d: %v", s.ID, err))
		}
	}

	ancestors, err := m.catalog.HistoryFor(ctx, target)
	if err != nil {
		return repairErrors, err
	}
	for _, s := range ancestors {
		if s.RootURI == target {
			continue // already evicted above
		}
		if err := m.repairOne(ctx, s, target, deletedSize, deletedNDesc); err != nil {
			if markErr := m.catalog.MarkNeedsRepair(ctx, s.ID); markErr != nil {
				repairErrors = append(repairErrors, fmt.Sprintf("scan %d: repair failed (%v), and marking needs_repair also failed: %v", s.ID, err, markErr))
				log.Errorf("[Mutator] scan %d: repair failed (%v) and needs_repair mark also failed: %v", s.ID, err, markErr)
			} else {
				repairErrors = append(repairErrors, fmt.Sprintf("scan %d: deferred repair (%v)", s.ID, err))
				log.Warnf("[Mutator] scan %d: deferred repair after delete of %s: %v", s.ID, target, err)
			}
		}
	}
	return repairErrors, nil
}

func (m *Mutator) repairOne(ctx context.Context, s model.ScanRecord, target string, deletedSize int64, deletedNDesc int32) error {
	reader, err := m.blobs.Open(s.BlobID)
	if err != nil {
		return fmt.Errorf("opening blob: %w", err)
	}
	nodes, err := reader.All()
	reader.Close()
	if err != nil {
		return fmt.Errorf("reading blob: %w", err)
	}

	repaired := repairBlob(nodes, target, deletedSize, deletedNDesc)

	newBlobID, err := m.blobs.Put(&model.Snapshot{
		RootURI:     s.RootURI,
		CompletedAt: s.CompletedAt,
		ErrorCount:  s.ErrorCount,
		ErrorPaths:  s.ErrorPaths,
		Nodes:       repaired,
	})
	if err != nil {
		return fmt.Errorf("writing repaired blob: %w", err)
	}

	var root model.Node
	for _, n := range repaired {
		if n.Depth == 0 {
			root = n
		}
	}

	updated := s
	updated.BlobID = newBlobID
	updated.RootSize = root.Size
	updated.RootNChildren = root.NChildren
	updated.RootNDesc = root.NDesc
	updated.NeedsRepair = false
	if _, err := m.catalog.Upsert(ctx, updated); err != nil {
		_ = m.blobs.Delete(newBlobID)
		return fmt.Errorf("updating catalog row: %w", err)
	}

	_ = m.blobs.Delete(s.BlobID) // best-effort; GC reclaims it otherwise
	return nil
}
