package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

// BlobDeleter is the minimal surface GC needs from a BlobStore; kept
// as an interface here so catalog never imports blobstore directly.
type BlobDeleter interface {
	Delete(blobID string) error
}

// GC evicts snapshots beyond the retention policy: the newest scan
// per root_uri is always kept, as are the newest `retention` scans per
// root; a row beyond that count is deleted, along with its blob,
// unless it completed within maxAge of now (maxAge <= 0 disables the
// age exemption).
func (db *DB) GC(ctx context.Context, blobs BlobDeleter, retention int, maxAge time.Duration) (evicted int, err error) {
	all, err := db.allScans(ctx)
	if err != nil {
		return 0, err
	}

	byRoot := make(map[string][]ScanModel)
	for _, m := range all {
		byRoot[m.RootURI] = append(byRoot[m.RootURI], m)
	}

	var cutoff time.Time
	if maxAge > 0 {
		cutoff = timeNow().Add(-maxAge)
	}

	for _, rows := range byRoot {
		sort.Slice(rows, func(i, j int) bool { return rows[i].CompletedAt > rows[j].CompletedAt })
		keep := retention
		if keep < 1 {
			keep = 1
		}
		for i, m := range rows {
			if i < keep {
				continue // always keep the newest `retention` scans per root
			}
			if maxAge > 0 && time.Unix(m.CompletedAt, 0).After(cutoff) {
				continue // still within the retention window
			}
			if err := db.evictOne(ctx, blobs, m); err != nil {
				return evicted, err
			}
			evicted++
			log.Debugf("[Catalog] GC evicted scan %d (root=%s, blob=%s)", m.ID, m.RootURI, m.BlobID)
		}
	}
	if evicted > 0 {
		log.Infof("[Catalog] GC evicted %d scan(s)", evicted)
	}
	return evicted, nil
}

func (db *DB) evictOne(ctx context.Context, blobs BlobDeleter, m ScanModel) error {
	if err := db.Delete(ctx, m.ID); err != nil {
		return fmt.Errorf("evicting scan %d: %w", m.ID, err)
	}
	if err := blobs.Delete(m.BlobID); err != nil {
		return fmt.Errorf("evicting blob %s: %w", m.BlobID, err)
	}
	return nil
}

func (db *DB) allScans(ctx context.Context) ([]ScanModel, error) {
	var rows []ScanModel
	if err := db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("listing scans for gc: %w", err)
	}
	return rows, nil
}

// timeNow is a var so tests can pin "now" without relying on the
// wall clock.
var timeNow = time.Now
