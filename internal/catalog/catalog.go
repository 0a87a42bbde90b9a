// Package catalog is the durable index of completed scans: a bun.DB
// over go-libsql, wrapped the way internal database layers usually
// are in this codebase (open, apply pragmas, create schema).
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/latentloop/diskindex/internal/common"
	"github.com/latentloop/diskindex/internal/model"
	"github.com/latentloop/diskindex/internal/util"
)

// DB wraps a bun.DB over the catalog's SQLite file.
type DB struct {
	*bun.DB
	sqlDB *sql.DB
}

// Open creates the catalog file (and schema) if absent, or opens an
// existing one, applying the usual WAL/busy_timeout PRAGMA set.
func Open(path string, busyTimeoutMS int) (*DB, error) {
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = DefaultBusyTimeout
	}
	sqlDB, err := sql.Open("libsql", buildDSN(path, busyTimeoutMS))
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	if err := applyPragmas(sqlDB, busyTimeoutMS); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := execStatements(sqlDB, createTables); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}

	bunDB := bun.NewDB(sqlDB, sqlitedialect.New())
	return &DB{DB: bunDB, sqlDB: sqlDB}, nil
}

func (db *DB) Close() error { return db.sqlDB.Close() }

func toRecord(m ScanModel) model.ScanRecord {
	return model.ScanRecord{
		ID:            m.ID,
		RootURI:       m.RootURI,
		CompletedAt:   time.Unix(m.CompletedAt, 0).UTC(),
		BlobID:        m.BlobID,
		RootSize:      m.RootSize,
		RootNChildren: m.RootNChildren,
		RootNDesc:     m.RootNDesc,
		ErrorCount:    m.ErrorCount,
		ErrorPaths:    decodeErrorPaths(m.ErrorPaths),
		NeedsRepair:   m.NeedsRepair,
	}
}

// Upsert inserts a new scan row when rec.ID is zero, and otherwise
// updates the row with that id in place (the Mutator's delete-repair
// uses this to swap in a repaired blob_id and root aggregates).
func (db *DB) Upsert(ctx context.Context, rec model.ScanRecord) (model.ScanRecord, error) {
	m := ScanModel{
		ID:            rec.ID,
		RootURI:       rec.RootURI,
		CompletedAt:   rec.CompletedAt.Unix(),
		BlobID:        rec.BlobID,
		ErrorCount:    rec.ErrorCount,
		ErrorPaths:    encodeErrorPaths(rec.ErrorPaths),
		RootSize:      rec.RootSize,
		RootNChildren: rec.RootNChildren,
		RootNDesc:     rec.RootNDesc,
		NeedsRepair:   rec.NeedsRepair,
	}

	err := util.Retry(ctx, func() error {
		var execErr error
		if m.ID == 0 {
			_, execErr = db.NewInsert().Model(&m).Returning("id").Exec(ctx)
		} else {
			_, execErr = db.NewUpdate().Model(&m).WherePK().Exec(ctx)
		}
		return execErr
	}, util.DatabaseRetryOptions(ctx)...)
	if err != nil {
		return model.ScanRecord{}, fmt.Errorf("upserting scan row: %w", err)
	}
	return toRecord(m), nil
}

// Delete removes a scan row by id.
func (db *DB) Delete(ctx context.Context, id int64) error {
	return util.Retry(ctx, func() error {
		res, err := db.NewDelete().Model((*ScanModel)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("scan %d: %w", id, common.ErrNotFound)
		}
		return nil
	}, util.DatabaseRetryOptions(ctx)...)
}

// MarkNeedsRepair flags a row as corrupt: the Planner skips it and GC
// may evict it.
func (db *DB) MarkNeedsRepair(ctx context.Context, id int64) error {
	return util.Retry(ctx, func() error {
		_, err := db.NewUpdate().Model((*ScanModel)(nil)).
			Set("needs_repair = ?", true).
			Where("id = ?", id).
			Exec(ctx)
		return err
	}, util.DatabaseRetryOptions(ctx)...)
}

// LatestPerRoot returns one row per root_uri, the newest completed
// scan.
func (db *DB) LatestPerRoot(ctx context.Context) ([]model.ScanRecord, error) {
	var rows []ScanModel
	err := db.NewRaw(`
		SELECT s.* FROM scan s
		JOIN (
			SELECT root_uri, MAX(completed_at) AS max_completed_at
			FROM scan
			WHERE needs_repair = 0
			GROUP BY root_uri
		) latest ON s.root_uri = latest.root_uri AND s.completed_at = latest.max_completed_at
		WHERE s.needs_repair = 0
		ORDER BY s.root_uri
	`).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("querying latest_per_root: %w", err)
	}
	return toRecords(rows), nil
}

// HistoryFor returns every scan whose root_uri is an ancestor of uri
// or equal to it, newest first. SQLite has no native longest-prefix
// index, so candidate rows are fetched by a cheap LIKE
// filter (root_uri is a string prefix of uri) and then refined in Go via
// model.IsAncestor ("/"-boundary test) to avoid false positives like
// "/data2" matching a query for "/data".
func (db *DB) HistoryFor(ctx context.Context, uri string) ([]model.ScanRecord, error) {
	var rows []ScanModel
	err := db.NewSelect().Model(&rows).
		Where("needs_repair = 0").
		Where("? LIKE root_uri || '%'", uri).
		Order("completed_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying history_for: %w", err)
	}

	var out []model.ScanRecord
	for _, r := range rows {
		if model.IsAncestor(r.RootURI, uri) || r.RootURI == uri {
			out = append(out, toRecord(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return out, nil
}

// FresherChildrenOf returns scans whose root_uri is a strict
// descendant of uri and whose completed_at is after since, used by
// the Planner's fresher-child patching step.
func (db *DB) FresherChildrenOf(ctx context.Context, uri string, since time.Time) ([]model.ScanRecord, error) {
	var rows []ScanModel
	err := db.NewSelect().Model(&rows).
		Where("needs_repair = 0").
		Where("root_uri LIKE ? || '%'", uri).
		Where("completed_at > ?", since.Unix()).
		Order("completed_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying fresher_children_of: %w", err)
	}

	var out []model.ScanRecord
	for _, r := range rows {
		if r.RootURI == uri {
			continue
		}
		if model.IsAncestor(uri, r.RootURI) {
			out = append(out, toRecord(r))
		}
	}
	return out, nil
}

// LatestForRoot returns the newest non-repair-flagged scan for an
// exact root_uri; ok is false when no such scan exists.
func (db *DB) LatestForRoot(ctx context.Context, uri string) (model.ScanRecord, bool, error) {
	var m ScanModel
	err := db.NewSelect().Model(&m).
		Where("root_uri = ?", uri).
		Where("needs_repair = 0").
		Order("completed_at DESC").
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return model.ScanRecord{}, false, nil
	}
	if err != nil {
		return model.ScanRecord{}, false, fmt.Errorf("querying latest for %s: %w", uri, err)
	}
	return toRecord(m), true, nil
}

// ScansUnder returns every scan whose root_uri is uri or a strict
// descendant of it, regardless of recency: the Mutator needs every
// such snapshot, not just the latest, since their root no longer
// exists once uri is deleted.
func (db *DB) ScansUnder(ctx context.Context, uri string) ([]model.ScanRecord, error) {
	var rows []ScanModel
	err := db.NewSelect().Model(&rows).
		Where("root_uri LIKE ? || '%'", uri).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying scans_under: %w", err)
	}

	var out []model.ScanRecord
	for _, r := range rows {
		if r.RootURI == uri || model.IsAncestor(uri, r.RootURI) {
			out = append(out, toRecord(r))
		}
	}
	return out, nil
}

// GetByID returns a single scan row by its primary key, used by the
// Planner's compare(uri, scan_a, scan_b) to resolve the two sides.
func (db *DB) GetByID(ctx context.Context, id int64) (model.ScanRecord, bool, error) {
	var m ScanModel
	err := db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return model.ScanRecord{}, false, nil
	}
	if err != nil {
		return model.ScanRecord{}, false, fmt.Errorf("querying scan %d: %w", id, err)
	}
	return toRecord(m), true, nil
}

func toRecords(models []ScanModel) []model.ScanRecord {
	out := make([]model.ScanRecord, len(models))
	for i, m := range models {
		out[i] = toRecord(m)
	}
	return out
}
