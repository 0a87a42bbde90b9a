package catalog

import (
	"context"
	"fmt"

	"github.com/latentloop/diskindex/internal/model"
	"github.com/latentloop/diskindex/internal/util"
)

func toProgressModel(p model.ScanProgress) ScanProgressModel {
	return ScanProgressModel{
		ID:          p.ID,
		RootURI:     p.RootURI,
		WorkerPID:   p.WorkerPID,
		StartedAt:   p.StartedAt.Unix(),
		ItemsFound:  p.ItemsFound,
		ItemsPerSec: p.ItemsPerSec,
		ErrorCount:  p.ErrorCount,
		Status:      string(p.Status),
	}
}

func fromProgressModel(m ScanProgressModel) model.ScanProgress {
	return model.ScanProgress{
		ID:          m.ID,
		RootURI:     m.RootURI,
		WorkerPID:   m.WorkerPID,
		StartedAt:   unixToTime(m.StartedAt),
		ItemsFound:  m.ItemsFound,
		ItemsPerSec: m.ItemsPerSec,
		ErrorCount:  m.ErrorCount,
		Status:      model.ScanStatus(m.Status),
	}
}

// UpsertProgress writes or updates a scan_progress row so a running
// job's latest counters are visible to any reader.
func (db *DB) UpsertProgress(ctx context.Context, p model.ScanProgress) error {
	m := toProgressModel(p)
	return util.Retry(ctx, func() error {
		_, err := db.NewInsert().Model(&m).
			On("CONFLICT (id) DO UPDATE").
			Set("items_found = EXCLUDED.items_found").
			Set("items_per_sec = EXCLUDED.items_per_sec").
			Set("error_count = EXCLUDED.error_count").
			Set("status = EXCLUDED.status").
			Exec(ctx)
		return err
	}, util.DatabaseRetryOptions(ctx)...)
}

// DeleteProgress removes a scan_progress row once a job is finalized
// and its terminal frame has been delivered.
func (db *DB) DeleteProgress(ctx context.Context, id string) error {
	return util.Retry(ctx, func() error {
		_, err := db.NewDelete().Model((*ScanProgressModel)(nil)).Where("id = ?", id).Exec(ctx)
		return err
	}, util.DatabaseRetryOptions(ctx)...)
}

// RunningScans lists all scan_progress rows with status "running".
func (db *DB) RunningScans(ctx context.Context) ([]model.ScanProgress, error) {
	var rows []ScanProgressModel
	err := db.NewSelect().Model(&rows).
		Where("status = ?", string(model.ScanStatusRunning)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing running scans: %w", err)
	}
	out := make([]model.ScanProgress, len(rows))
	for i, r := range rows {
		out[i] = fromProgressModel(r)
	}
	return out, nil
}

// GetProgress returns a single scan_progress row by job id.
func (db *DB) GetProgress(ctx context.Context, id string) (model.ScanProgress, bool, error) {
	var m ScanProgressModel
	err := db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return model.ScanProgress{}, false, nil
		}
		return model.ScanProgress{}, false, fmt.Errorf("querying scan progress %s: %w", id, err)
	}
	return fromProgressModel(m), true, nil
}
