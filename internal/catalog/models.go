package catalog

import (
	"strings"

	"github.com/uptrace/bun"
)

// ScanModel mirrors the `scan` table: one denormalized row per
// completed scan, using bun.BaseModel for the table mapping.
type ScanModel struct {
	bun.BaseModel `bun:"table:scan"`

	ID            int64  `bun:"id,pk,autoincrement"`
	RootURI       string `bun:"root_uri,notnull"`
	CompletedAt   int64  `bun:"completed_at,notnull"` // unix seconds
	BlobID        string `bun:"blob_id,notnull"`
	ErrorCount    int    `bun:"error_count,notnull"`
	ErrorPaths    string `bun:"error_paths,notnull"` // newline-joined, capped list
	RootSize      int64  `bun:"root_size,notnull"`
	RootNChildren int32  `bun:"root_n_children,notnull"`
	RootNDesc     int32  `bun:"root_n_desc,notnull"`
	NeedsRepair   bool   `bun:"needs_repair,notnull"`
}

func encodeErrorPaths(paths []string) string { return strings.Join(paths, "\n") }

func decodeErrorPaths(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// ScanProgressModel mirrors the `scan_progress` table.
type ScanProgressModel struct {
	bun.BaseModel `bun:"table:scan_progress"`

	ID          string   `bun:"id,pk"`
	RootURI     string   `bun:"root_uri,notnull"`
	WorkerPID   int      `bun:"worker_pid,notnull"`
	StartedAt   int64    `bun:"started_at,notnull"`
	ItemsFound  int64    `bun:"items_found,notnull"`
	ItemsPerSec *float64 `bun:"items_per_sec"`
	ErrorCount  int      `bun:"error_count,notnull"`
	Status      string   `bun:"status,notnull"`
}
