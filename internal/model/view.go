package model

import "time"

// ScanStatusView is the Planner's view(uri) status enum: full if the
// ancestor's root_uri == target_uri and no patches applied; partial if
// the ancestor covers the target but patches or unscanned children
// were detected; none otherwise.
type ScanStatusView string

const (
	ViewStatusFull    ScanStatusView = "full"
	ViewStatusPartial ScanStatusView = "partial"
	ViewStatusNone    ScanStatusView = "none"
)

// Scanned is the tri-state freshness annotation the Planner attaches
// to a ViewNode during fresher-child patching.
type Scanned string

const (
	ScannedNo      Scanned = "false"
	ScannedYes     Scanned = "true"
	ScannedPartial Scanned = "partial"
)

// ViewNode is one row of a View: a rebased Node plus the freshness
// annotation the Planner attaches during fresher-child patching.
type ViewNode struct {
	Path      string // "." for the root, else the suffix relative to the view's target
	URI       string
	Kind      Kind
	Size      int64
	Mtime     int64
	Parent    *string // "." for direct children of the root, nil only for the root itself
	Depth     int
	NChildren int32
	NDesc     int32

	// Scanned indicates whether this node's aggregates come from a
	// scan rooted exactly here (ScannedYes), a fresher descendant
	// scan without full traversal (ScannedPartial), or only from an
	// ancestor scan (ScannedNo).
	Scanned Scanned
}

// View is the Planner's view(uri, depth) response.
type View struct {
	Root       ViewNode
	Children   []ViewNode // direct children of Root, sorted by size desc
	Rows       []ViewNode // all returned nodes (Root's descendants up to depth_limit)
	ScanTime   *time.Time // completed_at of the ancestor scan selected, if any
	ScanPath   string     // root_uri of the ancestor scan selected, if any
	ScanStatus ScanStatusView
}

// CompareStatus is a compare() row's status.
type CompareStatus string

const (
	CompareAdded     CompareStatus = "added"
	CompareRemoved   CompareStatus = "removed"
	CompareChanged   CompareStatus = "changed"
	CompareUnchanged CompareStatus = "unchanged"
)

// CompareRow is one child row of compare(uri, scan_a, scan_b).
type CompareRow struct {
	Path       string
	Status     CompareStatus
	SizeOld    int64
	SizeNew    int64
	SizeDelta  int64
	NDescOld   int32
	NDescNew   int32
	NDescDelta int32
}

// CompareResult is the full compare() response.
type CompareResult struct {
	Rows       []CompareRow
	TotalDelta int64
}
