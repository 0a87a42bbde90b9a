package model

import "time"

// Kind distinguishes files from directories.
type Kind string

const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// Node is one row of a Snapshot. ParentURI is nil only for the
// snapshot root.
type Node struct {
	URI       string
	Kind      Kind
	Size      int64
	Mtime     int64 // epoch seconds
	ParentURI *string
	Depth     int
	NChildren int32
	NDesc     int32
}

// IsRoot reports whether n is a snapshot root.
func (n Node) IsRoot() bool {
	return n.ParentURI == nil
}

// Snapshot is an immutable, content-addressed tree produced by one
// Aggregator run. Nodes is ordered per the Aggregator's ordering
// guarantee: any prefix containing all nodes with depth <= k can be
// read without decoding deeper nodes.
type Snapshot struct {
	RootURI     string
	CompletedAt time.Time
	ErrorCount  int
	ErrorPaths  []string
	Nodes       []Node
}

// Root returns the snapshot's single depth-0 node.
func (s *Snapshot) Root() (Node, bool) {
	for _, n := range s.Nodes {
		if n.Depth == 0 {
			return n, true
		}
	}
	return Node{}, false
}

// MaxDepth returns the maximum depth present in the snapshot.
func (s *Snapshot) MaxDepth() int {
	max := 0
	for _, n := range s.Nodes {
		if n.Depth > max {
			max = n.Depth
		}
	}
	return max
}

// ScanRecord is a catalog row: denormalized root aggregates so
// listing and planning never require opening a blob.
type ScanRecord struct {
	ID            int64
	RootURI       string
	CompletedAt   time.Time
	BlobID        string
	RootSize      int64
	RootNChildren int32
	RootNDesc     int32
	ErrorCount    int
	ErrorPaths    []string
	NeedsRepair   bool
}

// ScanProgress is the ephemeral row tracking an in-flight scan.
// Removed when the scan terminates.
type ScanProgress struct {
	ID          string
	RootURI     string
	WorkerPID   int
	StartedAt   time.Time
	ItemsFound  int64
	ItemsPerSec *float64
	ErrorCount  int
	Status      ScanStatus
}

// ScanStatus is the scan_progress.status enum.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
	ScanStatusCancelled ScanStatus = "cancelled"
)
