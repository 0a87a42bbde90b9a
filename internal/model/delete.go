package model

// DeleteResult is the Mutator's delete(uri) response.
type DeleteResult struct {
	OK           bool
	DeletedSize  int64
	DeletedNDesc int32
	PathErrors   []string // per-path deletion failures; non-empty means a partial delete
	RepairErrors []string // scans that could not be repaired and were instead marked needs_repair
}
