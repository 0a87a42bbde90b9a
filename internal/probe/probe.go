// Package probe produces a lazy, finite, non-restartable stream of
// RawEntry from a source, either a local directory tree or an
// object-store prefix.
package probe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/latentloop/diskindex/internal/model"
)

// RawEntry is one item in the probe stream: (kind, size_bytes,
// mtime_epoch, uri).
type RawEntry struct {
	URI   string
	Kind  model.Kind
	Size  int64
	Mtime int64
}

// PathError records a non-fatal per-path failure: permission-denied
// or exhausted-retry source_transient errors never abort the scan,
// they're counted and sampled.
type PathError struct {
	URI string
	Err error
}

// Options configures a probe run: exclude globs, symlink following,
// inode dedupe, and how many error paths to sample.
type Options struct {
	ExcludeGlobs     []string
	FollowSymlinks   bool
	DedupeByInode    bool
	SampleErrorPaths int
}

// Progress is the item counter and throughput sample a probe publishes
// for the Scheduler to read.
type Progress struct {
	items      atomic.Int64
	mu         sync.Mutex
	lastTime   time.Time
	lastCount  int64
	perSec     float64
}

// Inc increments the item counter by one.
func (p *Progress) Inc() {
	p.items.Add(1)
}

// Items returns the current item count.
func (p *Progress) Items() int64 {
	return p.items.Load()
}

// Sample updates and returns a rolling items/sec throughput estimate.
// Safe to call from the Scheduler's progress-tick goroutine while the
// probe is still writing to items.
func (p *Progress) Sample() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	cur := p.items.Load()
	if p.lastTime.IsZero() {
		p.lastTime = now
		p.lastCount = cur
		return p.perSec
	}
	elapsed := now.Sub(p.lastTime).Seconds()
	if elapsed > 0 {
		p.perSec = float64(cur-p.lastCount) / elapsed
	}
	p.lastTime = now
	p.lastCount = cur
	return p.perSec
}

// Stream is the live output of a probe run.
type Stream struct {
	Entries  <-chan RawEntry
	Errors   <-chan PathError
	Progress *Progress
	// Done resolves when the stream is fully drained: nil on a clean
	// finish, non-nil if the top-level uri itself was unreadable.
	Done <-chan error
}

// Source is implemented by each probe strategy: local-native,
// local-subprocess, and object.
type Source interface {
	Run(ctx context.Context, uri string, opts Options) (*Stream, error)
}
