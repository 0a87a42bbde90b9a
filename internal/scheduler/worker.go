package scheduler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/latentloop/diskindex/internal/aggregator"
	"github.com/latentloop/diskindex/internal/blobstore"
	"github.com/latentloop/diskindex/internal/catalog"
	"github.com/latentloop/diskindex/internal/config"
	"github.com/latentloop/diskindex/internal/model"
	"github.com/latentloop/diskindex/internal/probe"
)

// RunWorker executes one scan job's full Probe->Aggregator->
// BlobStore->Catalog pipeline in-process. It is the body of the
// `__scan-worker` subcommand: the Scheduler re-execs the binary into a
// subprocess that calls this with fd 3 wired to the pipe the parent
// reads ProgressFrames from.
//
// jobID is generated by the parent and passed through so progress
// frames can be correlated without the worker needing to know its own
// subprocess identity.
func RunWorker(ctx context.Context, cfg config.Config, jobID, rootURI string, lister probe.ObjectLister, progressOut io.Writer) error {
	emit := func(f ProgressFrame) {
		f.JobID = jobID
		f.RootURI = rootURI
		line, err := json.Marshal(f)
		if err != nil {
			return
		}
		line = append(line, '\n')
		_, _ = progressOut.Write(line)
	}

	source := probe.Select(rootURI, lister)
	opts := probe.Options{
		ExcludeGlobs:     cfg.ProbeExcludeGlobs,
		FollowSymlinks:   cfg.FollowSymlinks,
		DedupeByInode:    cfg.DedupeByInode,
		SampleErrorPaths: cfg.SampleErrorPaths,
	}

	stream, err := source.Run(ctx, rootURI, opts)
	if err != nil {
		emit(ProgressFrame{Status: statusFailed, Error: err.Error()})
		return fmt.Errorf("starting probe: %w", err)
	}

	tick := cfg.ProgressTick
	if tick <= 0 {
		tick = 2 * time.Second
	}
	tickerDone := make(chan struct{})
	go reportProgress(stream.Progress, tick, tickerDone, emit)

	snap, err := aggregator.Aggregate(ctx, rootURI, stream, aggregator.Options{SampleErrorPaths: cfg.SampleErrorPaths})
	close(tickerDone)
	if err != nil {
		status := statusFailed
		if ctx.Err() != nil {
			status = statusCancelled
		}
		emit(ProgressFrame{Status: status, Error: err.Error(), ItemsFound: stream.Progress.Items()})
		return fmt.Errorf("aggregating scan: %w", err)
	}

	store := blobstore.New(cfg.BlobDir)
	blobID, err := store.Put(snap)
	if err != nil {
		emit(ProgressFrame{Status: statusFailed, Error: err.Error(), ItemsFound: stream.Progress.Items()})
		return fmt.Errorf("writing blob: %w", err)
	}

	cat, err := catalog.Open(cfg.DBPath, 0)
	if err != nil {
		emit(ProgressFrame{Status: statusFailed, Error: err.Error()})
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer cat.Close()

	root, _ := snap.Root()
	rec := model.ScanRecord{
		RootURI:       snap.RootURI,
		CompletedAt:   snap.CompletedAt,
		BlobID:        blobID,
		RootSize:      root.Size,
		RootNChildren: root.NChildren,
		RootNDesc:     root.NDesc,
		ErrorCount:    snap.ErrorCount,
		ErrorPaths:    snap.ErrorPaths,
	}
	if _, err := cat.Upsert(ctx, rec); err != nil {
		// Blob already committed; an orphaned blob is GC-eligible.
		emit(ProgressFrame{Status: statusFailed, Error: err.Error(), BlobID: blobID})
		return fmt.Errorf("recording scan: %w", err)
	}

	emit(ProgressFrame{
		Status:     statusCompleted,
		ItemsFound: stream.Progress.Items(),
		ErrorCount: snap.ErrorCount,
		BlobID:     blobID,
	})
	return nil
}

func reportProgress(p *probe.Progress, tick time.Duration, done <-chan struct{}, emit func(ProgressFrame)) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			emit(ProgressFrame{
				Status:      statusRunning,
				ItemsFound:  p.Items(),
				ItemsPerSec: p.Sample(),
			})
		case <-done:
			return
		}
	}
}

// NewJobID generates a fresh job identifier (a random UUID).
func NewJobID() string { return uuid.NewString() }

// ReadProgressFrames decodes NDJSON frames from r until EOF, invoking
// onFrame for each. Used by the parent Scheduler's pipe reader.
func ReadProgressFrames(r io.Reader, onFrame func(ProgressFrame)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var f ProgressFrame
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			continue // malformed line, skip rather than abort the stream
		}
		onFrame(f)
	}
	return scanner.Err()
}
